package anvil

import "errors"

// ErrBadRegionFilename is wrapped into the error returned by a merge when
// the target filename cannot be parsed into region coordinates. Unlike
// chunk-level decode trouble, this aborts the merge outright: there is no
// safe partial result to produce without knowing which region is being
// written.
var ErrBadRegionFilename = errors.New("anvil: unparseable region filename")
