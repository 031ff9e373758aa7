package coordinator

// kindedError is the common shape behind every coordinator error: a
// taxonomy name (spec.md §7) plus a formatted message.
type kindedError struct {
	kind string
	msg  string
}

func (e *kindedError) Error() string { return e.msg }

// Kind returns the taxonomy name this error belongs to.
func (e *kindedError) Kind() string { return e.kind }

// ErrRepeatBackup reports that a command tried to start a new operation
// while backup_state, back_state, or active_op was already set.
type ErrRepeatBackup struct{ *kindedError }

func newRepeatBackup() error {
	return &ErrRepeatBackup{&kindedError{kind: "RepeatBackup", msg: "coordinator: another backup or restore operation is already running"}}
}

// Timeout family — recovered locally by the coordinator: state is reset,
// and on a save-off/save-all timeout "save-on" is re-issued so the host is
// left in a sane autosave mode.

// ErrSaveOffTimeout reports no save_off_regex match within TimeOut.
type ErrSaveOffTimeout struct{ *kindedError }

func newSaveOffTimeout() error {
	return &ErrSaveOffTimeout{&kindedError{kind: "SaveOffTimeout", msg: "coordinator: timed out waiting for the host to confirm autosave is off"}}
}

// ErrSaveAllTimeout reports no saved_world_regex match within TimeOut.
type ErrSaveAllTimeout struct{ *kindedError }

func newSaveAllTimeout() error {
	return &ErrSaveAllTimeout{&kindedError{kind: "SaveAllTimeout", msg: "coordinator: timed out waiting for the host to confirm the world was saved"}}
}

// ErrGetPlayerDataTimeout reports no position/dimension match within
// TimeOut.
type ErrGetPlayerDataTimeout struct{ *kindedError }

func newGetPlayerDataTimeout() error {
	return &ErrGetPlayerDataTimeout{&kindedError{kind: "GetPlayerDataTimeout", msg: "coordinator: timed out waiting for the player's position and dimension"}}
}

// ErrBackTimeout reports that no confirm arrived during the confirm
// window.
type ErrBackTimeout struct{ *kindedError }

func newBackTimeout() error {
	return &ErrBackTimeout{&kindedError{kind: "BackTimeout", msg: "coordinator: timed out waiting for restore confirmation"}}
}

// Restore-ceremony family.

// ErrBackAbort reports that a user aborted the confirm/countdown
// ceremony; no world data is touched.
type ErrBackAbort struct{ *kindedError }

func newBackAbort() error {
	return &ErrBackAbort{&kindedError{kind: "BackAbort", msg: "coordinator: restore aborted"}}
}

// ErrInputSlotRepeat reports a duplicate sub-slot id in a partial restore
// request.
type ErrInputSlotRepeat struct{ *kindedError }

func newInputSlotRepeat() error {
	return &ErrInputSlotRepeat{&kindedError{kind: "InputSlotRepeat", msg: "coordinator: the same sub-slot was named more than once"}}
}

// NewInputSlotRepeat is the exported constructor command-line parsing code
// outside this package (cmd/chunkback/app) uses to report the same
// violation while validating raw input before an operation even begins.
func NewInputSlotRepeat() error { return newInputSlotRepeat() }

// ErrInvalidInput reports a malformed command argument (e.g. a
// sub_slot_groups list that isn't a clean comma-separated list of
// positive integers).
type ErrInvalidInput struct{ *kindedError }

func newInvalidInput() error {
	return &ErrInvalidInput{&kindedError{kind: "InvalidInput", msg: "coordinator: invalid input"}}
}

// NewInvalidInput is the exported form of newInvalidInput, for callers
// outside this package.
func NewInvalidInput() error { return newInvalidInput() }

// ErrNoPlayer reports a command that requires an in-game player issued
// from the console.
type ErrNoPlayer struct{ *kindedError }

func newNoPlayer() error {
	return &ErrNoPlayer{&kindedError{kind: "NoPlayer", msg: "coordinator: this command requires an in-game player"}}
}

// NewNoPlayer is the exported form of newNoPlayer, for callers outside
// this package.
func NewNoPlayer() error { return newNoPlayer() }

// ErrInputDimRepeat reports a dimension list with a repeated entry.
type ErrInputDimRepeat struct{ *kindedError }

func newInputDimRepeat() error {
	return &ErrInputDimRepeat{&kindedError{kind: "InputDimRepeat", msg: "coordinator: the same dimension was named more than once"}}
}

// NewInputDimRepeat is the exported form of newInputDimRepeat, for callers
// outside this package.
func NewInputDimRepeat() error { return newInputDimRepeat() }

// ErrInputDimError reports a dimension key with no configuration entry,
// raised while parsing raw command input (as opposed to
// engine.ErrUnidentifiedDimension, which the engine raises once it has
// already resolved a dimension key to an entry).
type ErrInputDimError struct{ *kindedError }

func newInputDimError() error {
	return &ErrInputDimError{&kindedError{kind: "InputDimError", msg: "coordinator: unknown dimension"}}
}

// NewInputDimError is the exported form of newInputDimError, for callers
// outside this package.
func NewInputDimError() error { return newInputDimError() }
