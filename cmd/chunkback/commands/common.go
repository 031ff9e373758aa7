// Package commands implements every chunkback subcommand as a
// google/subcommands.Command, each holding a *app.App and calling straight
// into it. Grounded in shape on bwkimmel-mcstrings' Command implementations
// (extract.go/compact.go/patch.go), generalized here to a nested command
// tree for the "custom" group.
package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/subcommands"

	"github.com/OCharnyshevich/chunkback/cmd/chunkback/app"
	"github.com/OCharnyshevich/chunkback/pkg/selector"
)

// fail reports err to the operator and returns the exit status the original
// plugin's command framework would have used for an exception escaping a
// command handler.
func fail(a *app.App, err error) subcommands.ExitStatus {
	a.Adapter.Reply(fmt.Sprintf("error: %v", err))
	return subcommands.ExitFailure
}

func usageError(a *app.App, usage string) subcommands.ExitStatus {
	a.Adapter.Reply("usage: " + usage)
	return subcommands.ExitUsageError
}

// parsePoint parses a world-space x/z coordinate pair given as two decimal
// strings, as every rectangle-corner argument on the command line is.
func parsePoint(xs, zs string) (selector.WorldPoint, error) {
	x, err := strconv.Atoi(xs)
	if err != nil {
		return selector.WorldPoint{}, fmt.Errorf("invalid x coordinate %q", xs)
	}
	z, err := strconv.Atoi(zs)
	if err != nil {
		return selector.WorldPoint{}, fmt.Errorf("invalid z coordinate %q", zs)
	}
	return selector.WorldPoint{X: x, Z: z}, nil
}

// commentFrom joins every trailing argument into the free-text comment field
// most commands accept as their last, optional argument.
func commentFrom(rest []string) string {
	if len(rest) == 0 {
		return ""
	}
	return strings.Join(rest, " ")
}
