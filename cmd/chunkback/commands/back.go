package commands

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/google/subcommands"

	"github.com/OCharnyshevich/chunkback/cmd/chunkback/app"
	"github.com/OCharnyshevich/chunkback/internal/slotmgr"
)

// BackCommand implements "back [-s] [slot|overwrite] [sub_slot_groups]":
// restore a numbered slot (default 1, the most recent) or the overwrite
// buffer, running the confirm/countdown ceremony first. sub_slot_groups
// restricts a custom-kind slot's restore to the named sub-slots, grounded
// on cb_back.
type BackCommand struct {
	App    *app.App
	Static bool
}

func (*BackCommand) Name() string     { return "back" }
func (*BackCommand) Synopsis() string { return "restore a backup slot, after a confirm/countdown ceremony" }
func (*BackCommand) Usage() string {
	return "back [-s] [slot|overwrite] [sub_slot_groups]\n"
}

func (c *BackCommand) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.Static, "s", false, "restore from the static backup root")
}

func (c *BackCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	rest := f.Args()
	root := slotmgr.ResolveBackupRoot(c.Static)

	var slotDir, label string
	isOverwrite := false

	switch {
	case len(rest) > 0 && rest[0] == "overwrite":
		isOverwrite = true
		slotDir = c.App.OverwriteSlotDir()
		label = "overwrite"
		rest = rest[1:]
	case len(rest) > 0:
		n, err := strconv.Atoi(rest[0])
		if err != nil || n < 1 {
			return fail(c.App, fmt.Errorf("invalid slot %q", rest[0]))
		}
		slotDir = c.App.Slots.SlotPath(root, n)
		label = fmt.Sprintf("slot%d", n)
		rest = rest[1:]
	default:
		slotDir = c.App.Slots.SlotPath(root, 1)
		label = "slot1"
	}

	var partial []int
	if len(rest) > 0 {
		groups, err := app.ParseSubSlotGroups(rest[0])
		if err != nil {
			return fail(c.App, err)
		}
		partial = groups
	}

	m, err := c.App.RestoreSlot(ctx, slotDir, isOverwrite, partial, label)
	if err != nil {
		return fail(c.App, err)
	}
	c.App.Adapter.Reply(fmt.Sprintf("restore of %s complete, originally recorded at %s", label, m.Time))
	return subcommands.ExitSuccess
}

// RestoreCommand is "restore", an alias for "back" kept for parity with the
// original command tree, which registered both names against the same
// handler.
type RestoreCommand struct{ BackCommand }

func (*RestoreCommand) Name() string { return "restore" }

// ConfirmCommand implements "confirm". Since chunkback's TUI already owns
// the terminal and reads 'y'/'n' directly for the duration of a "back"
// invocation, this command only does useful work against a coordinator a
// different invocation shares — e.g. under a future resident-process mode.
// It is kept for command-surface parity with the original plugin and
// because internal/coordinator.Confirm is a no-op when nothing is waiting,
// so calling it out of context is harmless.
type ConfirmCommand struct{ App *app.App }

func (*ConfirmCommand) Name() string           { return "confirm" }
func (*ConfirmCommand) Synopsis() string       { return "confirm a pending restore" }
func (*ConfirmCommand) Usage() string          { return "confirm\n" }
func (*ConfirmCommand) SetFlags(*flag.FlagSet) {}
func (c *ConfirmCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	c.App.Coordinator.Confirm()
	return subcommands.ExitSuccess
}

// AbortCommand implements "abort", the mirror of ConfirmCommand.
type AbortCommand struct{ App *app.App }

func (*AbortCommand) Name() string           { return "abort" }
func (*AbortCommand) Synopsis() string       { return "abort a pending restore" }
func (*AbortCommand) Usage() string          { return "abort\n" }
func (*AbortCommand) SetFlags(*flag.FlagSet) {}
func (c *AbortCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	c.App.Coordinator.Abort()
	return subcommands.ExitSuccess
}
