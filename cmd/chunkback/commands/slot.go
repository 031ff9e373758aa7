package commands

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/google/subcommands"

	"github.com/OCharnyshevich/chunkback/cmd/chunkback/app"
	"github.com/OCharnyshevich/chunkback/internal/engine"
	"github.com/OCharnyshevich/chunkback/internal/slotmgr"
)

// DelCommand implements "del [-s] <slot>": delete one numbered slot
// outright and close the resulting gap, grounded on cb_del.
type DelCommand struct {
	App    *app.App
	Static bool
}

func (*DelCommand) Name() string     { return "del" }
func (*DelCommand) Synopsis() string { return "delete a numbered backup slot" }
func (*DelCommand) Usage() string    { return "del [-s] <slot>\n" }

func (c *DelCommand) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.Static, "s", false, "target the static backup root")
}

func (c *DelCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) != 1 {
		return usageError(c.App, c.Usage())
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return fail(c.App, fmt.Errorf("invalid slot %q", args[0]))
	}
	root := slotmgr.ResolveBackupRoot(c.Static)
	if err := c.App.Slots.DeleteSlot(root, n); err != nil {
		return fail(c.App, err)
	}
	if err := c.App.Slots.Normalize(root); err != nil {
		return fail(c.App, err)
	}
	c.App.Adapter.Reply(fmt.Sprintf("slot%d deleted from the %s root", n, root))
	return subcommands.ExitSuccess
}

// ListCommand implements "list [-s] [page]": list the numbered slots under
// one root, grounded on cb_list's paginated table. A page is 10 entries.
type ListCommand struct {
	App    *app.App
	Static bool
}

const listPageSize = 10

func (*ListCommand) Name() string     { return "list" }
func (*ListCommand) Synopsis() string { return "list the numbered slots under a backup root" }
func (*ListCommand) Usage() string    { return "list [-s] [page]\n" }

func (c *ListCommand) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.Static, "s", false, "list the static backup root")
}

func (c *ListCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	page := 1
	if args := f.Args(); len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fail(c.App, fmt.Errorf("invalid page %q", args[0]))
		}
		page = n
	}

	root := slotmgr.ResolveBackupRoot(c.Static)
	slots, err := c.App.Slots.ListNumericSlots(root)
	if err != nil {
		return fail(c.App, err)
	}

	start := (page - 1) * listPageSize
	if start >= len(slots) {
		c.App.Adapter.Reply(fmt.Sprintf("page %d is empty", page))
		return subcommands.ExitSuccess
	}
	end := start + listPageSize
	if end > len(slots) {
		end = len(slots)
	}
	for _, n := range slots[start:end] {
		m, err := engine.ReadManifest(c.App.Slots.SlotPath(root, n))
		if err != nil {
			c.App.Adapter.Reply(fmt.Sprintf("slot%d: %v", n, err))
			continue
		}
		c.App.Adapter.Reply(fmt.Sprintf("slot%d: %s %s %q", n, m.Time, m.BackupType, m.Comment))
	}
	return subcommands.ExitSuccess
}

// ShowCommand implements "show [-s] [slot] [page]" and
// "show overwrite [page]": display one slot's manifest, optionally paginating its
// sub-slot list for a custom-kind slot, grounded on cb_show.
type ShowCommand struct {
	App    *app.App
	Static bool
}

func (*ShowCommand) Name() string     { return "show" }
func (*ShowCommand) Synopsis() string { return "show a slot's manifest" }
func (*ShowCommand) Usage() string    { return "show [-s] [slot|overwrite] [page]\n" }

func (c *ShowCommand) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.Static, "s", false, "look in the static backup root")
}

func (c *ShowCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	root := slotmgr.ResolveBackupRoot(c.Static)

	var slotDir, label string
	if len(args) > 0 && args[0] == "overwrite" {
		slotDir = c.App.OverwriteSlotDir()
		label = "overwrite"
		args = args[1:]
	} else {
		n := 1
		if len(args) > 0 {
			if parsed, err := strconv.Atoi(args[0]); err == nil {
				n = parsed
				args = args[1:]
			}
		}
		slotDir = c.App.Slots.SlotPath(root, n)
		label = fmt.Sprintf("slot%d", n)
	}

	m, err := engine.ReadManifest(slotDir)
	if err != nil {
		return fail(c.App, err)
	}

	c.App.Adapter.Reply(fmt.Sprintf("%s: %s %s by %s: %q", label, m.Time, m.BackupType, m.User, m.Comment))
	if m.BackupType != engine.KindCustom || len(m.SubSlot) == 0 {
		return subcommands.ExitSuccess
	}

	start := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err == nil && n >= 1 {
			start = (n - 1) * listPageSize
		}
	}
	end := start + listPageSize
	if end > len(m.SubSlot) {
		end = len(m.SubSlot)
	}
	if start >= len(m.SubSlot) {
		c.App.Adapter.Reply("no sub-slots on that page")
		return subcommands.ExitSuccess
	}
	for _, sub := range m.SubSlot[start:end] {
		c.App.Adapter.Reply(fmt.Sprintf("  sub-slot %d: %s (%s)", sub.Key, sub.Comment, sub.Dimension))
	}
	return subcommands.ExitSuccess
}

// SetCommand implements "set slot [-s] <length>" and "set max_chunk_length
// <length>": mutate a capacity or limit field and persist it, grounded on
// cb_set.
type SetCommand struct {
	App    *app.App
	Static bool
}

func (*SetCommand) Name() string     { return "set" }
func (*SetCommand) Synopsis() string { return "change a capacity or limit setting" }
func (*SetCommand) Usage() string {
	return "set slot [-s] <length>\nset max_chunk_length <length>\n"
}

func (c *SetCommand) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.Static, "s", false, "set the static root's slot capacity")
}

func (c *SetCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) != 2 {
		return usageError(c.App, c.Usage())
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 1 {
		return fail(c.App, fmt.Errorf("invalid length %q", args[1]))
	}

	switch args[0] {
	case "slot":
		if c.Static {
			c.App.Config.StaticSlot = n
			c.App.Slots.StaticCapacity = n
		} else {
			c.App.Config.Slot = n
			c.App.Slots.DynamicCapacity = n
		}
	case "max_chunk_length":
		c.App.Config.MaxChunkLength = n
	default:
		return usageError(c.App, c.Usage())
	}

	if err := c.App.Save(); err != nil {
		return fail(c.App, err)
	}
	c.App.Adapter.Reply(fmt.Sprintf("%s set to %d", args[0], n))
	return subcommands.ExitSuccess
}

// ReloadCommand implements "reload": re-read the configuration file and
// rewire every component from it, grounded on cb_reload.
type ReloadCommand struct{ App *app.App }

func (*ReloadCommand) Name() string           { return "reload" }
func (*ReloadCommand) Synopsis() string       { return "reload configuration from disk" }
func (*ReloadCommand) Usage() string          { return "reload\n" }
func (*ReloadCommand) SetFlags(*flag.FlagSet) {}

func (c *ReloadCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.App.Reload(); err != nil {
		return fail(c.App, err)
	}
	c.App.Adapter.Reply("configuration reloaded")
	return subcommands.ExitSuccess
}

// ForceReloadCommand implements "force_reload": reload plus an unconditional
// coordinator reset, discarding any in-progress operation (spec.md §5
// Cancellation).
type ForceReloadCommand struct{ App *app.App }

func (*ForceReloadCommand) Name() string           { return "force_reload" }
func (*ForceReloadCommand) Synopsis() string       { return "cancel any in-progress operation and reload configuration" }
func (*ForceReloadCommand) Usage() string          { return "force_reload\n" }
func (*ForceReloadCommand) SetFlags(*flag.FlagSet) {}

func (c *ForceReloadCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.App.ForceReload(); err != nil {
		return fail(c.App, err)
	}
	c.App.Adapter.Reply("in-progress operation cancelled, configuration reloaded")
	return subcommands.ExitSuccess
}
