package commands

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/google/subcommands"

	"github.com/OCharnyshevich/chunkback/cmd/chunkback/app"
	"github.com/OCharnyshevich/chunkback/cmd/chunkback/localhost"
	"github.com/OCharnyshevich/chunkback/internal/slotmgr"
	"github.com/OCharnyshevich/chunkback/pkg/selector"
)

// CustomCommand implements the "custom" command group as a nested
// google/subcommands.Commander wrapped in a Command of its own — the shape
// the original's SimpleCommandBuilder used for its own "custom" sub-tree
// (cb_custom_create/cb_custom_make/...). fs is the flag.FlagSet the nested
// Commander was built against; Execute re-parses the outer invocation's
// remaining arguments into it before delegating.
type CustomCommand struct {
	App *app.App
	fs  *flag.FlagSet
	cdr *subcommands.Commander
}

// NewCustomCommand builds the "custom" command and registers every
// sub-subcommand on its nested Commander.
func NewCustomCommand(a *app.App) *CustomCommand {
	fs := flag.NewFlagSet("custom", flag.ContinueOnError)
	cdr := subcommands.NewCommander(fs, "custom")
	cdr.Register(&CustomCreateCommand{App: a}, "")
	cdr.Register(&CustomMakeCommand{App: a}, "")
	cdr.Register(&CustomPMakeCommand{App: a}, "")
	cdr.Register(&CustomDelCommand{App: a}, "")
	cdr.Register(&CustomSaveCommand{App: a}, "")
	cdr.Register(&CustomShowCommand{App: a}, "")
	cdr.Register(&CustomListCommand{App: a}, "")
	cdr.Register(cdr.HelpCommand(), "")
	return &CustomCommand{App: a, fs: fs, cdr: cdr}
}

func (*CustomCommand) Name() string     { return "custom" }
func (*CustomCommand) Synopsis() string { return "manage named, composite custom backups" }
func (*CustomCommand) Usage() string {
	return "custom <create|make|pmake|del|save|show|list> ...\n"
}
func (*CustomCommand) SetFlags(*flag.FlagSet) {}

func (c *CustomCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if err := c.fs.Parse(f.Args()); err != nil {
		return subcommands.ExitUsageError
	}
	return c.cdr.Execute(ctx, args...)
}

// CustomCreateCommand implements "custom create <name>".
type CustomCreateCommand struct{ App *app.App }

func (*CustomCreateCommand) Name() string           { return "create" }
func (*CustomCreateCommand) Synopsis() string       { return "create a new named custom backup" }
func (*CustomCreateCommand) Usage() string          { return "custom create <name>\n" }
func (*CustomCreateCommand) SetFlags(*flag.FlagSet) {}

func (c *CustomCreateCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) != 1 {
		return usageError(c.App, c.Usage())
	}
	now := time.Now().UTC().Format("2006-01-02 15:04:05")
	if err := c.App.CustomCreate(args[0], "console", now); err != nil {
		return fail(c.App, err)
	}
	c.App.Adapter.Reply(fmt.Sprintf("custom backup %q created", args[0]))
	return subcommands.ExitSuccess
}

// CustomMakeCommand implements "custom make <name> <radius> [comment]": a
// player-centered radius selection added as name's next sub-slot.
type CustomMakeCommand struct {
	App       *app.App
	Player    string
	X, Y, Z   float64
	Dimension string
}

func (*CustomMakeCommand) Name() string { return "make" }
func (*CustomMakeCommand) Synopsis() string {
	return "add a player-centered radius sub-slot to a custom backup"
}
func (*CustomMakeCommand) Usage() string {
	return "custom make [-player NAME] [-x X] [-y Y] [-z Z] [-dimension KEY] <name> <radius> [comment...]\n"
}

func (c *CustomMakeCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.Player, "player", "console", "name of the player whose position to center on")
	f.Float64Var(&c.X, "x", 0, "player x position")
	f.Float64Var(&c.Y, "y", 64, "player y position")
	f.Float64Var(&c.Z, "z", 0, "player z position")
	f.StringVar(&c.Dimension, "dimension", "0", "dimension key the player is standing in")
}

func (c *CustomMakeCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 2 {
		return usageError(c.App, c.Usage())
	}
	name := args[0]
	radius, err := strconv.Atoi(args[1])
	if err != nil || radius < 0 {
		return fail(c.App, fmt.Errorf("invalid radius %q", args[1]))
	}
	comment := commentFrom(args[2:])

	c.App.Adapter.SetPlayerState(c.Player, localhost.PlayerState{
		Coord:     [3]float64{c.X, c.Y, c.Z},
		Dimension: c.Dimension,
	})
	coord, dimID, err := c.App.Coordinator.PlayerPosition(ctx, c.Player)
	if err != nil {
		return fail(c.App, err)
	}
	dimKey, ok := c.App.ResolveDimensionID(dimID)
	if !ok {
		return fail(c.App, fmt.Errorf("player is standing in an unconfigured dimension %q", dimID))
	}

	now := time.Now().UTC().Format("2006-01-02 15:04:05")
	center := selector.WorldPoint{X: int(coord[0]), Z: int(coord[2])}
	key, err := c.App.CustomAddRadius(name, dimKey, center, radius, comment, fmt.Sprintf("make %d", radius), c.Player, now)
	if err != nil {
		return fail(c.App, err)
	}
	c.App.Adapter.Reply(c.App.Adapter.Translate("prompt_msg.custom.create_sub_slot_success", key))
	return subcommands.ExitSuccess
}

// CustomPMakeCommand implements "custom pmake <name> <x1> <z1> <x2> <z2> in
// <dimension> [comment]": a two-corner rectangle selection added as name's
// next sub-slot.
type CustomPMakeCommand struct{ App *app.App }

func (*CustomPMakeCommand) Name() string { return "pmake" }
func (*CustomPMakeCommand) Synopsis() string {
	return "add a two-corner rectangle sub-slot to a custom backup"
}
func (*CustomPMakeCommand) Usage() string {
	return "custom pmake <name> <x1> <z1> <x2> <z2> in <dimension> [comment...]\n"
}
func (*CustomPMakeCommand) SetFlags(*flag.FlagSet) {}

func (c *CustomPMakeCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 7 || args[5] != "in" {
		return usageError(c.App, c.Usage())
	}
	name := args[0]
	p1, err := parsePoint(args[1], args[2])
	if err != nil {
		return fail(c.App, err)
	}
	p2, err := parsePoint(args[3], args[4])
	if err != nil {
		return fail(c.App, err)
	}
	dimKey := args[6]
	comment := commentFrom(args[7:])

	now := time.Now().UTC().Format("2006-01-02 15:04:05")
	command := fmt.Sprintf("pmake %d %d %d %d in %s", p1.X, p1.Z, p2.X, p2.Z, dimKey)
	key, err := c.App.CustomAddRectangle(name, dimKey, p1, p2, comment, command, "console", now)
	if err != nil {
		return fail(c.App, err)
	}
	c.App.Adapter.Reply(c.App.Adapter.Translate("prompt_msg.custom.create_sub_slot_success", key))
	return subcommands.ExitSuccess
}

// CustomDelCommand implements "custom del <name> [sub_slot]": delete either
// an entire definition, or a single sub-slot within it.
type CustomDelCommand struct{ App *app.App }

func (*CustomDelCommand) Name() string           { return "del" }
func (*CustomDelCommand) Synopsis() string       { return "delete a custom backup or one of its sub-slots" }
func (*CustomDelCommand) Usage() string          { return "custom del <name> [sub_slot]\n" }
func (*CustomDelCommand) SetFlags(*flag.FlagSet) {}

func (c *CustomDelCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		return usageError(c.App, c.Usage())
	}
	name := args[0]
	if len(args) == 1 {
		if err := c.App.CustomDeleteDefinition(name); err != nil {
			return fail(c.App, err)
		}
		c.App.Adapter.Reply(fmt.Sprintf("custom backup %q deleted", name))
		return subcommands.ExitSuccess
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 1 {
		return fail(c.App, fmt.Errorf("invalid sub-slot %q", args[1]))
	}
	if err := c.App.CustomDeleteSubSlot(name, n); err != nil {
		return fail(c.App, err)
	}
	c.App.Adapter.Reply(fmt.Sprintf("sub-slot %d of %q deleted", n, name))
	return subcommands.ExitSuccess
}

// CustomSaveCommand implements "custom save [-s] <name> [comment]": a
// custom-kind snapshot of every one of name's registered sub-slots.
type CustomSaveCommand struct {
	App    *app.App
	Static bool
}

func (*CustomSaveCommand) Name() string     { return "save" }
func (*CustomSaveCommand) Synopsis() string { return "snapshot every sub-slot of a custom backup" }
func (*CustomSaveCommand) Usage() string    { return "custom save [-s] <name> [comment...]\n" }

func (c *CustomSaveCommand) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.Static, "s", false, "target the static backup root")
}

func (c *CustomSaveCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		return usageError(c.App, c.Usage())
	}
	name := args[0]
	comment := commentFrom(args[1:])
	root := slotmgr.ResolveBackupRoot(c.Static)
	m, err := c.App.CustomSave(ctx, root, name, comment, "custom save", "console")
	if err != nil {
		return fail(c.App, err)
	}
	c.App.Adapter.Reply(fmt.Sprintf("custom backup %q saved at %s", name, m.Time))
	return subcommands.ExitSuccess
}

// CustomShowCommand implements "custom show <name> [page]": list a custom
// backup's registered sub-slots.
type CustomShowCommand struct{ App *app.App }

func (*CustomShowCommand) Name() string           { return "show" }
func (*CustomShowCommand) Synopsis() string       { return "show a custom backup's registered sub-slots" }
func (*CustomShowCommand) Usage() string          { return "custom show <name> [page]\n" }
func (*CustomShowCommand) SetFlags(*flag.FlagSet) {}

func (c *CustomShowCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		return usageError(c.App, c.Usage())
	}
	def, err := c.App.Custom.Get(args[0])
	if err != nil {
		return fail(c.App, err)
	}
	keys := def.OrderedSubSlots()
	start := 0
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[1]); err == nil && n >= 1 {
			start = (n - 1) * listPageSize
		}
	}
	if start >= len(keys) {
		c.App.Adapter.Reply("no sub-slots on that page")
		return subcommands.ExitSuccess
	}
	end := start + listPageSize
	if end > len(keys) {
		end = len(keys)
	}
	for _, k := range keys[start:end] {
		slot := def.SubSlots[k]
		c.App.Adapter.Reply(fmt.Sprintf("  sub-slot %d: %q (%s)", k, slot.Comment, slot.Command))
	}
	return subcommands.ExitSuccess
}

// CustomListCommand implements "custom list [page]": list every registered
// custom backup and its sub-slot count.
type CustomListCommand struct{ App *app.App }

func (*CustomListCommand) Name() string           { return "list" }
func (*CustomListCommand) Synopsis() string       { return "list every registered custom backup" }
func (*CustomListCommand) Usage() string          { return "custom list [page]\n" }
func (*CustomListCommand) SetFlags(*flag.FlagSet) {}

func (c *CustomListCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	page := 1
	if args := f.Args(); len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n >= 1 {
			page = n
		}
	}
	items := c.App.Custom.List()
	start := (page - 1) * listPageSize
	if start >= len(items) {
		c.App.Adapter.Reply(fmt.Sprintf("page %d is empty", page))
		return subcommands.ExitSuccess
	}
	end := start + listPageSize
	if end > len(items) {
		end = len(items)
	}
	for _, it := range items[start:end] {
		c.App.Adapter.Reply(fmt.Sprintf("%s: %d sub-slot(s)", it.Name, it.Count))
	}
	return subcommands.ExitSuccess
}
