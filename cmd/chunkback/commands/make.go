package commands

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/google/subcommands"

	"github.com/OCharnyshevich/chunkback/cmd/chunkback/app"
	"github.com/OCharnyshevich/chunkback/cmd/chunkback/localhost"
	"github.com/OCharnyshevich/chunkback/internal/slotmgr"
	"github.com/OCharnyshevich/chunkback/pkg/selector"
)

// MakeCommand implements "make <radius> [comment]": a player-centered
// radius-chunk snapshot, grounded on
// original_source/chunk_backup/__init__.py's cb_make/cb_pos_make. A CLI has
// no live in-game player to query, so the operator supplies the player's
// standing position and dimension through flags; those are registered with
// the demonstration host adapter and then resolved through the same
// PlayerPosition handshake a real plugin would use.
type MakeCommand struct {
	App *app.App

	Static    bool
	Player    string
	X, Y, Z   float64
	Dimension string
}

func (*MakeCommand) Name() string     { return "make" }
func (*MakeCommand) Synopsis() string { return "snapshot the chunks within a radius of a player" }
func (c *MakeCommand) Usage() string {
	return "make [-s] [-player NAME] [-x X] [-y Y] [-z Z] [-dimension KEY] <radius> [comment...]\n"
}

func (c *MakeCommand) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.Static, "s", false, "target the static backup root")
	f.StringVar(&c.Player, "player", "console", "name of the player whose position to snapshot around")
	f.Float64Var(&c.X, "x", 0, "player x position")
	f.Float64Var(&c.Y, "y", 64, "player y position")
	f.Float64Var(&c.Z, "z", 0, "player z position")
	f.StringVar(&c.Dimension, "dimension", "0", "dimension key the player is standing in")
}

func (c *MakeCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		return usageError(c.App, c.Usage())
	}
	radius, err := strconv.Atoi(args[0])
	if err != nil || radius < 0 {
		return fail(c.App, fmt.Errorf("invalid radius %q", args[0]))
	}
	comment := commentFrom(args[1:])

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

	root := slotmgr.ResolveBackupRoot(c.Static)
	center := selector.WorldPoint{X: int(coord[0]), Z: int(coord[2])}
	m, err := c.App.SnapshotRadius(ctx, root, dimKey, center, radius, comment, "make", c.Player, coord)
	if err != nil {
		return fail(c.App, err)
	}
	c.App.Adapter.Reply(fmt.Sprintf("snapshot recorded at %s", m.Time))
	return subcommands.ExitSuccess
}

// PMakeCommand implements "pmake <x1> <z1> <x2> <z2> in <dimension>
// [comment]": a two-corner rectangle snapshot, grounded on cb_pmake. Unlike
// make, no player position is needed — both corners and the dimension are
// given directly.
type PMakeCommand struct {
	App    *app.App
	Static bool
}

func (*PMakeCommand) Name() string { return "pmake" }
func (*PMakeCommand) Synopsis() string {
	return "snapshot the chunks covered by a two-corner rectangle"
}
func (*PMakeCommand) Usage() string {
	return "pmake [-s] <x1> <z1> <x2> <z2> in <dimension> [comment...]\n"
}

func (c *PMakeCommand) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.Static, "s", false, "target the static backup root")
}

func (c *PMakeCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 6 || args[4] != "in" {
		return usageError(c.App, c.Usage())
	}
	p1, err := parsePoint(args[0], args[1])
	if err != nil {
		return fail(c.App, err)
	}
	p2, err := parsePoint(args[2], args[3])
	if err != nil {
		return fail(c.App, err)
	}
	dimKey := args[5]
	comment := commentFrom(args[6:])

	root := slotmgr.ResolveBackupRoot(c.Static)
	m, err := c.App.SnapshotRectangle(ctx, root, dimKey, p1, p2, comment, "pmake", "console")
	if err != nil {
		return fail(c.App, err)
	}
	c.App.Adapter.Reply(fmt.Sprintf("snapshot recorded at %s", m.Time))
	return subcommands.ExitSuccess
}

// DMakeCommand implements "dmake <dimension>[,<dimension>...] [comment]": a
// whole-dimension, region-kind snapshot of one or more dimensions at once,
// grounded on cb_dim_make.
type DMakeCommand struct {
	App    *app.App
	Static bool
}

func (*DMakeCommand) Name() string { return "dmake" }
func (*DMakeCommand) Synopsis() string {
	return "snapshot one or more dimensions wholesale"
}
func (*DMakeCommand) Usage() string {
	return "dmake [-s] <dimension>[,<dimension>...] [comment...]\n"
}

func (c *DMakeCommand) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.Static, "s", false, "target the static backup root")
}

func (c *DMakeCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		return usageError(c.App, c.Usage())
	}
	dimKeys, err := c.App.ParseDimensionList(args[0])
	if err != nil {
		return fail(c.App, err)
	}
	comment := commentFrom(args[1:])

	root := slotmgr.ResolveBackupRoot(c.Static)
	m, err := c.App.SnapshotRegion(ctx, root, dimKeys, comment, "dmake", "console")
	if err != nil {
		return fail(c.App, err)
	}
	c.App.Adapter.Reply(fmt.Sprintf("snapshot recorded at %s", m.Time))
	return subcommands.ExitSuccess
}
