// Package app wires the standalone library packages (internal/slotmgr,
// internal/engine, internal/custom, internal/coordinator) into the single
// object cmd/chunkback's subcommands share, the way an embedding plugin
// loader would. None of this wiring belongs to "the system" itself — it is
// the CLI's own composition root.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/OCharnyshevich/chunkback/internal/config"
	"github.com/OCharnyshevich/chunkback/internal/coordinator"
	"github.com/OCharnyshevich/chunkback/internal/custom"
	"github.com/OCharnyshevich/chunkback/internal/engine"
	"github.com/OCharnyshevich/chunkback/internal/host"
	"github.com/OCharnyshevich/chunkback/internal/slotmgr"
	"github.com/OCharnyshevich/chunkback/pkg/selector"

	"github.com/OCharnyshevich/chunkback/cmd/chunkback/localhost"
	"github.com/OCharnyshevich/chunkback/cmd/chunkback/tui"
)

// App is the composition root: every subcommand gets one of these and calls
// straight into the wired components.
type App struct {
	ConfigPath string
	Config     *config.Document

	Slots       *slotmgr.Manager
	Dimensions  engine.DimensionTable
	Engine      *engine.Engine
	Custom      *custom.Registry
	Coordinator *coordinator.Coordinator

	Adapter *localhost.LocalAdapter
	Waiter  *host.Waiter
	Logger  *slog.Logger

	// customMu guards customGeom, the chunk-selection geometry recorded
	// against each custom sub-slot. internal/custom.Registry only tracks
	// naming/metadata and reindexing (spec.md §4.E); the geometry a later
	// "custom save" replays lives here, keyed by the sub-slot's stable ID so
	// a Registry reindex never desynchronizes it from its entry.
	customMu   sync.Mutex
	customGeom map[string]map[uuid.UUID]customGeomEntry
}

// customGeomEntry is the chunk selection recorded when a sub-slot was added
// via "custom make" or "custom pmake", resolved again into a Grouping and a
// pair of corner chunks each time "custom save" runs.
type customGeomEntry struct {
	DimensionKey string
	Selector     *selector.Selector
}

// Open loads configPath (falling back to config.Default if absent) and
// wires every component from it, mirroring original_source/chunk_backup's
// on_load.
func Open(configPath string) (*App, error) {
	logger := slog.Default()

	doc, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("app: load config: %w", err)
	}

	dims := make(engine.DimensionTable, len(doc.DimensionInfo))
	for key, entry := range doc.DimensionInfo {
		dims[key] = engine.DimensionEntry{
			DimensionID:      entry.DimensionID,
			WorldName:        entry.WorldName,
			RegionSubfolders: entry.RegionSubfolders,
		}
	}
	if !dims.CheckDimension() {
		return nil, fmt.Errorf("app: configured dimensions are not bijective (two keys share a dimension id)")
	}

	slots := slotmgr.New(doc.BackupPath, doc.StaticBackupPath, doc.Slot, doc.StaticSlot)
	if err := slots.EnsureRoots(); err != nil {
		return nil, err
	}

	eng := engine.New(slots, dims, doc.ServerPath, doc.MaxWorkers, doc.OverwriteBackupFolder, logger)

	waiter := host.NewWaiter()
	logPath := filepath.Join(doc.ServerPath, "chunkback-host.log")
	adapter := localhost.New(logPath, logger)

	coord := coordinator.New(adapter, waiter, toCoordinatorDataGetter(doc.DataGetter), 10*time.Second, 10*time.Second, logger)
	adapter.SetLogSink(coord.OnServerLog)

	return &App{
		ConfigPath:  configPath,
		Config:      doc,
		Slots:       slots,
		Dimensions:  dims,
		Engine:      eng,
		Custom:      custom.NewRegistry(),
		Coordinator: coord,
		Adapter:     adapter,
		Waiter:      waiter,
		Logger:      logger,
		customGeom:  make(map[string]map[uuid.UUID]customGeomEntry),
	}, nil
}

// Reload re-reads ConfigPath and rewires the slot manager, dimension table,
// engine, and coordinator data-getter against the fresh document — the
// effect of the reload command (spec.md §5). The custom registry and its
// recorded sub-slot geometry are process-lifetime state and survive reload
// untouched, matching the original's module-level custom_dict.
func (a *App) Reload() error {
	doc, err := config.Load(a.ConfigPath)
	if err != nil {
		return fmt.Errorf("app: reload config: %w", err)
	}

	dims := make(engine.DimensionTable, len(doc.DimensionInfo))
	for key, entry := range doc.DimensionInfo {
		dims[key] = engine.DimensionEntry{
			DimensionID:      entry.DimensionID,
			WorldName:        entry.WorldName,
			RegionSubfolders: entry.RegionSubfolders,
		}
	}
	if !dims.CheckDimension() {
		return fmt.Errorf("app: configured dimensions are not bijective (two keys share a dimension id)")
	}

	slots := slotmgr.New(doc.BackupPath, doc.StaticBackupPath, doc.Slot, doc.StaticSlot)
	if err := slots.EnsureRoots(); err != nil {
		return err
	}

	a.Config = doc
	a.Dimensions = dims
	a.Slots = slots
	a.Engine = engine.New(slots, dims, doc.ServerPath, doc.MaxWorkers, doc.OverwriteBackupFolder, a.Logger)
	a.Coordinator.DataGetter = toCoordinatorDataGetter(doc.DataGetter)
	return nil
}

// ForceReload is Reload plus an unconditional coordinator reset, the effect
// of force_reload (spec.md §5 Cancellation): any in-progress operation's
// state is discarded first, rather than Reload's implicit no-op while one
// is active.
func (a *App) ForceReload() error {
	a.Coordinator.ForceReset()
	return a.Reload()
}

// Save persists the current config document back to ConfigPath.
func (a *App) Save() error {
	return config.Save(a.ConfigPath, a.Config)
}

// toCoordinatorDataGetter rewrites config.DataGetter's "{name}" placeholder
// templates into the Sprintf-style "%s" templates internal/coordinator
// expects. The two packages intentionally don't share a type (internal/
// coordinator must not import internal/config — see coordinator.DataGetter's
// doc comment) so the CLI, as the embedding application, owns the
// translation between the two template styles.
func toCoordinatorDataGetter(d config.DataGetter) coordinator.DataGetter {
	conv := func(s string) string { return strings.ReplaceAll(s, "{name}", "%s") }
	return coordinator.DataGetter{
		GetPos:            conv(d.GetPos),
		GetDimension:      conv(d.GetDimension),
		SaveWorlds:        d.SaveWorlds,
		AutoSaveOff:       d.AutoSaveOff,
		AutoSaveOn:        d.AutoSaveOn,
		GetPosRegex:       conv(d.GetPosRegex),
		GetDimensionRegex: conv(d.GetDimensionRegex),
		SaveOffRegex:      d.SaveOffRegex,
		SavedWorldRegex:   d.SavedWorldRegex,
	}
}

// ResolveDimensionKey validates that key names a configured dimension,
// returning the InputDimError the coordinator's error taxonomy defines.
func (a *App) ResolveDimensionKey(key string) (engine.DimensionEntry, error) {
	entry, ok := a.Dimensions[key]
	if !ok {
		return engine.DimensionEntry{}, coordinator.NewInputDimError()
	}
	return entry, nil
}

// ResolveDimensionID maps a dimension id as a live player's "Dimension"
// data-get response reports it (e.g. "minecraft:overworld") back to its
// configured short key (e.g. "0"), the reverse of ResolveDimensionKey.
func (a *App) ResolveDimensionID(dimensionID string) (string, bool) {
	swapped := a.Dimensions.Swapped()
	if swapped == nil {
		return "", false
	}
	entry, ok := swapped[dimensionID]
	if !ok {
		return "", false
	}
	return entry.Key, true
}

// ParseDimensionList parses a comma-separated list of dimension keys as
// cb_dim_make's pattern does, rejecting repeats and unknown keys.
func (a *App) ParseDimensionList(raw string) ([]string, error) {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '，' })
	if len(parts) == 0 {
		return nil, coordinator.NewInvalidInput()
	}
	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, coordinator.NewInvalidInput()
		}
		if seen[p] {
			return nil, coordinator.NewInputDimRepeat()
		}
		seen[p] = true
		if _, ok := a.Dimensions[p]; !ok {
			return nil, coordinator.NewInputDimError()
		}
		out = append(out, p)
	}
	return out, nil
}

// ParseSubSlotGroups parses a comma-separated list of positive, non-zero-
// leading integers, exactly as spec.md's sub_slot_groups validation (the
// original's cb_back digit/leading-zero/range checks).
func ParseSubSlotGroups(raw string) ([]int, error) {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '，' })
	if len(parts) == 0 {
		return nil, coordinator.NewInvalidInput()
	}
	seen := make(map[int]bool, len(parts))
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return nil, coordinator.NewInvalidInput()
		}
		for _, r := range p {
			if r < '0' || r > '9' {
				return nil, coordinator.NewInvalidInput()
			}
		}
		if len(p) > 1 && p[0] == '0' {
			return nil, coordinator.NewInvalidInput()
		}
		n := 0
		for _, r := range p {
			n = n*10 + int(r-'0')
		}
		if n < 1 {
			return nil, coordinator.NewInvalidInput()
		}
		if seen[n] {
			return nil, coordinator.NewInputSlotRepeat()
		}
		seen[n] = true
		out = append(out, n)
	}
	return out, nil
}

// SlotInfoPath is the info.json path for slot n under root.
func (a *App) SlotInfoPath(root slotmgr.Root, n int) string {
	return filepath.Join(a.Slots.SlotPath(root, n), "info.json")
}

// OverwriteSlotDir is the path of the dynamic root's overwrite buffer.
func (a *App) OverwriteSlotDir() string {
	return filepath.Join(a.Slots.DynamicPath, a.Config.OverwriteBackupFolder)
}

// Exists reports whether path names an existing file or directory.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// withSnapshotHandshake wraps fn in the single-flight claim and the
// save-off/save-all/save-on host handshake of spec.md §4.F: by the time fn
// runs, the world is quiescent on disk and safe to read. Autosave is always
// restored on the way out, whether fn succeeds, fails, or the handshake
// itself times out.
func (a *App) withSnapshotHandshake(ctx context.Context, fn func() (*engine.Manifest, error)) (*engine.Manifest, error) {
	h, err := a.Coordinator.TryBegin(coordinator.OpSnapshot)
	if err != nil {
		return nil, err
	}
	defer a.Coordinator.Finish(h)

	if err := a.Coordinator.SaveOff(ctx); err != nil {
		a.Coordinator.SaveOn()
		return nil, err
	}
	if err := a.Coordinator.SaveAll(ctx); err != nil {
		a.Coordinator.SaveOn()
		return nil, err
	}

	manifest, err := fn()
	a.Coordinator.SaveOn()
	if err != nil {
		return nil, err
	}
	return manifest, nil
}

// snapshotFromSelector runs a chunk-kind snapshot of sel's chunks within
// dimKey, populating the manifest's ChunkTopLeftPos/ChunkBottomRightPos from
// the selector's own bounds.
func (a *App) snapshotFromSelector(ctx context.Context, root slotmgr.Root, dimKey string, sel *selector.Selector, comment, command, user string, userPos *[3]float64) (*engine.Manifest, error) {
	topLeft, bottomRight := sel.CornerChunks()
	return a.withSnapshotHandshake(ctx, func() (*engine.Manifest, error) {
		return a.Engine.Snapshot(ctx, engine.SnapshotRequest{
			Kind: engine.KindChunk,
			Root: root,
			ChunkSpecs: []engine.ChunkSnapshotSpec{
				{DimensionKey: dimKey, Grouping: sel.GroupByRegion()},
			},
			Comment:             comment,
			Command:             command,
			User:                user,
			UserPos:             userPos,
			ChunkTopLeftPos:     &topLeft,
			ChunkBottomRightPos: &bottomRight,
		})
	})
}

// SnapshotRadius implements the "make" command: a player-centered
// radius-chunk snapshot in dimKey, grounded on cb_make/cb_pos_make.
func (a *App) SnapshotRadius(ctx context.Context, root slotmgr.Root, dimKey string, center selector.WorldPoint, radiusChunks int, comment, command, user string, userPos [3]float64) (*engine.Manifest, error) {
	if _, err := a.ResolveDimensionKey(dimKey); err != nil {
		return nil, err
	}
	sel, err := selector.NewCenterRadius(center, radiusChunks, a.Config.MaxChunkLength)
	if err != nil {
		return nil, err
	}
	return a.snapshotFromSelector(ctx, root, dimKey, sel, comment, command, user, &userPos)
}

// SnapshotRectangle implements the "pmake" command: a two-corner rectangle
// snapshot against an explicitly named dimension, grounded on cb_pmake. It
// never needs a player-position handshake — both corners and the dimension
// are given directly on the command line.
func (a *App) SnapshotRectangle(ctx context.Context, root slotmgr.Root, dimKey string, p1, p2 selector.WorldPoint, comment, command, user string) (*engine.Manifest, error) {
	if _, err := a.ResolveDimensionKey(dimKey); err != nil {
		return nil, err
	}
	sel, err := selector.NewRectangle(p1, p2, a.Config.MaxChunkLength)
	if err != nil {
		return nil, err
	}
	return a.snapshotFromSelector(ctx, root, dimKey, sel, comment, command, user, nil)
}

// SnapshotRegion implements the "dmake" command: a whole-dimension,
// region-kind copy of every configured subfolder under each of dimKeys,
// grounded on cb_dim_make.
func (a *App) SnapshotRegion(ctx context.Context, root slotmgr.Root, dimKeys []string, comment, command, user string) (*engine.Manifest, error) {
	for _, k := range dimKeys {
		if _, err := a.ResolveDimensionKey(k); err != nil {
			return nil, err
		}
	}
	return a.withSnapshotHandshake(ctx, func() (*engine.Manifest, error) {
		return a.Engine.Snapshot(ctx, engine.SnapshotRequest{
			Kind:             engine.KindRegion,
			Root:             root,
			RegionDimensions: dimKeys,
			Comment:          comment,
			Command:          command,
			User:             user,
		})
	})
}

// CustomCreate registers a new, empty custom backup definition, the effect
// of "custom create".
func (a *App) CustomCreate(name, userCreated, timeCreated string) error {
	if err := a.Custom.Create(name, userCreated, timeCreated); err != nil {
		return err
	}
	a.customMu.Lock()
	a.customGeom[name] = make(map[uuid.UUID]customGeomEntry)
	a.customMu.Unlock()
	return nil
}

// addCustomSubSlot appends slot's metadata to name's definition and records
// sel's geometry under the sub-slot's own stable ID, so later reindexing of
// the definition's integer keys (internal/custom.Definition.reindex) never
// separates a sub-slot from the chunk selection it was captured with.
func (a *App) addCustomSubSlot(name, dimKey string, sel *selector.Selector, comment, command, userCreated, timeCreated string) (int, error) {
	id := uuid.New()
	key, err := a.Custom.AddSubSlot(name, custom.SubSlot{
		ID:          id,
		Comment:     comment,
		Command:     command,
		UserCreated: userCreated,
		TimeCreated: timeCreated,
	})
	if err != nil {
		return 0, err
	}
	a.customMu.Lock()
	if a.customGeom[name] == nil {
		a.customGeom[name] = make(map[uuid.UUID]customGeomEntry)
	}
	a.customGeom[name][id] = customGeomEntry{DimensionKey: dimKey, Selector: sel}
	a.customMu.Unlock()
	return key, nil
}

// CustomAddRadius implements "custom make <name> <radius> [comment]": a
// player-centered radius selection added as name's next sub-slot.
func (a *App) CustomAddRadius(name, dimKey string, center selector.WorldPoint, radiusChunks int, comment, command, userCreated, timeCreated string) (int, error) {
	if _, err := a.ResolveDimensionKey(dimKey); err != nil {
		return 0, err
	}
	sel, err := selector.NewCenterRadius(center, radiusChunks, a.Config.MaxChunkLength)
	if err != nil {
		return 0, err
	}
	return a.addCustomSubSlot(name, dimKey, sel, comment, command, userCreated, timeCreated)
}

// CustomAddRectangle implements "custom pmake <name> <x1> <z1> <x2> <z2> in
// <dimension>": a two-corner rectangle selection added as name's next
// sub-slot.
func (a *App) CustomAddRectangle(name, dimKey string, p1, p2 selector.WorldPoint, comment, command, userCreated, timeCreated string) (int, error) {
	if _, err := a.ResolveDimensionKey(dimKey); err != nil {
		return 0, err
	}
	sel, err := selector.NewRectangle(p1, p2, a.Config.MaxChunkLength)
	if err != nil {
		return 0, err
	}
	return a.addCustomSubSlot(name, dimKey, sel, comment, command, userCreated, timeCreated)
}

// CustomDeleteSubSlot removes one sub-slot from name's definition, along
// with its recorded geometry, the effect of "custom del <name> <sub_slot>".
func (a *App) CustomDeleteSubSlot(name string, subSlot int) error {
	def, err := a.Custom.Get(name)
	if err != nil {
		return err
	}
	slot, ok := def.SubSlots[subSlot]
	if !ok {
		return &custom.ErrNotFound{Name: name, SubSlot: subSlot}
	}
	if err := a.Custom.DeleteSubSlot(name, subSlot); err != nil {
		return err
	}
	a.customMu.Lock()
	delete(a.customGeom[name], slot.ID)
	a.customMu.Unlock()
	return nil
}

// CustomDeleteDefinition removes name and every sub-slot's recorded
// geometry, the effect of "custom del <name>" with no sub-slot given.
func (a *App) CustomDeleteDefinition(name string) error {
	if err := a.Custom.DeleteDefinition(name); err != nil {
		return err
	}
	a.customMu.Lock()
	delete(a.customGeom, name)
	a.customMu.Unlock()
	return nil
}

// CustomSave implements "custom save [-s] <name>": a custom-kind snapshot
// exporting every one of name's sub-slots as its own isolated entry, so a
// later partial restore can select any subset of them (spec.md §4.E).
func (a *App) CustomSave(ctx context.Context, root slotmgr.Root, name, comment, command, user string) (*engine.Manifest, error) {
	def, err := a.Custom.Get(name)
	if err != nil {
		return nil, err
	}
	if len(def.SubSlots) == 0 {
		return nil, fmt.Errorf("app: custom backup %q has no sub-slots to save", name)
	}

	a.customMu.Lock()
	geom := a.customGeom[name]
	a.customMu.Unlock()

	subs := make([]engine.CustomSubSlotInput, 0, len(def.SubSlots))
	for _, key := range def.OrderedSubSlots() {
		slot := def.SubSlots[key]
		entry, ok := geom[slot.ID]
		if !ok {
			return nil, fmt.Errorf("app: custom backup %q sub-slot %d has no recorded chunk selection", name, key)
		}
		topLeft, bottomRight := entry.Selector.CornerChunks()
		subs = append(subs, engine.CustomSubSlotInput{
			DimensionKey: entry.DimensionKey,
			Grouping:     entry.Selector.GroupByRegion(),
			Descriptor: engine.SubSlotDescriptor{
				Key:                 key,
				ID:                  slot.ID.String(),
				Dimension:           a.Dimensions[entry.DimensionKey].DimensionID,
				Comment:             slot.Comment,
				Command:             slot.Command,
				UserCreated:         slot.UserCreated,
				TimeCreated:         slot.TimeCreated,
				ChunkTopLeftPos:     topLeft,
				ChunkBottomRightPos: bottomRight,
			},
		})
	}

	return a.withSnapshotHandshake(ctx, func() (*engine.Manifest, error) {
		return a.Engine.Snapshot(ctx, engine.SnapshotRequest{
			Kind:           engine.KindCustom,
			Root:           root,
			CustomSubSlots: subs,
			Comment:        comment,
			Command:        command,
			User:           user,
			CustomName:     name,
			UserCreated:    def.UserCreated,
			TimeCreated:    def.TimeCreated,
		})
	})
}

// RestoreSlot implements "back"/"restore": it validates slotDir, claims the
// coordinator, drives the confirm/countdown ceremony through the TUI, stops
// the host, restores slotDir, and restarts the host — spec.md §4.D/§4.F.
// slotLabel is the human-readable name broadcast during the countdown
// (e.g. "slot2" or the custom backup's name); isOverwriteBuffer and
// partialSubSlots are forwarded to engine.Engine.Restore unchanged.
//
// The manifest/region-presence validation (§4.D points 1–2) runs here
// before the coordinator is even claimed, so a restore against a
// nonexistent or malformed slot fails immediately instead of making the
// operator sit through the confirm/countdown ceremony and stopping the
// live server first.
func (a *App) RestoreSlot(ctx context.Context, slotDir string, isOverwriteBuffer bool, partialSubSlots []int, slotLabel string) (*engine.Manifest, error) {
	if _, err := a.Engine.ValidateRestoreInput(slotDir, partialSubSlots); err != nil {
		return nil, err
	}

	h, err := a.Coordinator.TryBegin(coordinator.OpRestore)
	if err != nil {
		return nil, err
	}

	lines := a.Adapter.Subscribe()
	defer a.Adapter.Unsubscribe(lines)

	result := make(chan error, 1)
	go func() { result <- a.Coordinator.RunConfirmCeremony(ctx, h, slotLabel) }()

	if err := tui.RunCeremony(a.Coordinator, lines, result); err != nil {
		a.Coordinator.Finish(h)
		return nil, err
	}

	if err := a.Adapter.StopServer(); err != nil {
		a.Coordinator.Finish(h)
		return nil, fmt.Errorf("app: stop host: %w", err)
	}

	manifest, restoreErr := a.Engine.Restore(ctx, engine.RestoreRequest{
		SlotDir:           slotDir,
		IsOverwriteBuffer: isOverwriteBuffer,
		PartialSubSlots:   partialSubSlots,
	})

	if err := a.Adapter.StartServer(); err != nil {
		a.Logger.Warn("app: failed to restart host after restore", "error", err)
	}
	a.Coordinator.Finish(h)

	if restoreErr != nil {
		return nil, restoreErr
	}
	return manifest, nil
}
