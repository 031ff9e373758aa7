// Package engine implements the Backup Engine of spec.md §4.D: it turns a
// chunk selection (or a whole dimension, or a named custom backup) into a
// new slot on disk, and turns a slot back into live world state on
// restore, always going through pkg/anvil so chunk payload bytes are never
// interpreted.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/OCharnyshevich/chunkback/internal/slotmgr"
	"github.com/OCharnyshevich/chunkback/pkg/anvil"
)

// ChunkSnapshotSpec is one dimension's chunk selection for a chunk-kind
// snapshot, already grouped by region file.
type ChunkSnapshotSpec struct {
	DimensionKey string
	Grouping     anvil.Grouping
}

// CustomSubSlotInput is one sub-slot of a custom-kind snapshot: its region
// grouping for export, plus the manifest descriptor that will let a later
// partial restore rebuild the same selection.
type CustomSubSlotInput struct {
	DimensionKey string
	Grouping     anvil.Grouping
	Descriptor   SubSlotDescriptor
}

// SnapshotRequest describes one call to Engine.Snapshot.
type SnapshotRequest struct {
	Kind Kind
	Root slotmgr.Root

	ChunkSpecs       []ChunkSnapshotSpec  // Kind == KindChunk
	RegionDimensions []string             // Kind == KindRegion: dimension keys to copy wholesale
	CustomSubSlots   []CustomSubSlotInput // Kind == KindCustom

	Comment string
	Command string
	User    string

	UserPos             *[3]float64
	ChunkTopLeftPos     *[2]int
	ChunkBottomRightPos *[2]int

	CustomName  string
	UserCreated string
	TimeCreated string

	VersionCreated   string
	MinecraftVersion string
}

// RestoreRequest describes one call to Engine.Restore.
type RestoreRequest struct {
	SlotDir           string // absolute path to the slot being restored
	IsOverwriteBuffer bool
	PartialSubSlots   []int // nil: restore every sub-slot of a custom slot
}

// TaskFailure records one per-region task that failed during a snapshot or
// restore; the operation as a whole still completes (§4.D point 4,
// §5 Ordering).
type TaskFailure struct {
	Target string
	Err    error
}

// Engine ties the slot manager, the dimension table, and the region codec
// together into the snapshot/restore flows of spec.md §4.D.
type Engine struct {
	Slots           *slotmgr.Manager
	Dimensions      DimensionTable
	ServerPath      string
	MaxWorkers      int
	OverwriteFolder string
	Logger          *slog.Logger
}

// New returns an Engine. A nil logger falls back to slog.Default().
func New(slots *slotmgr.Manager, dims DimensionTable, serverPath string, maxWorkers int, overwriteFolder string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Engine{Slots: slots, Dimensions: dims, ServerPath: serverPath, MaxWorkers: maxWorkers, OverwriteFolder: overwriteFolder, Logger: logger}
}

func (e *Engine) overwriteDir() string {
	return filepath.Join(e.Slots.DynamicPath, e.OverwriteFolder)
}

// runPool executes tasks through a pool bounded by e.MaxWorkers using an
// errgroup for fan-out plus a semaphore to cap concurrency, per SPEC_FULL.md
// §4.D/§5. A task's own error is logged and recorded, never propagated to
// the group's Wait() error — only setup failures before the pool starts
// are hard errors.
func (e *Engine) runPool(ctx context.Context, tasks []func() error, targets []string) []TaskFailure {
	sem := semaphore.NewWeighted(int64(e.MaxWorkers))
	g, ctx := errgroup.WithContext(ctx)

	var failures []TaskFailure
	failCh := make(chan TaskFailure, len(tasks))

	for i, task := range tasks {
		task, target := task, targets[i]
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			if err := task(); err != nil {
				e.Logger.Warn("engine: task failed", "target", target, "error", err)
				failCh <- TaskFailure{Target: target, Err: err}
			}
			return nil
		})
	}
	g.Wait()
	close(failCh)
	for f := range failCh {
		failures = append(failures, f)
	}
	return failures
}

// Snapshot executes the snapshot flow of spec.md §4.D.
func (e *Engine) Snapshot(ctx context.Context, req SnapshotRequest) (*Manifest, error) {
	if !e.Dimensions.CheckDimension() {
		return nil, newRepeatDimension()
	}

	dimKeys, err := e.touchedDimensions(req)
	if err != nil {
		return nil, err
	}

	if err := e.Slots.RotateForNew(req.Root); err != nil {
		return nil, fmt.Errorf("engine: snapshot: %w", err)
	}
	slotDir := e.Slots.SlotPath(req.Root, 1)

	var tasks []func() error
	var targets []string

	switch req.Kind {
	case KindChunk:
		for _, spec := range req.ChunkSpecs {
			entry := e.Dimensions[spec.DimensionKey]
			for _, subfolder := range entry.RegionSubfolders {
				src := filepath.Join(e.ServerPath, entry.WorldName, subfolder)
				dst := filepath.Join(slotDir, entry.WorldName, subfolder)
				grouping := spec.Grouping
				tasks = append(tasks, func() error { return anvil.ExportGroup(src, dst, grouping, e.Logger) })
				targets = append(targets, dst)
			}
		}
	case KindRegion:
		for _, dimKey := range req.RegionDimensions {
			entry := e.Dimensions[dimKey]
			for _, subfolder := range entry.RegionSubfolders {
				src := filepath.Join(e.ServerPath, entry.WorldName, subfolder)
				dst := filepath.Join(slotDir, entry.WorldName, subfolder)
				tasks = append(tasks, func() error { return copyMCATree(src, dst) })
				targets = append(targets, dst)
			}
		}
	case KindCustom:
		for _, sub := range req.CustomSubSlots {
			entry := e.Dimensions[sub.DimensionKey]
			for _, subfolder := range entry.RegionSubfolders {
				src := filepath.Join(e.ServerPath, entry.WorldName, subfolder)
				dst := filepath.Join(slotDir, entry.WorldName, subfolder)
				grouping := sub.Grouping
				tasks = append(tasks, func() error { return anvil.ExportGroup(src, dst, grouping, e.Logger) })
				targets = append(targets, dst)
			}
		}
	default:
		return nil, fmt.Errorf("engine: snapshot: unknown kind %q", req.Kind)
	}

	failures := e.runPool(ctx, tasks, targets)

	dimIDs := make([]string, 0, len(dimKeys))
	for _, k := range dimKeys {
		dimIDs = append(dimIDs, e.Dimensions[k].DimensionID)
	}
	sort.Strings(dimIDs)

	manifest := &Manifest{
		Time:                time.Now().UTC().Format("2006-01-02 15:04:05"),
		BackupType:          req.Kind,
		BackupDimension:     dimIDs,
		User:                req.User,
		Comment:             req.Comment,
		Command:             req.Command,
		VersionCreated:      req.VersionCreated,
		MinecraftVersion:    req.MinecraftVersion,
		UserPos:             req.UserPos,
		ChunkTopLeftPos:     req.ChunkTopLeftPos,
		ChunkBottomRightPos: req.ChunkBottomRightPos,
	}
	if req.Kind == KindCustom {
		manifest.CustomName = req.CustomName
		manifest.UserCreated = req.UserCreated
		manifest.TimeCreated = req.TimeCreated
		for _, sub := range req.CustomSubSlots {
			manifest.SubSlot = append(manifest.SubSlot, sub.Descriptor)
		}
	}

	if err := WriteManifest(slotDir, manifest); err != nil {
		return nil, err
	}
	for _, f := range failures {
		e.Logger.Warn("engine: snapshot completed with a task failure", "target", f.Target, "error", f.Err)
	}
	return manifest, nil
}

// touchedDimensions collects and validates every dimension key a request
// references, rejecting any not present in e.Dimensions.
func (e *Engine) touchedDimensions(req SnapshotRequest) ([]string, error) {
	seen := make(map[string]bool)
	var keys []string
	add := func(k string) error {
		if _, ok := e.Dimensions[k]; !ok {
			return newUnidentifiedDimension(k)
		}
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
		return nil
	}
	switch req.Kind {
	case KindChunk:
		for _, s := range req.ChunkSpecs {
			if err := add(s.DimensionKey); err != nil {
				return nil, err
			}
		}
	case KindRegion:
		for _, k := range req.RegionDimensions {
			if err := add(k); err != nil {
				return nil, err
			}
		}
	case KindCustom:
		for _, s := range req.CustomSubSlots {
			if err := add(s.DimensionKey); err != nil {
				return nil, err
			}
		}
	}
	return keys, nil
}

// ValidateRestoreInput resolves slotDir's manifest and checks it against
// the live dimension table — spec.md §4.D points 1–2 — without touching the
// coordinator, the host, or any file outside slotDir: InvalidInfoDimension
// for a dimension the manifest names that isn't configured, LackRegionFile
// if the slot holds no region file at all, NotCustom/UnidentifiedSubSlot if
// partialSubSlots names a slot that isn't a custom backup or a sub-slot the
// manifest doesn't have. Restore calls this itself, but a caller that must
// not disturb a live server over a restore doomed to fail this check
// (cmd/chunkback/app.RestoreSlot) calls it again before claiming the
// coordinator or running the confirm/countdown ceremony.
func (e *Engine) ValidateRestoreInput(slotDir string, partialSubSlots []int) (*Manifest, error) {
	manifest, err := ReadManifest(slotDir)
	if err != nil {
		return nil, err
	}

	swapped := e.Dimensions.Swapped()
	if swapped == nil {
		return nil, newRepeatDimension()
	}
	for _, dimID := range manifest.BackupDimension {
		if _, ok := swapped[dimID]; !ok {
			return nil, newInvalidInfoDimension(dimID)
		}
	}

	if !hasRegionFile(slotDir) {
		return nil, newLackRegionFile(slotDir)
	}

	if partialSubSlots == nil {
		return manifest, nil
	}
	if manifest.BackupType != KindCustom {
		return nil, newNotCustom(slotDir)
	}
	for _, id := range partialSubSlots {
		found := false
		for _, sub := range manifest.SubSlot {
			if sub.Key == id {
				found = true
				break
			}
		}
		if !found {
			return nil, newUnidentifiedSubSlot(id)
		}
	}
	for _, id := range partialSubSlots {
		for _, sub := range manifest.SubSlot {
			if sub.Key != id {
				continue
			}
			if _, ok := swapped[sub.Dimension]; !ok {
				return nil, newUnidentifiedSubSlot(sub.Key)
			}
		}
	}

	return manifest, nil
}

// Restore executes the restore flow of spec.md §4.D against an
// already-confirmed, already-host-stopped operation; the confirm/countdown
// ceremony and host handshake live in internal/coordinator.
func (e *Engine) Restore(ctx context.Context, req RestoreRequest) (*Manifest, error) {
	manifest, err := e.ValidateRestoreInput(req.SlotDir, req.PartialSubSlots)
	if err != nil {
		return nil, err
	}

	swapped := e.Dimensions.Swapped()
	if swapped == nil {
		return nil, newRepeatDimension()
	}

	overwriteDir := e.overwriteDir()
	if !req.IsOverwriteBuffer {
		if err := os.RemoveAll(overwriteDir); err != nil {
			return nil, fmt.Errorf("engine: restore: clear overwrite buffer: %w", err)
		}
		if err := os.MkdirAll(overwriteDir, 0o755); err != nil {
			return nil, fmt.Errorf("engine: restore: recreate overwrite buffer: %w", err)
		}
	}

	var tasks []func() error
	var targets []string

	switch manifest.BackupType {
	case KindChunk:
		for _, dimID := range manifest.BackupDimension {
			entry := swapped[dimID]
			for _, subfolder := range entry.RegionSubfolders {
				slotSub := filepath.Join(req.SlotDir, entry.WorldName, subfolder)
				targetSub := filepath.Join(e.ServerPath, entry.WorldName, subfolder)
				overwriteSub := filepath.Join(overwriteDir, entry.WorldName, subfolder)
				t, tg := e.chunkRestoreTasks(slotSub, targetSub, overwriteSub, req.IsOverwriteBuffer)
				tasks = append(tasks, t...)
				targets = append(targets, tg...)
			}
		}
	case KindRegion:
		for _, dimID := range manifest.BackupDimension {
			entry := swapped[dimID]
			for _, subfolder := range entry.RegionSubfolders {
				slotSub := filepath.Join(req.SlotDir, entry.WorldName, subfolder)
				targetSub := filepath.Join(e.ServerPath, entry.WorldName, subfolder)
				overwriteSub := filepath.Join(overwriteDir, entry.WorldName, subfolder)
				isOverwrite := req.IsOverwriteBuffer
				tasks = append(tasks, func() error { return regionRestore(slotSub, targetSub, overwriteSub, isOverwrite) })
				targets = append(targets, targetSub)
			}
		}
	case KindCustom:
		wanted := map[int]bool{}
		if req.PartialSubSlots != nil {
			for _, id := range req.PartialSubSlots {
				wanted[id] = true
			}
		}
		for _, sub := range manifest.SubSlot {
			if req.PartialSubSlots != nil && !wanted[sub.Key] {
				continue
			}
			// ValidateRestoreInput already rejected a wanted sub-slot whose
			// dimension isn't configured; an unwanted one with no configured
			// dimension is silently skipped, as it always has been.
			entry, ok := swapped[sub.Dimension]
			if !ok {
				continue
			}
			chunks := rectangleChunks(sub.ChunkTopLeftPos, sub.ChunkBottomRightPos)
			for _, subfolder := range entry.RegionSubfolders {
				slotRegionDir := filepath.Join(req.SlotDir, entry.WorldName, subfolder)
				targetDir := filepath.Join(e.ServerPath, entry.WorldName, subfolder)
				overwriteDirSub := filepath.Join(overwriteDir, entry.WorldName, subfolder)
				isOverwrite := req.IsOverwriteBuffer
				tasks = append(tasks, func() error {
					return customRestore(slotRegionDir, targetDir, overwriteDirSub, chunks, isOverwrite)
				})
				targets = append(targets, targetDir)
			}
		}
	}

	e.runPool(ctx, tasks, targets)
	removeEmptyDirs(overwriteDir)

	if !req.IsOverwriteBuffer {
		overwriteManifest := &Manifest{
			Time:             time.Now().UTC().Format("2006-01-02 15:04:05"),
			BackupType:       manifest.BackupType,
			BackupDimension:  manifest.BackupDimension,
			User:             manifest.User,
			Comment:          "overwrite buffer from restore",
			Command:          manifest.Command,
			VersionCreated:   manifest.VersionCreated,
			MinecraftVersion: manifest.MinecraftVersion,
		}
		if err := WriteManifest(overwriteDir, overwriteManifest); err != nil {
			return nil, err
		}
	}

	return manifest, nil
}

// chunkRestoreTasks builds the per-file restore tasks for one chunk-kind
// (world, subfolder) pair, per spec.md §4.D point 5. Every file a chunk-kind
// slot holds is a sparse ".region"-shaped file produced by anvil.ExportGroup
// — whether the original selection was a full region or a subset, every
// slot not present at snapshot time was written explicit-empty rather than
// left out, so a single anvil.MergeSparseIntoMCA call reproduces the source
// region exactly and captures the pre-overwrite state itself via
// MergeOptions.BackupPath.
func (e *Engine) chunkRestoreTasks(slotSub, targetSub, overwriteSub string, isOverwriteBuffer bool) ([]func() error, []string) {
	entries, err := os.ReadDir(slotSub)
	if err != nil {
		return nil, nil
	}
	var tasks []func() error
	var targets []string
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".mca") {
			continue
		}
		slotFile := filepath.Join(slotSub, ent.Name())
		targetFile := filepath.Join(targetSub, ent.Name())
		overwriteFile := filepath.Join(overwriteSub, ent.Name())

		tasks = append(tasks, func() error {
			opts := anvil.MergeOptions{Overwrite: true}
			if !isOverwriteBuffer {
				opts.BackupPath = overwriteFile
			}
			return anvil.MergeSparseIntoMCA(slotFile, targetFile, opts, e.Logger)
		})
		targets = append(targets, targetFile)
	}
	return tasks, targets
}

// rectangleChunks expands a [topLeft, bottomRight] chunk rectangle into the
// list of absolute chunk coordinates it covers, used to reconstruct a
// custom sub-slot's original selection for restore.
func rectangleChunks(topLeft, bottomRight [2]int) []anvil.ChunkPos {
	var chunks []anvil.ChunkPos
	for x := topLeft[0]; x <= bottomRight[0]; x++ {
		for z := topLeft[1]; z <= bottomRight[1]; z++ {
			chunks = append(chunks, anvil.ChunkPos{X: x, Z: z})
		}
	}
	return chunks
}

// customRestore merges one sub-region's chunks from its sparse slot file
// into the live .mca tree, scoped to only the chunks named.
func customRestore(slotRegionDir, targetDir, overwriteDir string, chunks []anvil.ChunkPos, isOverwriteBuffer bool) error {
	byRegion := map[string][]anvil.ChunkPos{}
	for _, c := range chunks {
		rx, rz := anvil.RegionCoords(c.X, c.Z)
		name := anvil.RegionFileName(rx, rz)
		byRegion[name] = append(byRegion[name], c)
	}
	for name, cs := range byRegion {
		slotFile := filepath.Join(slotRegionDir, name)
		targetFile := filepath.Join(targetDir, name)
		opts := anvil.MergeOptions{Overwrite: true}
		if !isOverwriteBuffer {
			opts.BackupPath = filepath.Join(overwriteDir, name)
		}
		if err := anvil.MergeCustom(slotFile, targetFile, cs, opts, nil); err != nil {
			return err
		}
	}
	return nil
}

// regionRestore implements the whole-dimension region-kind restore: copy
// the live tree into the overwrite buffer, then replace it with the slot's
// tree, both filtered to *.mca.
func regionRestore(slotSub, targetSub, overwriteSub string, isOverwriteBuffer bool) error {
	if !isOverwriteBuffer {
		if _, err := os.Stat(targetSub); err == nil {
			if err := copyMCATree(targetSub, overwriteSub); err != nil {
				return err
			}
		}
	}
	if err := os.RemoveAll(targetSub); err != nil {
		return err
	}
	return copyMCATree(slotSub, targetSub)
}

// copyMCATree copies every *.mca file directly inside src into dst,
// ignoring subdirectories, per spec.md §4.D's region-kind copy_tree.
func copyMCATree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("engine: read %s: %w", src, err)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("engine: create %s: %w", dst, err)
	}
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".mca") {
			continue
		}
		if err := copyFile(filepath.Join(src, ent.Name()), filepath.Join(dst, ent.Name())); err != nil {
			return err
		}
	}
	return nil
}

// copyFile copies src to dst via a temp file and rename, in the teacher's
// atomic-write idiom (pkg/anvil/sparse.go's atomicWrite).
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("engine: open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("engine: create dir for %s: %w", dst, err)
	}
	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("engine: create temp file for %s: %w", dst, err)
	}
	defer func() {
		out.Close()
		os.Remove(tmp)
	}()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("engine: copy %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("engine: close %s: %w", tmp, err)
	}
	return os.Rename(tmp, dst)
}

// hasRegionFile reports whether dir contains at least one .mca file,
// anywhere in its tree.
func hasRegionFile(dir string) bool {
	found := false
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || found || d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".mca") {
			found = true
		}
		return nil
	})
	return found
}

// removeEmptyDirs prunes every directory under root (root included) that
// ends up holding no files, per spec.md §4.D point 5's "empty resulting
// overwrite folders are removed".
func removeEmptyDirs(root string) {
	var dirs []string
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err == nil && d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := os.ReadDir(dirs[i])
		if err == nil && len(entries) == 0 && dirs[i] != root {
			os.Remove(dirs[i])
		}
	}
}
