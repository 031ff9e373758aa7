package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/OCharnyshevich/chunkback/internal/config"
	"github.com/OCharnyshevich/chunkback/internal/coordinator"
	"github.com/OCharnyshevich/chunkback/internal/custom"
	"github.com/OCharnyshevich/chunkback/internal/engine"
	"github.com/OCharnyshevich/chunkback/internal/slotmgr"
	"github.com/OCharnyshevich/chunkback/pkg/anvil"
	"github.com/OCharnyshevich/chunkback/pkg/selector"
)

func TestParseDimensionListRejectsRepeatsAndUnknownKeys(t *testing.T) {
	a := &App{Dimensions: engine.DimensionTable{
		"0": {DimensionID: "minecraft:overworld"},
		"1": {DimensionID: "minecraft:the_end"},
	}}

	keys, err := a.ParseDimensionList("0,1")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "0" || keys[1] != "1" {
		t.Fatalf("keys = %v", keys)
	}

	if _, err := a.ParseDimensionList("0,0"); err == nil {
		t.Fatal("expected InputDimRepeat for a repeated key")
	}
	if _, err := a.ParseDimensionList("9"); err == nil {
		t.Fatal("expected InputDimError for an unconfigured key")
	}
}

func TestParseSubSlotGroupsRejectsLeadingZeroAndRepeats(t *testing.T) {
	groups, err := ParseSubSlotGroups("1,2,3")
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 3 || groups[2] != 3 {
		t.Fatalf("groups = %v", groups)
	}
	if _, err := ParseSubSlotGroups("01"); err == nil {
		t.Fatal("expected rejection of a leading-zero group")
	}
	if _, err := ParseSubSlotGroups("1,1"); err == nil {
		t.Fatal("expected InputSlotRepeat for a repeated group")
	}
	if _, err := ParseSubSlotGroups(""); err == nil {
		t.Fatal("expected rejection of an empty list")
	}
}

func TestResolveDimensionIDIsTheInverseOfResolveDimensionKey(t *testing.T) {
	a := &App{Dimensions: engine.DimensionTable{
		"0":  {DimensionID: "minecraft:overworld"},
		"-1": {DimensionID: "minecraft:the_nether"},
	}}

	key, ok := a.ResolveDimensionID("minecraft:the_nether")
	if !ok || key != "-1" {
		t.Fatalf("ResolveDimensionID = %q, %v", key, ok)
	}
	if _, ok := a.ResolveDimensionID("minecraft:unknown"); ok {
		t.Fatal("expected no match for an unconfigured dimension id")
	}
}

// newGeomTestApp builds an App with just enough wiring for the custom
// sub-slot geometry bookkeeping tests: no engine, coordinator, or adapter
// needed, since these tests never reach a snapshot handshake.
func newGeomTestApp() *App {
	return &App{
		Dimensions: engine.DimensionTable{"0": {DimensionID: "minecraft:overworld"}},
		Config:     &config.Document{MaxChunkLength: 1000},
		Custom:     custom.NewRegistry(),
		customGeom: make(map[string]map[uuid.UUID]customGeomEntry),
	}
}

func TestCustomSubSlotGeometrySurvivesReindexAfterDeletion(t *testing.T) {
	a := newGeomTestApp()
	if err := a.CustomCreate("base1", "Steve", "2024-01-01 00:00:00"); err != nil {
		t.Fatal(err)
	}

	p := selector.WorldPoint{X: 0, Z: 0}
	k1, err := a.CustomAddRectangle("base1", "0", p, selector.WorldPoint{X: 31, Z: 31}, "one", "cmd1", "Steve", "2024-01-01")
	if err != nil {
		t.Fatal(err)
	}
	k2, err := a.CustomAddRectangle("base1", "0", selector.WorldPoint{X: 100, Z: 100}, selector.WorldPoint{X: 131, Z: 131}, "two", "cmd2", "Steve", "2024-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if k1 != 1 || k2 != 2 {
		t.Fatalf("initial keys = %d, %d; want 1, 2", k1, k2)
	}

	// Delete sub-slot 1, leaving a gap at the front, then add a third: this
	// forces internal/custom.Definition.reindex to renumber the survivor
	// (old key 2) down to key 1 before the new one is appended as key 2.
	if err := a.CustomDeleteSubSlot("base1", 1); err != nil {
		t.Fatal(err)
	}
	k3, err := a.CustomAddRectangle("base1", "0", selector.WorldPoint{X: 200, Z: 200}, selector.WorldPoint{X: 231, Z: 231}, "three", "cmd3", "Steve", "2024-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if k3 != 2 {
		t.Fatalf("k3 = %d, want 2 (k2's slot, now renumbered)", k3)
	}

	def, err := a.Custom.Get("base1")
	if err != nil {
		t.Fatal(err)
	}
	if len(def.SubSlots) != 2 {
		t.Fatalf("expected 2 surviving sub-slots, got %d", len(def.SubSlots))
	}

	// The sub-slot now keyed 1 must still resolve to its original "two"
	// geometry, keyed by its stable ID rather than by the renumbered key.
	survivor := def.SubSlots[1]
	if survivor.Comment != "two" {
		t.Fatalf("survivor.Comment = %q, want %q (reindex should preserve order)", survivor.Comment, "two")
	}
	entry, ok := a.customGeom["base1"][survivor.ID]
	if !ok {
		t.Fatal("survivor's geometry was lost across reindexing")
	}
	topLeft, _ := entry.Selector.CornerChunks()
	if topLeft != [2]int{6, 6} {
		t.Fatalf("survivor geometry top-left = %v, want the chunk holding corner (100,100)", topLeft)
	}
}

func TestCustomDeleteDefinitionRemovesAllGeometry(t *testing.T) {
	a := newGeomTestApp()
	if err := a.CustomCreate("base1", "Steve", "2024-01-01 00:00:00"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.CustomAddRadius("base1", "0", selector.WorldPoint{}, 2, "c", "cmd", "Steve", "2024-01-01"); err != nil {
		t.Fatal(err)
	}
	if err := a.CustomDeleteDefinition("base1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := a.customGeom["base1"]; ok {
		t.Fatal("expected customGeom entry for base1 to be removed")
	}
	if _, err := a.Custom.Get("base1"); err == nil {
		t.Fatal("expected base1 to no longer be registered")
	}
}

// newIntegrationApp wires a full App the way Open does, but against a
// synthetic config and a fabricated world directory instead of a real
// server, exercising the snapshot handshake end to end through the
// LocalAdapter's synthesized responses.
func newIntegrationApp(t *testing.T) (*App, string) {
	t.Helper()
	root := t.TempDir()
	serverPath := filepath.Join(root, "server")
	worldRegion := filepath.Join(serverPath, "world", "region")
	if err := os.MkdirAll(worldRegion, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := anvil.WriteSparseRegion(filepath.Join(worldRegion, "r.0.0.mca"), map[anvil.LocalPos]*anvil.ChunkData{
		{X: 1, Z: 1}: {State: anvil.ChunkPresent, Compression: 2, Payload: []byte("chunk data"), Timestamp: 1},
	}); err != nil {
		t.Fatal(err)
	}

	doc := config.Default()
	doc.ServerPath = serverPath
	doc.BackupPath = filepath.Join(root, "cb_multi")
	doc.StaticBackupPath = filepath.Join(root, "cb_static")
	doc.DimensionInfo = map[string]config.DimensionEntry{
		"0": {DimensionID: "minecraft:overworld", WorldName: "world", RegionSubfolders: []string{"region"}},
	}
	configPath := filepath.Join(root, "chunkback.toml")
	if err := config.Save(configPath, doc); err != nil {
		t.Fatal(err)
	}

	a, err := Open(configPath)
	if err != nil {
		t.Fatal(err)
	}
	return a, root
}

func TestSnapshotRectangleWritesManifestAndRegionThroughTheHostHandshake(t *testing.T) {
	a, _ := newIntegrationApp(t)

	p1 := selector.WorldPoint{X: 16, Z: 16}
	p2 := selector.WorldPoint{X: 31, Z: 31}
	m, err := a.SnapshotRectangle(context.Background(), slotmgr.Dynamic, "0", p1, p2, "test", "pmake 16 16 31 31 in 0", "console")
	if err != nil {
		t.Fatal(err)
	}
	if m.BackupType != engine.KindChunk {
		t.Fatalf("BackupType = %v, want chunk", m.BackupType)
	}

	slotDir := a.Slots.SlotPath(slotmgr.Dynamic, 1)
	if _, err := os.Stat(filepath.Join(slotDir, "world", "region", "r.0.0.mca")); err != nil {
		t.Fatalf("expected exported region file: %v", err)
	}
	if _, err := engine.ReadManifest(slotDir); err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
}

func TestSnapshotRadiusRejectsUnconfiguredDimension(t *testing.T) {
	a, _ := newIntegrationApp(t)
	_, err := a.SnapshotRadius(context.Background(), slotmgr.Dynamic, "9", selector.WorldPoint{}, 2, "", "make", "console", [3]float64{})
	if err == nil {
		t.Fatal("expected an error for an unconfigured dimension key")
	}
}

func TestRestoreSlotRejectsAMissingSlotBeforeTouchingTheHost(t *testing.T) {
	a, root := newIntegrationApp(t)

	missingSlot := filepath.Join(root, "nowhere")
	if _, err := a.RestoreSlot(context.Background(), missingSlot, false, nil, "slot1"); err == nil {
		t.Fatal("expected an error for a nonexistent slot")
	}

	if a.Coordinator.IsBusy() {
		t.Fatal("a restore that fails validation must never claim the coordinator")
	}
	logPath := filepath.Join(a.Config.ServerPath, "chunkback-host.log")
	if b, err := os.ReadFile(logPath); err == nil && strings.Contains(string(b), "server stopped") {
		t.Fatal("a restore that fails validation must never stop the host")
	}
}

func TestCoordinatorIsIdleAgainAfterASnapshot(t *testing.T) {
	a, _ := newIntegrationApp(t)

	p1 := selector.WorldPoint{X: 16, Z: 16}
	p2 := selector.WorldPoint{X: 31, Z: 31}
	if _, err := a.SnapshotRectangle(context.Background(), slotmgr.Dynamic, "0", p1, p2, "test", "pmake", "console"); err != nil {
		t.Fatal(err)
	}

	h, err := a.Coordinator.TryBegin(coordinator.OpSnapshot)
	if err != nil {
		t.Fatal(err)
	}
	a.Coordinator.Finish(h)

	// After a completed snapshot the coordinator grants a new claim, and
	// finishing that claim leaves it idle again.
	if a.Coordinator.IsBusy() {
		t.Fatal("coordinator should be idle after Finish")
	}
}
