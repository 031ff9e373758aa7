package anvil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExportGroupFullRegionRecordsEveryLocalSlotExplicitly(t *testing.T) {
	inDir, outDir := t.TempDir(), t.TempDir()
	name := "r.0.0.mca"
	if err := WriteSparseRegion(filepath.Join(inDir, name), map[LocalPos]*ChunkData{
		{X: 0, Z: 0}: {Payload: []byte("full"), Timestamp: 1},
	}); err != nil {
		t.Fatal(err)
	}

	grouping := Grouping{name: RegionGroup{Full: true}}
	if err := ExportGroup(inDir, outDir, grouping, nil); err != nil {
		t.Fatal(err)
	}

	outPath := filepath.Join(outDir, name)
	present := ReadChunk(outPath, 0, 0, nil)
	if present.State != ChunkPresent || string(present.Payload) != "full" {
		t.Fatalf("expected the source's only chunk to round-trip, got %+v", present)
	}
	// A slot the source region never wrote must still come back explicit-
	// empty, not merely absent: a full-region snapshot must erase a target
	// slot populated after the snapshot was taken, not leave it untouched.
	neverWritten := ReadChunk(outPath, 1, 0, nil)
	if neverWritten.State != ChunkEmpty {
		t.Fatalf("expected a never-written slot to be recorded explicit-empty, got %v", neverWritten.State)
	}
}

func TestExportGroupFullRegionMissingInputMarksEverySlotExplicitEmpty(t *testing.T) {
	inDir, outDir := t.TempDir(), t.TempDir()
	name := "r.9.9.mca"
	grouping := Grouping{name: RegionGroup{Full: true}}
	if err := ExportGroup(inDir, outDir, grouping, nil); err != nil {
		t.Fatal(err)
	}
	outPath := filepath.Join(outDir, name)

	fi, err := os.Stat(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() != HeaderSectors*SectorSize {
		t.Fatalf("expected a header-only region file (no payload sectors), got size %d", fi.Size())
	}
	if got := ReadChunk(outPath, 0, 0, nil); got.State != ChunkEmpty {
		t.Fatalf("a region missing entirely from the source should restore by erasing every slot, got %v", got.State)
	}
}

func TestExportGroupSparseRecordsAbsentAsExplicitEmpty(t *testing.T) {
	inDir, outDir := t.TempDir(), t.TempDir()
	name := "r.0.0.mca"
	if err := WriteSparseRegion(filepath.Join(inDir, name), map[LocalPos]*ChunkData{
		{X: 0, Z: 0}: {Payload: []byte("present"), Timestamp: 7},
	}); err != nil {
		t.Fatal(err)
	}

	grouping := Grouping{name: RegionGroup{Chunks: []ChunkPos{{X: 0, Z: 0}, {X: 1, Z: 0}}}}
	if err := ExportGroup(inDir, outDir, grouping, nil); err != nil {
		t.Fatal(err)
	}

	outPath := filepath.Join(outDir, name)
	present := ReadChunk(outPath, 0, 0, nil)
	if present.State != ChunkPresent || string(present.Payload) != "present" {
		t.Fatalf("expected present chunk to round-trip, got %+v", present)
	}
	absentRecorded := ReadChunk(outPath, 1, 0, nil)
	if absentRecorded.State != ChunkEmpty {
		t.Fatalf("a selected but absent source chunk should be recorded explicit-empty, got %v", absentRecorded.State)
	}
	// A chunk never named in the grouping must stay untouched (absent).
	if untouched := ReadChunk(outPath, 2, 0, nil); untouched.State != ChunkAbsent {
		t.Fatalf("unselected chunk should remain absent, got %v", untouched.State)
	}
}
