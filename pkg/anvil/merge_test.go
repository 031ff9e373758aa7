package anvil

import (
	"path/filepath"
	"testing"
)

func TestMergeSparseIntoMCACreatesTargetAndWritesChunks(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "r.0.0.region")
	target := filepath.Join(dir, "r.0.0.mca")

	if err := WriteSparseRegion(source, map[LocalPos]*ChunkData{
		{X: 0, Z: 0}: {Compression: 2, Payload: []byte("alpha"), Timestamp: 42},
		{X: 1, Z: 0}: {Compression: 1, Payload: []byte("beta"), Timestamp: 43},
	}); err != nil {
		t.Fatal(err)
	}

	if err := MergeSparseIntoMCA(source, target, MergeOptions{}, nil); err != nil {
		t.Fatal(err)
	}

	got := ReadChunk(target, 0, 0, nil)
	if got.State != ChunkPresent || string(got.Payload) != "alpha" || got.Timestamp != 42 {
		t.Fatalf("unexpected chunk (0,0): %+v", got)
	}
	got = ReadChunk(target, 1, 0, nil)
	if got.State != ChunkPresent || string(got.Payload) != "beta" {
		t.Fatalf("unexpected chunk (1,0): %+v", got)
	}
}

func TestMergeHonorsOverwriteFlagForExplicitEmpty(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "r.0.0.region")
	target := filepath.Join(dir, "r.0.0.mca")

	// Target starts with a real chunk at (2,0).
	if err := WriteSparseRegion(target, map[LocalPos]*ChunkData{
		{X: 2, Z: 0}: {Compression: 1, Payload: []byte("keepme"), Timestamp: 1},
	}); err != nil {
		t.Fatal(err)
	}
	// Source says that slot is explicit-empty.
	if err := WriteSparseRegion(source, map[LocalPos]*ChunkData{
		{X: 2, Z: 0}: nil,
	}); err != nil {
		t.Fatal(err)
	}

	if err := MergeSparseIntoMCA(source, target, MergeOptions{Overwrite: false}, nil); err != nil {
		t.Fatal(err)
	}
	if got := ReadChunk(target, 2, 0, nil); got.State != ChunkPresent {
		t.Fatalf("without Overwrite, target chunk should survive; got %v", got.State)
	}

	if err := MergeSparseIntoMCA(source, target, MergeOptions{Overwrite: true}, nil); err != nil {
		t.Fatal(err)
	}
	if got := ReadChunk(target, 2, 0, nil); got.State != ChunkEmpty {
		t.Fatalf("with Overwrite, explicit-empty should erase the target chunk; got %v", got.State)
	}
}

func TestMergeCapturesOverwriteBufferBeforeOverwriting(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "r.0.0.region")
	target := filepath.Join(dir, "r.0.0.mca")
	backup := filepath.Join(dir, "r.0.0.overwrite.region")

	if err := WriteSparseRegion(target, map[LocalPos]*ChunkData{
		{X: 0, Z: 0}: {Compression: 1, Payload: []byte("old"), Timestamp: 1},
	}); err != nil {
		t.Fatal(err)
	}
	if err := WriteSparseRegion(source, map[LocalPos]*ChunkData{
		{X: 0, Z: 0}: {Compression: 1, Payload: []byte("new"), Timestamp: 2},
	}); err != nil {
		t.Fatal(err)
	}

	if err := MergeSparseIntoMCA(source, target, MergeOptions{Overwrite: true, BackupPath: backup}, nil); err != nil {
		t.Fatal(err)
	}

	if got := ReadChunk(target, 0, 0, nil); string(got.Payload) != "new" {
		t.Fatalf("target should now hold the new payload, got %+v", got)
	}
	if got := ReadChunk(backup, 0, 0, nil); got.State != ChunkPresent || string(got.Payload) != "old" {
		t.Fatalf("overwrite buffer should hold the pre-merge payload, got %+v", got)
	}
}

func TestMergeCustomOnlyTouchesNamedChunks(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "r.0.0.region")
	target := filepath.Join(dir, "r.0.0.mca")

	if err := WriteSparseRegion(source, map[LocalPos]*ChunkData{
		{X: 0, Z: 0}: {Compression: 1, Payload: []byte("yes"), Timestamp: 1},
		{X: 5, Z: 5}: {Compression: 1, Payload: []byte("no"), Timestamp: 1},
	}); err != nil {
		t.Fatal(err)
	}

	if err := MergeCustom(source, target, []ChunkPos{{X: 0, Z: 0}}, MergeOptions{}, nil); err != nil {
		t.Fatal(err)
	}

	if got := ReadChunk(target, 0, 0, nil); got.State != ChunkPresent || string(got.Payload) != "yes" {
		t.Fatalf("named chunk should be merged, got %+v", got)
	}
	if got := ReadChunk(target, 5, 5, nil); got.State != ChunkAbsent {
		t.Fatalf("chunk not named in the custom set should be left untouched, got %v", got.State)
	}
}

func TestMergeRejectsUnparseableTargetFilename(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "r.0.0.region")
	if err := WriteSparseRegion(source, map[LocalPos]*ChunkData{{X: 0, Z: 0}: {Payload: []byte("x"), Timestamp: 1}}); err != nil {
		t.Fatal(err)
	}
	err := MergeSparseIntoMCA(source, filepath.Join(dir, "not-a-region-file.mca"), MergeOptions{}, nil)
	if err == nil {
		t.Fatal("expected merge to abort on an unparseable target filename")
	}
}
