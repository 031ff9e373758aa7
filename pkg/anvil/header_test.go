package anvil

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// writeRawRegion lays out a region file by hand: size bytes total, with
// one location/timestamp entry set at local index idx.
func writeRawRegion(t *testing.T, path string, size int64, idx int, start, count, timestamp uint32) {
	t.Helper()
	buf := make([]byte, size)
	binary.BigEndian.PutUint32(buf[idx*4:idx*4+4], (start<<8)|count)
	binary.BigEndian.PutUint32(buf[SectorSize+idx*4:SectorSize+idx*4+4], timestamp)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParseHeaderDemotesOutOfRangeEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "r.0.0.mca")
	// File is only 3 sectors long but claims a chunk at sector 5, count 2.
	writeRawRegion(t, path, 3*SectorSize, 0, 5, 2, 1234)

	offsets, timestamps, total, warnings, err := ParseHeader(path)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Fatalf("totalSectors = %d, want 3", total)
	}
	if offsets[0] != (LocationEntry{}) {
		t.Fatalf("out-of-range entry should be demoted to zero, got %+v", offsets[0])
	}
	if timestamps[0] != 1234 {
		t.Fatalf("timestamp should be preserved even when offset is demoted, got %d", timestamps[0])
	}
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %v", warnings)
	}
}

func TestParseHeaderTruncatedFileIsZeroPadded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "r.0.0.mca")
	// Only 100 bytes: far short of the 8 KiB header.
	if err := os.WriteFile(path, make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}

	offsets, timestamps, _, _, err := ParseHeader(path)
	if err != nil {
		t.Fatalf("ParseHeader must tolerate a truncated header, got error: %v", err)
	}
	for i := 0; i < entryCount; i++ {
		if offsets[i] != (LocationEntry{}) || timestamps[i] != 0 {
			t.Fatalf("entry %d should be zero-padded absent, got offset=%+v ts=%d", i, offsets[i], timestamps[i])
		}
	}
}

func TestScanFreeSectorsCoalescesAndSortsRanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "r.0.0.mca")

	// 10 sectors total. Sector 2 used (count 1), sectors 3-4 free, sector 5
	// used (count 2), sectors 7-9 free.
	buf := make([]byte, 10*SectorSize)
	binary.BigEndian.PutUint32(buf[0:4], (2<<8)|1)
	binary.BigEndian.PutUint32(buf[4:8], (5<<8)|2)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}

	free, _, err := ScanFreeSectors(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []SectorRange{{Start: 3, Count: 2}, {Start: 7, Count: 3}}
	if len(free) != len(want) {
		t.Fatalf("ScanFreeSectors() = %+v, want %+v", free, want)
	}
	for i := range want {
		if free[i] != want[i] {
			t.Fatalf("ScanFreeSectors()[%d] = %+v, want %+v", i, free[i], want[i])
		}
	}
}

func TestScanFreeSectorsEmptyRegionIsAllFree(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "r.0.0.mca")
	if err := InitRegion(path); err != nil {
		t.Fatal(err)
	}
	// InitRegion produces a header-only file (2 sectors, no payload), so
	// there is nothing past the header to be free.
	free, _, err := ScanFreeSectors(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(free) != 0 {
		t.Fatalf("expected no free sectors in a header-only file, got %+v", free)
	}
}
