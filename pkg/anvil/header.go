package anvil

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// LocationEntry is one decoded slot of the 4 KiB offset table.
type LocationEntry struct {
	Start uint32 // sector number, 0 means unused
	Count uint32 // sector count, 0..255
}

// ParseHeader reads the 8 KiB offset and timestamp tables from a region
// file in a single pass. It never fails on a truncated or malformed header:
// a header shorter than 8192 bytes is zero-padded, and any location entry
// whose sector range runs past the end of the file is demoted to absent
// (Start=Count=0) with a warning appended to warnings, rather than causing
// ReadChunk or a merge to read garbage.
func ParseHeader(path string) (offsets [entryCount]LocationEntry, timestamps [entryCount]uint32, totalSectors int, warnings []string, err error) {
	f, openErr := os.Open(path)
	if openErr != nil {
		err = fmt.Errorf("anvil: parse header %s: %w", path, openErr)
		return
	}
	defer f.Close()

	fi, statErr := f.Stat()
	if statErr != nil {
		err = fmt.Errorf("anvil: parse header %s: %w", path, statErr)
		return
	}
	size := fi.Size()
	totalSectors = int((size + SectorSize - 1) / SectorSize)
	if size%SectorSize != 0 {
		warnings = append(warnings, fmt.Sprintf("region file size %d is not a multiple of %d bytes", size, SectorSize))
	}

	var header [2 * SectorSize]byte
	if _, readErr := io.ReadFull(f, header[:]); readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
		err = fmt.Errorf("anvil: parse header %s: %w", path, readErr)
		return
	}

	for i := 0; i < entryCount; i++ {
		raw := binary.BigEndian.Uint32(header[i*4 : i*4+4])
		start := raw >> 8
		count := raw & 0xFF
		ts := binary.BigEndian.Uint32(header[SectorSize+i*4 : SectorSize+i*4+4])
		if start != 0 {
			if int(start)+int(count) > totalSectors {
				lx, lz := i%regionEdge, i/regionEdge
				warnings = append(warnings, fmt.Sprintf(
					"chunk (%d,%d): sector range [%d,%d) exceeds file size of %d sectors, demoted to absent",
					lx, lz, start, start+count, totalSectors))
				start, count = 0, 0
			}
		}
		offsets[i] = LocationEntry{Start: start, Count: count}
		timestamps[i] = ts
	}
	return
}

// ScanFreeSectors enumerates the sectors of path not claimed by any
// location-table entry, returning a sorted, coalesced list of free runs
// starting at sector 2 (sectors 0-1 are always the header). Invariant I3.
func ScanFreeSectors(path string) (free []SectorRange, warnings []string, err error) {
	offsets, _, totalSectors, warnings, err := ParseHeader(path)
	if err != nil {
		return nil, warnings, err
	}
	if totalSectors <= HeaderSectors {
		return nil, warnings, nil
	}
	used := make([]bool, totalSectors)
	for _, o := range offsets {
		if o.Start == 0 {
			continue
		}
		for s := o.Start; s < o.Start+o.Count && int(s) < totalSectors; s++ {
			used[s] = true
		}
	}
	start := -1
	for s := HeaderSectors; s < totalSectors; s++ {
		if !used[s] {
			if start == -1 {
				start = s
			}
			continue
		}
		if start != -1 {
			free = append(free, SectorRange{Start: start, Count: s - start})
			start = -1
		}
	}
	if start != -1 {
		free = append(free, SectorRange{Start: start, Count: totalSectors - start})
	}
	return coalesce(free), warnings, nil
}
