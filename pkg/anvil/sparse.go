package anvil

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// InitRegion creates (or truncates) path to a valid, empty region file: an
// 8 KiB header of all zero offset and timestamp entries and no payload
// sectors.
func InitRegion(path string) error {
	return atomicWrite(path, make([]byte, HeaderSectors*SectorSize))
}

// WriteSparseRegion writes a derived ".region" file holding exactly the
// slots named in entries. A nil value at a key means explicit-empty
// (offset=0, timestamp=1): on restore, this slot should be erased. Keys not
// present in entries are left absent (offset=0, timestamp=0) — not
// selected. Invariant I5.
func WriteSparseRegion(path string, entries map[LocalPos]*ChunkData) error {
	var header [HeaderSectors * SectorSize]byte
	var data []byte

	keys := make([]LocalPos, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].Z*regionEdge+keys[i].X < keys[j].Z*regionEdge+keys[j].X
	})

	currentSector := uint32(HeaderSectors)
	for _, k := range keys {
		idx := k.X + k.Z*regionEdge
		off := idx * 4
		entry := entries[k]
		if entry == nil {
			binary.BigEndian.PutUint32(header[SectorSize+off:SectorSize+off+4], 1)
			continue
		}
		ts := entry.Timestamp
		if ts == 0 {
			ts = 1
		}
		payloadLen := uint32(len(entry.Payload)) + 1
		totalLen := 4 + payloadLen
		sectors := (totalLen + SectorSize - 1) / SectorSize

		var rec [5]byte
		binary.BigEndian.PutUint32(rec[0:4], payloadLen)
		rec[4] = entry.Compression
		data = append(data, rec[:]...)
		data = append(data, entry.Payload...)
		if pad := int(sectors)*SectorSize - int(totalLen); pad > 0 {
			data = append(data, make([]byte, pad)...)
		}

		binary.BigEndian.PutUint32(header[off:off+4], (currentSector<<8)|sectors)
		binary.BigEndian.PutUint32(header[SectorSize+off:SectorSize+off+4], ts)
		currentSector += sectors
	}

	return atomicWrite(path, header[:], data)
}

// atomicWrite concatenates parts and writes them to path via a same-directory
// temp file plus rename, the teacher's atomic-write idiom.
func atomicWrite(path string, parts ...[]byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("anvil: create region dir for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("anvil: create temp file for %s: %w", path, err)
	}
	defer func() {
		f.Close()
		os.Remove(tmp)
	}()
	for _, p := range parts {
		if _, err := f.Write(p); err != nil {
			return fmt.Errorf("anvil: write %s: %w", path, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("anvil: close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("anvil: rename into place %s: %w", path, err)
	}
	return nil
}
