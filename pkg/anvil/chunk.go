package anvil

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
)

// ReadChunk returns the state and, if present, the raw compressed payload
// of chunk (cx, cz) inside the region file at path. It never decompresses
// the payload and never returns an error: any I/O trouble, truncated
// header, or sector range running past the end of file is logged as a
// warning and reported back as ChunkAbsent, per the codec's fails-tolerant
// read path.
func ReadChunk(path string, cx, cz int, logger *slog.Logger) ChunkData {
	logger = orDefault(logger)
	pos, idx := LocalIndex(cx, cz)

	f, err := os.Open(path)
	if err != nil {
		logger.Warn("anvil: read chunk: open region file", "path", path, "cx", cx, "cz", cz, "error", err)
		return ChunkData{State: ChunkAbsent}
	}
	defer f.Close()

	start, count, ts, err := readEntryAt(f, idx)
	if err != nil {
		logger.Warn("anvil: read chunk: read location/timestamp entry", "path", path, "local", pos, "error", err)
		return ChunkData{State: ChunkAbsent}
	}
	if start == 0 {
		if ts == 1 {
			return ChunkData{State: ChunkEmpty, Timestamp: ts}
		}
		return ChunkData{State: ChunkAbsent}
	}

	fi, err := f.Stat()
	if err != nil {
		logger.Warn("anvil: read chunk: stat region file", "path", path, "error", err)
		return ChunkData{State: ChunkAbsent}
	}
	totalSectors := int((fi.Size() + SectorSize - 1) / SectorSize)
	if int(start)+int(count) > totalSectors {
		logger.Warn("anvil: read chunk: sector range exceeds file size", "path", path, "local", pos,
			"start", start, "count", count, "totalSectors", totalSectors)
		return ChunkData{State: ChunkAbsent}
	}

	payload, compression, err := readRawPayload(f, int(start), int(count))
	if err != nil {
		logger.Warn("anvil: read chunk: read payload", "path", path, "local", pos, "error", err)
		return ChunkData{State: ChunkAbsent}
	}
	return ChunkData{State: ChunkPresent, Compression: compression, Payload: payload, Timestamp: ts}
}

// readEntryAt reads the location and timestamp table entries for header
// index i without loading the whole 8 KiB header.
func readEntryAt(f *os.File, i int) (start, count, timestamp uint32, err error) {
	var offBuf, tsBuf [4]byte
	if _, err = f.ReadAt(offBuf[:], int64(i*4)); err != nil {
		return 0, 0, 0, err
	}
	if _, err = f.ReadAt(tsBuf[:], int64(SectorSize+i*4)); err != nil {
		return 0, 0, 0, err
	}
	raw := binary.BigEndian.Uint32(offBuf[:])
	return raw >> 8, raw & 0xFF, binary.BigEndian.Uint32(tsBuf[:]), nil
}

// readRawPayload reads the 4-byte length, 1-byte compression tag, and the
// (length-1) opaque payload bytes starting at sector startSector.
func readRawPayload(f *os.File, startSector, count int) ([]byte, byte, error) {
	if startSector < HeaderSectors || count <= 0 {
		return nil, 0, fmt.Errorf("invalid sector range start=%d count=%d", startSector, count)
	}
	var hdr [5]byte
	if _, err := f.ReadAt(hdr[:], int64(startSector)*SectorSize); err != nil {
		return nil, 0, err
	}
	length := binary.BigEndian.Uint32(hdr[0:4])
	if length == 0 {
		return nil, 0, fmt.Errorf("zero-length chunk record at sector %d", startSector)
	}
	compression := hdr[4]
	payload := make([]byte, length-1)
	if len(payload) > 0 {
		if _, err := f.ReadAt(payload, int64(startSector)*SectorSize+5); err != nil {
			return nil, 0, err
		}
	}
	return payload, compression, nil
}
