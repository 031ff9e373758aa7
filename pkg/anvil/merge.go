package anvil

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
)

// MergeOptions controls how a sparse source is merged into a target region
// file.
type MergeOptions struct {
	// Overwrite allows explicit-empty markers in the source to erase slots
	// already present in the target. Without it, explicit-empty markers
	// are ignored (matching a plain snapshot-style merge).
	Overwrite bool
	// BackupPath, if non-empty, receives a sparse ".region" file holding
	// whatever the target held at each touched slot immediately before
	// this merge overwrote it — the overwrite buffer (§3 Overwrite buffer).
	BackupPath string
}

// MergeSparseIntoMCA merges every slot present in the sparse region file at
// sourcePath into the live .mca at targetPath, creating targetPath if it
// does not exist. Sector allocation is best-fit against the target's
// current free list (§4.A Sector allocator).
func MergeSparseIntoMCA(sourcePath, targetPath string, opts MergeOptions, logger *slog.Logger) error {
	return mergeInto(sourcePath, targetPath, nil, opts, logger)
}

// MergeCustom merges only the chunks named in chunks (absolute coordinates)
// from the sparse region file at sourcePath into targetPath. Slots not
// named in chunks are left untouched in the target even if the source has
// data for them.
func MergeCustom(sourcePath, targetPath string, chunks []ChunkPos, opts MergeOptions, logger *slog.Logger) error {
	allowed := make(map[LocalPos]bool, len(chunks))
	for _, c := range chunks {
		pos, _ := LocalIndex(c.X, c.Z)
		allowed[pos] = true
	}
	return mergeInto(sourcePath, targetPath, allowed, opts, logger)
}

func mergeInto(sourcePath, targetPath string, allowed map[LocalPos]bool, opts MergeOptions, logger *slog.Logger) error {
	logger = orDefault(logger)

	if _, _, err := ParseRegionFileName(targetPath); err != nil {
		return fmt.Errorf("anvil: merge into %s: %w", targetPath, err)
	}

	srcOffsets, srcTimestamps, _, srcWarnings, err := ParseHeader(sourcePath)
	if err != nil {
		return fmt.Errorf("anvil: merge %s into %s: read source header: %w", sourcePath, targetPath, err)
	}
	for _, w := range srcWarnings {
		logger.Warn("anvil: merge: source header warning", "source", sourcePath, "detail", w)
	}

	srcFile, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("anvil: merge %s into %s: open source: %w", sourcePath, targetPath, err)
	}
	defer srcFile.Close()

	if _, statErr := os.Stat(targetPath); errors.Is(statErr, fs.ErrNotExist) {
		if err := InitRegion(targetPath); err != nil {
			return fmt.Errorf("anvil: merge into %s: init target: %w", targetPath, err)
		}
	} else if statErr != nil {
		return fmt.Errorf("anvil: merge into %s: stat target: %w", targetPath, statErr)
	}

	free, freeWarnings, err := ScanFreeSectors(targetPath)
	if err != nil {
		return fmt.Errorf("anvil: merge into %s: scan free sectors: %w", targetPath, err)
	}
	for _, w := range freeWarnings {
		logger.Warn("anvil: merge: target free-sector warning", "target", targetPath, "detail", w)
	}
	alloc := NewAllocator(free)

	targetFile, err := os.OpenFile(targetPath, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("anvil: merge into %s: open target: %w", targetPath, err)
	}
	defer targetFile.Close()

	backup := make(map[LocalPos]*ChunkData)

	for i := 0; i < entryCount; i++ {
		lx, lz := i%regionEdge, i/regionEdge
		pos := LocalPos{X: lx, Z: lz}
		if allowed != nil {
			if !allowed[pos] {
				continue
			}
		}

		srcStart := srcOffsets[i].Start
		srcCount := srcOffsets[i].Count
		srcTS := srcTimestamps[i]

		switch {
		case srcStart == 0 && srcTS == 0:
			// not selected by the source; leave target untouched.
			continue
		case srcStart == 0 && srcTS == 1:
			if !opts.Overwrite {
				continue
			}
			captureForBackup(targetFile, i, pos, opts, backup, logger)
			if err := clearTargetEntry(targetFile, i); err != nil {
				logger.Warn("anvil: merge: clear target entry", "target", targetPath, "local", pos, "error", err)
			}
		default:
			payload, compression, err := readRawPayload(srcFile, int(srcStart), int(srcCount))
			if err != nil {
				logger.Warn("anvil: merge: read source chunk payload", "source", sourcePath, "local", pos, "error", err)
				continue
			}
			captureForBackup(targetFile, i, pos, opts, backup, logger)
			ts := srcTS
			if ts == 0 {
				ts = 1
			}
			if err := writeChunkPayload(targetFile, alloc, i, payload, compression, ts); err != nil {
				logger.Warn("anvil: merge: write target chunk", "target", targetPath, "local", pos, "error", err)
			}
		}
	}

	if opts.BackupPath != "" {
		if err := WriteSparseRegion(opts.BackupPath, backup); err != nil {
			return fmt.Errorf("anvil: merge into %s: write overwrite buffer %s: %w", targetPath, opts.BackupPath, err)
		}
	}

	return nil
}

// captureForBackup reads the target's current value for header index i,
// before it is overwritten, into backup, when a backup path was requested.
func captureForBackup(f *os.File, i int, pos LocalPos, opts MergeOptions, backup map[LocalPos]*ChunkData, logger *slog.Logger) {
	if opts.BackupPath == "" {
		return
	}
	start, count, ts, err := readEntryAt(f, i)
	if err != nil {
		logger.Warn("anvil: merge: read current target entry for overwrite buffer", "local", pos, "error", err)
		return
	}
	if start == 0 {
		if ts == 1 {
			backup[pos] = nil
		}
		return
	}
	payload, compression, err := readRawPayload(f, int(start), int(count))
	if err != nil {
		logger.Warn("anvil: merge: read current target payload for overwrite buffer", "local", pos, "error", err)
		return
	}
	backup[pos] = &ChunkData{State: ChunkPresent, Compression: compression, Payload: payload, Timestamp: ts}
}

// clearTargetEntry sets header index i to the explicit-empty marker.
func clearTargetEntry(f *os.File, i int) error {
	var zero, one [4]byte
	binary.BigEndian.PutUint32(one[:], 1)
	if _, err := f.WriteAt(zero[:], int64(i*4)); err != nil {
		return err
	}
	if _, err := f.WriteAt(one[:], int64(SectorSize+i*4)); err != nil {
		return err
	}
	return nil
}

// writeChunkPayload allocates space for payload via alloc, writes it, and
// updates the target's header index i. When no free run fits, the payload
// is appended past the current end of file and the file is grown.
func writeChunkPayload(f *os.File, alloc *Allocator, i int, payload []byte, compression byte, timestamp uint32) error {
	payloadLen := uint32(len(payload)) + 1
	totalLen := 4 + payloadLen
	sectors := int((totalLen + SectorSize - 1) / SectorSize)

	start, appended := alloc.Allocate(sectors)
	if appended {
		fi, err := f.Stat()
		if err != nil {
			return fmt.Errorf("stat target for append: %w", err)
		}
		alignedSectors := int((fi.Size() + SectorSize - 1) / SectorSize)
		if alignedSectors < HeaderSectors {
			alignedSectors = HeaderSectors
		}
		start = alignedSectors
		if err := f.Truncate(int64(alignedSectors+sectors) * SectorSize); err != nil {
			return fmt.Errorf("grow target for append: %w", err)
		}
	}

	buf := make([]byte, sectors*SectorSize)
	binary.BigEndian.PutUint32(buf[0:4], payloadLen)
	buf[4] = compression
	copy(buf[5:], payload)
	if _, err := f.WriteAt(buf, int64(start)*SectorSize); err != nil {
		return fmt.Errorf("write chunk record: %w", err)
	}

	off := i * 4
	var offBuf, tsBuf [4]byte
	binary.BigEndian.PutUint32(offBuf[:], (uint32(start)<<8)|uint32(sectors&0xFF))
	binary.BigEndian.PutUint32(tsBuf[:], timestamp)
	if _, err := f.WriteAt(offBuf[:], int64(off)); err != nil {
		return fmt.Errorf("write location entry: %w", err)
	}
	if _, err := f.WriteAt(tsBuf[:], int64(SectorSize+off)); err != nil {
		return fmt.Errorf("write timestamp entry: %w", err)
	}
	return nil
}
