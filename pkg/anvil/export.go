package anvil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// ExportGroup writes, for every region file named in grouping, a sparse
// ".region"-shaped file under outputDir carrying exactly the chunks the
// group selects: every one of the 1024 local slots for a full-region group,
// or the explicit list in group.Chunks otherwise. Chunks whose read from
// the input returns Absent are still recorded as explicit-empty, so a later
// restore's merge (anvil.MergeSparseIntoMCA) erases a target slot that
// wasn't present at snapshot time instead of leaving it untouched — a full
// snapshot must reproduce the source region exactly, not just overlay it.
func ExportGroup(inputDir, outputDir string, grouping Grouping, logger *slog.Logger) error {
	logger = orDefault(logger)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("anvil: export group: create output dir %s: %w", outputDir, err)
	}

	for name, group := range grouping {
		inputPath := filepath.Join(inputDir, name)
		outputPath := filepath.Join(outputDir, name)

		chunks := group.Chunks
		if group.Full {
			rx, rz, err := ParseRegionFileName(name)
			if err != nil {
				return fmt.Errorf("anvil: export group: region %s: %w", name, err)
			}
			chunks = make([]ChunkPos, 0, entryCount)
			for lz := 0; lz < regionEdge; lz++ {
				for lx := 0; lx < regionEdge; lx++ {
					chunks = append(chunks, ChunkPos{X: rx*regionEdge + lx, Z: rz*regionEdge + lz})
				}
			}
		}

		entries := make(map[LocalPos]*ChunkData, len(chunks))
		for _, cp := range chunks {
			cd := ReadChunk(inputPath, cp.X, cp.Z, logger)
			pos, _ := LocalIndex(cp.X, cp.Z)
			if cd.State == ChunkPresent {
				cdCopy := cd
				entries[pos] = &cdCopy
			} else {
				entries[pos] = nil
			}
		}
		if err := WriteSparseRegion(outputPath, entries); err != nil {
			return fmt.Errorf("anvil: export group: region %s: %w", name, err)
		}
	}
	return nil
}
