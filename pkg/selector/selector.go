// Package selector implements the chunk-selection and region-grouping
// algebra: turning a rectangle or a center+radius in world block
// coordinates into the set of chunk coordinates it covers, and grouping
// those chunks by the region file each one lives in.
package selector

import (
	"fmt"
	"sort"

	"github.com/OCharnyshevich/chunkback/pkg/anvil"
)

const blockSize = 16

// Mode distinguishes how a Selector's bounds were specified.
type Mode int

const (
	ModeRectangle Mode = iota
	ModeCenterRadius
)

// WorldPoint is a block coordinate in world space (not chunk space).
type WorldPoint struct{ X, Z int }

// Selector is an immutable description of a chunk rectangle.
type Selector struct {
	mode   Mode
	chunk1 anvil.ChunkPos // inclusive corner, not necessarily the min corner
	chunk2 anvil.ChunkPos
}

// ErrTooLarge is returned when a selector's chunk rectangle exceeds the
// configured max_chunk_length. Width and Height are the offending
// dimensions in chunks; Limit is the configured maximum.
type ErrTooLarge struct {
	Width, Height, Limit int
	kind                 string
}

func (e *ErrTooLarge) Error() string {
	return fmt.Sprintf("selector: chunk range %dx%d exceeds the maximum of %dx%d", e.Width, e.Height, e.Limit, e.Limit)
}

// Kind returns the taxonomy name of spec.md §7: MaxChunkLength for a
// rectangle built from two corners, MaxChunkRadius for one built from a
// center and radius.
func (e *ErrTooLarge) Kind() string { return e.kind }

// worldToChunk floors a world block coordinate down to its containing
// chunk coordinate.
func worldToChunk(p WorldPoint) anvil.ChunkPos {
	return anvil.ChunkPos{X: anvil.FloorDiv(p.X, blockSize), Z: anvil.FloorDiv(p.Z, blockSize)}
}

// NewRectangle builds a Selector spanning the chunks under the rectangle
// with corners p1 and p2 (in any order). maxChunkLength is the maximum
// allowed edge length in chunks; pass 0 to skip the check (used on the
// restore path, where ignore_size_limit applies).
func NewRectangle(p1, p2 WorldPoint, maxChunkLength int) (*Selector, error) {
	c1, c2 := worldToChunk(p1), worldToChunk(p2)
	if err := checkSize(c1, c2, maxChunkLength, "MaxChunkLength"); err != nil {
		return nil, err
	}
	return &Selector{mode: ModeRectangle, chunk1: c1, chunk2: c2}, nil
}

// NewCenterRadius builds a Selector spanning the square of chunks within
// radiusChunks of the chunk containing center. maxChunkLength is the
// maximum allowed edge length (2*radiusChunks+1); pass 0 to skip the check.
func NewCenterRadius(center WorldPoint, radiusChunks, maxChunkLength int) (*Selector, error) {
	if radiusChunks < 0 {
		return nil, fmt.Errorf("selector: radius must not be negative, got %d", radiusChunks)
	}
	c := worldToChunk(center)
	c1 := anvil.ChunkPos{X: c.X - radiusChunks, Z: c.Z - radiusChunks}
	c2 := anvil.ChunkPos{X: c.X + radiusChunks, Z: c.Z + radiusChunks}
	if err := checkSize(c1, c2, maxChunkLength, "MaxChunkRadius"); err != nil {
		return nil, err
	}
	return &Selector{mode: ModeCenterRadius, chunk1: c1, chunk2: c2}, nil
}

func checkSize(c1, c2 anvil.ChunkPos, maxChunkLength int, kind string) error {
	width := abs(c1.X-c2.X) + 1
	height := abs(c1.Z-c2.Z) + 1
	if maxChunkLength > 0 && (width > maxChunkLength || height > maxChunkLength) {
		return &ErrTooLarge{Width: width, Height: height, Limit: maxChunkLength, kind: kind}
	}
	return nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// bounds returns the min/max chunk coordinates of the selector's
// rectangle, normalized so min <= max on both axes.
func (s *Selector) bounds() (minX, maxX, minZ, maxZ int) {
	minX, maxX = s.chunk1.X, s.chunk2.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minZ, maxZ = s.chunk1.Z, s.chunk2.Z
	if minZ > maxZ {
		minZ, maxZ = maxZ, minZ
	}
	return
}

// CornerChunks returns the selector's top-left and bottom-right chunk
// coordinates, the pair a slot manifest records so a later partial restore
// can rebuild the same selection without replaying the original command.
func (s *Selector) CornerChunks() (topLeft, bottomRight [2]int) {
	minX, maxX, minZ, maxZ := s.bounds()
	return [2]int{minX, minZ}, [2]int{maxX, maxZ}
}

// Chunks enumerates every chunk coordinate the selector covers.
func (s *Selector) Chunks() []anvil.ChunkPos {
	minX, maxX, minZ, maxZ := s.bounds()
	out := make([]anvil.ChunkPos, 0, (maxX-minX+1)*(maxZ-minZ+1))
	for x := minX; x <= maxX; x++ {
		for z := minZ; z <= maxZ; z++ {
			out = append(out, anvil.ChunkPos{X: x, Z: z})
		}
	}
	return out
}

// Intersects reports whether s and other cover at least one common chunk.
func (s *Selector) Intersects(other *Selector) bool {
	aMinX, aMaxX, aMinZ, aMaxZ := s.bounds()
	bMinX, bMaxX, bMinZ, bMaxZ := other.bounds()
	if aMaxX < bMinX || bMaxX < aMinX {
		return false
	}
	if aMaxZ < bMinZ || bMaxZ < aMinZ {
		return false
	}
	return true
}

// GroupByRegion groups the selector's chunks by region file, using the
// full-region marker when all 1024 chunks of a region are selected.
func (s *Selector) GroupByRegion() anvil.Grouping {
	return groupChunks(s.Chunks())
}

// CombineAndGroup unions the chunks covered by every selector and groups
// the result by region file. Used to build the grouping for a backup made
// of several selectors (e.g. a custom backup's sub-slots sharing one
// dimension) without double-counting chunks both select.
func CombineAndGroup(selectors []*Selector) anvil.Grouping {
	seen := make(map[anvil.ChunkPos]struct{})
	var all []anvil.ChunkPos
	for _, sel := range selectors {
		for _, c := range sel.Chunks() {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			all = append(all, c)
		}
	}
	return groupChunks(all)
}

func groupChunks(chunks []anvil.ChunkPos) anvil.Grouping {
	byRegion := make(map[string]map[anvil.ChunkPos]struct{})
	for _, c := range chunks {
		rx, rz := anvil.RegionCoords(c.X, c.Z)
		name := anvil.RegionFileName(rx, rz)
		set, ok := byRegion[name]
		if !ok {
			set = make(map[anvil.ChunkPos]struct{})
			byRegion[name] = set
		}
		pos, _ := anvil.LocalIndex(c.X, c.Z)
		set[anvil.ChunkPos{X: pos.X, Z: pos.Z}] = struct{}{}
	}

	grouping := make(anvil.Grouping, len(byRegion))
	for name, set := range byRegion {
		if len(set) == regionChunkCount {
			grouping[name] = anvil.RegionGroup{Full: true}
			continue
		}
		local := make([]anvil.ChunkPos, 0, len(set))
		for c := range set {
			local = append(local, c)
		}
		sort.Slice(local, func(i, j int) bool {
			if local[i].X != local[j].X {
				return local[i].X < local[j].X
			}
			return local[i].Z < local[j].Z
		})
		grouping[name] = anvil.RegionGroup{Chunks: local}
	}
	return grouping
}

const regionChunkCount = 32 * 32
