package anvil

import "sort"

// SectorRange is a contiguous run of free sectors, [Start, Start+Count).
type SectorRange struct {
	Start int
	Count int
}

// Allocator tracks a region file's free-sector list and serves best-fit
// allocations against it, coalescing as it goes. It does not touch the
// file itself; callers translate Allocate's result into actual writes.
type Allocator struct {
	free []SectorRange
}

// NewAllocator builds an Allocator from a (not necessarily sorted or
// coalesced) free-sector list, typically the result of ScanFreeSectors.
func NewAllocator(free []SectorRange) *Allocator {
	cp := append([]SectorRange(nil), free...)
	return &Allocator{free: coalesce(cp)}
}

// Allocate finds the smallest free range that fits required sectors
// (best-fit, ties broken by lowest start sector) and carves it out of the
// free list. If no run fits, appended is true and the caller must append
// the new sectors past the current end of file; start is meaningless in
// that case.
func (a *Allocator) Allocate(required int) (start int, appended bool) {
	best := -1
	bestWaste := -1
	for i, r := range a.free {
		if r.Count < required {
			continue
		}
		waste := r.Count - required
		if best == -1 || waste < bestWaste || (waste == bestWaste && r.Start < a.free[best].Start) {
			best = i
			bestWaste = waste
		}
	}
	if best == -1 {
		return 0, true
	}
	r := a.free[best]
	if r.Count == required {
		a.free = append(a.free[:best], a.free[best+1:]...)
	} else {
		a.free[best] = SectorRange{Start: r.Start + required, Count: r.Count - required}
	}
	return r.Start, false
}

// Free returns a copy of the allocator's current free-sector list, sorted
// and coalesced.
func (a *Allocator) Free() []SectorRange {
	return append([]SectorRange(nil), a.free...)
}

// coalesce sorts ranges by start and merges adjacent or overlapping runs.
func coalesce(ranges []SectorRange) []SectorRange {
	if len(ranges) == 0 {
		return ranges
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	out := ranges[:1]
	for _, r := range ranges[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.Start+last.Count {
			if end := r.Start + r.Count; end > last.Start+last.Count {
				last.Count = end - last.Start
			}
			continue
		}
		out = append(out, r)
	}
	return out
}
