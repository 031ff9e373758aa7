package anvil

import "testing"

func TestAllocatorBestFit(t *testing.T) {
	a := NewAllocator([]SectorRange{
		{Start: 2, Count: 1},
		{Start: 10, Count: 5},
		{Start: 20, Count: 2},
	})

	start, appended := a.Allocate(2)
	if appended {
		t.Fatal("expected a fit, got appended")
	}
	if start != 20 {
		t.Fatalf("best-fit should choose the smallest sufficient run (20,2), got start=%d", start)
	}

	start, appended = a.Allocate(1)
	if appended || start != 2 {
		t.Fatalf("expected exact-fit run at 2, got start=%d appended=%v", start, appended)
	}

	start, appended = a.Allocate(5)
	if appended || start != 10 {
		t.Fatalf("expected run at 10, got start=%d appended=%v", start, appended)
	}

	if _, appended = a.Allocate(1); !appended {
		t.Fatal("expected append once the free list is exhausted")
	}
}

func TestAllocatorAllocateShrinksRun(t *testing.T) {
	a := NewAllocator([]SectorRange{{Start: 5, Count: 10}})
	start, appended := a.Allocate(3)
	if appended || start != 5 {
		t.Fatalf("unexpected allocation result start=%d appended=%v", start, appended)
	}
	free := a.Free()
	if len(free) != 1 || free[0] != (SectorRange{Start: 8, Count: 7}) {
		t.Fatalf("expected remaining run {8 7}, got %+v", free)
	}
}

func TestCoalesceMergesAdjacentAndOverlapping(t *testing.T) {
	got := coalesce([]SectorRange{
		{Start: 10, Count: 2},
		{Start: 2, Count: 3},
		{Start: 5, Count: 5}, // touches [2,5) at 5
		{Start: 20, Count: 1},
	})
	want := []SectorRange{{Start: 2, Count: 8}, {Start: 10, Count: 2}, {Start: 20, Count: 1}}
	if len(got) != len(want) {
		t.Fatalf("coalesce() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("coalesce()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}
