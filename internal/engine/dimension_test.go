package engine

import "testing"

func TestCheckDimensionDetectsDuplicate(t *testing.T) {
	good := DimensionTable{
		"0":  {DimensionID: "minecraft:overworld", WorldName: "world"},
		"-1": {DimensionID: "minecraft:the_nether", WorldName: "world"},
	}
	if !good.CheckDimension() {
		t.Fatal("expected no duplicates")
	}

	bad := DimensionTable{
		"0": {DimensionID: "minecraft:overworld", WorldName: "world"},
		"1": {DimensionID: "minecraft:overworld", WorldName: "world2"},
	}
	if bad.CheckDimension() {
		t.Fatal("expected duplicate dimension id to be detected")
	}
}

func TestSwappedKeysByDimensionID(t *testing.T) {
	table := DimensionTable{
		"0":  {DimensionID: "minecraft:overworld", WorldName: "world"},
		"-1": {DimensionID: "minecraft:the_nether", WorldName: "world"},
	}
	swapped := table.Swapped()
	if swapped == nil {
		t.Fatal("expected a non-nil swapped view")
	}
	entry, ok := swapped["minecraft:the_nether"]
	if !ok || entry.Key != "-1" {
		t.Fatalf("swapped[the_nether] = %+v, ok=%v", entry, ok)
	}
}

func TestSwappedReturnsNilOnDuplicate(t *testing.T) {
	table := DimensionTable{
		"0": {DimensionID: "minecraft:overworld"},
		"1": {DimensionID: "minecraft:overworld"},
	}
	if table.Swapped() != nil {
		t.Fatal("expected nil swapped view when check_dimension fails")
	}
}
