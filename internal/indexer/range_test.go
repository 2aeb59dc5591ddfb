package indexer

import (
	"reflect"
	"testing"
)

func TestSplitRange(t *testing.T) {
	got, err := SplitRange(100, 105, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []BlockRange{
		{From: 100, To: 101},
		{From: 102, To: 103},
		{From: 104, To: 105},
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeSingle(t *testing.T) {
	got, err := SplitRange(5, 5, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []BlockRange{{From: 5, To: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeInvalid(t *testing.T) {
	if _, err := SplitRange(10, 9, 1); err == nil {
		t.Fatalf("expected error for invalid range")
	}
	if _, err := SplitRange(1, 10, 0); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
}

func TestBlockRangeHalve(t *testing.T) {
	left, right, ok := BlockRange{From: 10, To: 25}.Halve()
	if !ok {
		t.Fatalf("expected split")
	}
	if left != (BlockRange{From: 10, To: 17}) || right != (BlockRange{From: 18, To: 25}) {
		t.Fatalf("unexpected halves: %+v %+v", left, right)
	}

	left, right, ok = BlockRange{From: 7, To: 8}.Halve()
	if !ok || left != (BlockRange{From: 7, To: 7}) || right != (BlockRange{From: 8, To: 8}) {
		t.Fatalf("unexpected halves: %+v %+v", left, right)
	}

	if _, _, ok := (BlockRange{From: 5, To: 5}).Halve(); ok {
		t.Fatalf("single block range must not split")
	}
}

func TestSplitRangeNearMaxBlock(t *testing.T) {
	const top = ^uint64(0)
	got, err := SplitRange(top-4, top, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []BlockRange{{From: top - 4, To: top - 2}, {From: top - 1, To: top}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}
