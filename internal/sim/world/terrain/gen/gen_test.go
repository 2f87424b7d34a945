package gen

import (
	"math"
	"testing"
)

func TestDims_CellsAndExceeds(t *testing.T) {
	cases := []struct {
		d       Dims
		cells   int
		exceeds bool
	}{
		{Dims{Rows: 20, Cols: 30}, 600, false},
		{Dims{Rows: 40, Cols: 50}, 2000, false},
		{Dims{Rows: 41, Cols: 50}, 2050, true},
		{Dims{Rows: 0, Cols: 50}, 0, false},
		{Dims{Rows: 1 << 32, Cols: 1 << 32}, math.MaxInt, true},
		{Dims{Rows: 1 << 33, Cols: 1 << 31}, math.MaxInt, true},
		{Dims{Rows: 1e9, Cols: 3}, 3e9, true},
	}
	for _, tc := range cases {
		if got := tc.d.Cells(); got != tc.cells {
			t.Fatalf("%+v cells=%d want %d", tc.d, got, tc.cells)
		}
		if got := tc.d.Exceeds(2000); got != tc.exceeds {
			t.Fatalf("%+v exceeds=%v want %v", tc.d, got, tc.exceeds)
		}
	}
	if !(Dims{Rows: 1, Cols: 1}).Exceeds(0) {
		t.Fatalf("zero limit admits nothing")
	}
}
