package gen

import "testing"

func TestGenerateCave_Deterministic(t *testing.T) {
	for _, p := range []CaveParams{DungeonParams, CaveDefaults} {
		a := GenerateCave(30, 20, 987654, p.FillProbability, p.Steps)
		b := GenerateCave(30, 20, 987654, p.FillProbability, p.Steps)
		if a.Width != 30 || a.Height != 20 || len(a.Cells) != 600 {
			t.Fatalf("unexpected shape %dx%d (%d cells)", a.Width, a.Height, len(a.Cells))
		}
		for i := range a.Cells {
			if a.Cells[i] != b.Cells[i] {
				t.Fatalf("cell %d differs between identical runs", i)
			}
		}
	}
}

func TestGenerateCave_SeedChangesLayout(t *testing.T) {
	a := GenerateCave(30, 20, 1, 0.45, 5)
	b := GenerateCave(30, 20, 2, 0.45, 5)
	same := true
	for i := range a.Cells {
		if a.Cells[i] != b.Cells[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("different seeds produced identical caves")
	}
}

func TestGenerateCave_SmoothingNeverAddsIslands(t *testing.T) {
	for seed := uint32(1); seed <= 25; seed++ {
		prev := GenerateCave(30, 20, seed, 0.45, 0).Islands()
		for steps := 1; steps <= 6; steps++ {
			cur := GenerateCave(30, 20, seed, 0.45, steps).Islands()
			if cur > prev {
				t.Fatalf("seed %d: islands rose from %d to %d at %d steps", seed, prev, cur, steps)
			}
			prev = cur
		}
	}
}

func TestGenerateCave_HasFloor(t *testing.T) {
	for seed := uint32(100); seed < 120; seed++ {
		g := GenerateCave(30, 20, seed, DungeonParams.FillProbability, DungeonParams.Steps)
		if g.Count(Floor) == 0 {
			t.Fatalf("seed %d: cave has no floor", seed)
		}
	}
	// A fully walled start still gets the center clearing.
	g := GenerateCave(30, 20, 7, 1.0, 2)
	if g.At(15, 10) != Floor {
		t.Fatalf("center should be cleared when no floor survives")
	}
}

func TestGenerateCave_DegenerateSizes(t *testing.T) {
	g := GenerateCave(0, 10, 1, 0.45, 5)
	if len(g.Cells) != 0 {
		t.Fatalf("zero width should give an empty grid")
	}
	if g.At(0, 0) != Wall {
		t.Fatalf("out-of-bounds reads are walls")
	}
}

func TestConnectRegions_JoinsSeparatedRooms(t *testing.T) {
	g := newCaveGrid(12, 7)
	for i := range g.Cells {
		g.Cells[i] = Wall
	}
	for y := 1; y <= 3; y++ {
		for x := 1; x <= 3; x++ {
			g.set(x, y, Floor)
		}
	}
	for y := 3; y <= 5; y++ {
		for x := 8; x <= 10; x++ {
			g.set(x, y, Floor)
		}
	}
	if n := len(g.Regions(Floor)); n != 2 {
		t.Fatalf("setup has %d regions, want 2", n)
	}
	g.connectRegions()
	if n := len(g.Regions(Floor)); n != 1 {
		t.Fatalf("after connecting: %d regions, want 1", n)
	}
}

func TestClearCenter_ChecksFirstDiscoveredRegion(t *testing.T) {
	g := newCaveGrid(12, 12)
	for i := range g.Cells {
		g.Cells[i] = Wall
	}
	g.set(1, 1, Floor)
	for y := 9; y <= 10; y++ {
		for x := 1; x <= 10; x++ {
			g.set(x, y, Floor)
		}
	}
	g.clearCenterIfSparse()
	for y := 4; y <= 8; y++ {
		for x := 4; x <= 8; x++ {
			if g.At(x, y) != Floor {
				t.Fatalf("(%d,%d) not cleared", x, y)
			}
		}
	}

	big := newCaveGrid(12, 12)
	for i := range big.Cells {
		big.Cells[i] = Wall
	}
	for y := 1; y <= 2; y++ {
		for x := 1; x <= 10; x++ {
			big.set(x, y, Floor)
		}
	}
	big.clearCenterIfSparse()
	if big.At(6, 6) != Wall {
		t.Fatalf("center cleared although the first region is large")
	}
}

func TestSmooth_ThresholdRule(t *testing.T) {
	g := newCaveGrid(5, 5)
	// All floor: interior cells see 0 walls and stay floor, edge cells see
	// out-of-bounds walls.
	n := g.smooth()
	if n.At(2, 2) != Floor {
		t.Fatalf("interior of empty grid should stay floor")
	}
	if n.At(0, 0) != Wall {
		t.Fatalf("corner sees 5 out-of-bounds walls and must become wall")
	}
	// Edge (non-corner) cell sees exactly 3 out-of-bounds walls: below threshold.
	if n.At(2, 0) != Floor {
		t.Fatalf("edge cell with 3 walls should become floor")
	}
}

func TestIslands(t *testing.T) {
	g := newCaveGrid(5, 5)
	g.set(2, 2, Wall)
	if got := g.Islands(); got != 1 {
		t.Fatalf("single wall in floor: islands=%d want 1", got)
	}
	g.removeSpeckles()
	if got := g.Islands(); got != 0 {
		t.Fatalf("after speckle removal: islands=%d", got)
	}
	if g.At(2, 2) != Floor {
		t.Fatalf("isolated wall should flip to floor")
	}
}
