package main

import (
	"encoding/json"
	"strings"
	"testing"

	"aralia.dev/internal/protocol"
	"aralia.dev/internal/sim/encoding"
)

func TestWalker_DeterministicUnitSteps(t *testing.T) {
	a, b := newWalker(7), newWalker(7)
	prev := [2]int{}
	for i := 0; i < 50; i++ {
		pa, pb := a.step(), b.step()
		if pa != pb {
			t.Fatalf("step %d: %v != %v", i, pa, pb)
		}
		dx, dy := pa[0]-prev[0], pa[1]-prev[1]
		if dx*dx+dy*dy != 1 {
			t.Fatalf("step %d: moved %v -> %v", i, prev, pa)
		}
		prev = pa
	}
}

func TestDescribe(t *testing.T) {
	sm, _ := json.Marshal(protocol.SubmapMsg{
		Type: protocol.TypeSubmap, Rows: 1, Cols: 2, Digest: "abc", Palette: []string{"water"},
		Encoding: protocol.EncodingRLE, Blocked: encoding.EncodeBits([]bool{true, false}),
	})
	line, err := describe(sm)
	if err != nil || !strings.Contains(line, "digest=abc") || !strings.Contains(line, "blocked=1/2") {
		t.Fatalf("line=%q err=%v", line, err)
	}

	e, _ := json.Marshal(protocol.NewError("r", protocol.ErrBadRequest, "nope"))
	line, err = describe(e)
	if err != nil || !strings.Contains(line, protocol.ErrBadRequest) {
		t.Fatalf("line=%q err=%v", line, err)
	}

	if _, err := describe([]byte(`{"type":"TILE"}`)); err == nil {
		t.Fatalf("expected error for unexpected type")
	}
}
