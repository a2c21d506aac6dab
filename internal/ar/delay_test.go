package ar

import "testing"

func TestDelayGridTotalSteps(t *testing.T) {
	g := newDelayGrid(4, 10, 99)
	if got := g.totalSteps(); got != 13 {
		t.Fatalf("totalSteps() = %d, want 13", got)
	}
}

func TestDelayGridActiveWindow(t *testing.T) {
	g := newDelayGrid(4, 5, 99)

	cases := []struct {
		k, t int
		want bool
	}{
		{0, 0, true},
		{1, 0, false},
		{3, 2, false},
		{3, 3, true},
		{3, 7, true},
		{3, 8, false},
		{0, 5, false},
	}

	for _, c := range cases {
		if got := g.active(c.k, c.t); got != c.want {
			t.Fatalf("active(%d,%d) = %v, want %v", c.k, c.t, got, c.want)
		}
	}
}

func TestDelayGridExtractHasNoPadLeakage(t *testing.T) {
	const pad = int64(2048)

	g := newDelayGrid(4, 6, pad)

	for t := 0; t < g.totalSteps(); t++ {
		for k := 0; k < g.codebooks; k++ {
			if g.active(k, t) {
				g.set(k, t, int64(100+k)) // distinct real token per codebook
			}
		}
	}

	grid := g.extract()

	if len(grid) != 4 {
		t.Fatalf("extract() returned %d codebooks, want 4", len(grid))
	}

	for k, row := range grid {
		if len(row) != 6 {
			t.Fatalf("codebook %d has %d frames, want 6", k, len(row))
		}

		for _, tok := range row {
			if tok == pad {
				t.Fatalf("codebook %d leaked a pad token: %v", k, row)
			}

			if tok != int64(100+k) {
				t.Fatalf("codebook %d got token %d, want %d", k, tok, 100+k)
			}
		}
	}
}

func TestDelayGridInputFrameUsesPreviousStep(t *testing.T) {
	g := newDelayGrid(2, 4, 7)

	frame0 := g.inputFrame(0)
	if frame0[0] != 7 || frame0[1] != 7 {
		t.Fatalf("inputFrame(0) = %v, want all pad", frame0)
	}

	g.set(0, 0, 42)
	g.set(1, 0, 43)

	frame1 := g.inputFrame(1)
	if frame1[0] != 42 || frame1[1] != 43 {
		t.Fatalf("inputFrame(1) = %v, want [42, 43]", frame1)
	}
}

func TestFramesFor(t *testing.T) {
	cfg := DefaultModelConfig("v1")

	cases := map[int]int{
		1:  50,
		5:  250,
		10: 500,
	}

	for dur, want := range cases {
		if got := cfg.FramesFor(dur); got != want {
			t.Fatalf("FramesFor(%d) = %d, want %d", dur, got, want)
		}
	}
}

func TestCombineGuidance(t *testing.T) {
	cond := []float32{2, 4}
	uncond := []float32{1, 1}

	out := combineGuidance(cond, uncond)

	// guidanceScale is 3.0: uncond + 3*(cond-uncond)
	want := []float32{1 + 3*(2-1), 1 + 3*(4-1)}
	for i := range out {
		if out[i] != want[i] {
			t.Fatalf("combineGuidance[%d] = %f, want %f", i, out[i], want[i])
		}
	}
}
