package tensor

import (
	"math"
	"testing"
)

func TestSoftmaxSumsToOne(t *testing.T) {
	out, err := Softmax([]float32{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Softmax: %v", err)
	}

	var sum float32
	for _, v := range out {
		sum += v
	}

	if math.Abs(float64(sum-1)) > 1e-5 {
		t.Fatalf("softmax sum = %f, want 1", sum)
	}

	if out[3] <= out[2] || out[2] <= out[1] || out[1] <= out[0] {
		t.Fatalf("softmax should preserve ordering, got %v", out)
	}
}

func TestSoftmaxEmpty(t *testing.T) {
	if _, err := Softmax(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestArgMax(t *testing.T) {
	idx, err := ArgMax([]float32{0.1, 0.9, 0.3, -1})
	if err != nil {
		t.Fatalf("ArgMax: %v", err)
	}

	if idx != 1 {
		t.Fatalf("ArgMax = %d, want 1", idx)
	}
}

func TestTopK(t *testing.T) {
	idx, err := TopK([]float32{5, 1, 9, 3, 7}, 3)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}

	want := []int{2, 4, 0} // values 9, 7, 5
	for i, v := range want {
		if idx[i] != v {
			t.Fatalf("TopK = %v, want %v", idx, want)
		}
	}
}

func TestTopKClampsToLength(t *testing.T) {
	idx, err := TopK([]float32{1, 2}, 10)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}

	if len(idx) != 2 {
		t.Fatalf("TopK len = %d, want 2", len(idx))
	}
}

func TestTopKRejectsNonPositiveK(t *testing.T) {
	if _, err := TopK([]float32{1, 2, 3}, 0); err == nil {
		t.Fatal("expected error for k=0")
	}
}

func TestRngDeterministicGivenSeed(t *testing.T) {
	a := NewRng(42)
	b := NewRng(42)

	for i := 0; i < 8; i++ {
		av := a.Float32()
		bv := b.Float32()

		if av != bv {
			t.Fatalf("draw %d diverged: %f vs %f", i, av, bv)
		}
	}
}

func TestRngDifferentSeedsDiverge(t *testing.T) {
	a := NewRng(1)
	b := NewRng(2)

	same := true

	for i := 0; i < 8; i++ {
		if a.Float32() != b.Float32() {
			same = false
			break
		}
	}

	if same {
		t.Fatal("different seeds produced identical draw sequences")
	}
}

func TestSampleTopKReturnsValidIndex(t *testing.T) {
	rng := NewRng(7)
	logits := []float32{0.1, 5.0, 0.2, 4.9, -3.0}

	for i := 0; i < 50; i++ {
		idx, err := rng.SampleTopK(logits, 2, 1.0)
		if err != nil {
			t.Fatalf("SampleTopK: %v", err)
		}

		if idx != 1 && idx != 3 {
			t.Fatalf("SampleTopK returned index %d outside top-2 {1,3}", idx)
		}
	}
}

func TestSampleTopKRejectsBadTemperature(t *testing.T) {
	rng := NewRng(1)
	if _, err := rng.SampleTopK([]float32{1, 2, 3}, 2, 0); err == nil {
		t.Fatal("expected error for temperature <= 0")
	}
}

func TestSampleTopKDeterministicGivenSeed(t *testing.T) {
	logits := []float32{1, 2, 3, 4, 5, 6, 7, 8}

	a := NewRng(99)
	b := NewRng(99)

	for i := 0; i < 16; i++ {
		ai, err := a.SampleTopK(logits, 4, 1.0)
		if err != nil {
			t.Fatalf("SampleTopK: %v", err)
		}

		bi, err := b.SampleTopK(logits, 4, 1.0)
		if err != nil {
			t.Fatalf("SampleTopK: %v", err)
		}

		if ai != bi {
			t.Fatalf("draw %d diverged: %d vs %d", i, ai, bi)
		}
	}
}
