package ar

import (
	"testing"

	"github.com/example/musicdaemon/internal/onnxsession"
)

func TestSplitCodebookLogits(t *testing.T) {
	flat := []float32{1, 2, 3, 4, 5, 6, 7, 8} // 2 codebooks x 4 vocab
	tensor, err := onnxsession.NewTensor(flat, []int64{1, 1, 8})
	if err != nil {
		t.Fatalf("NewTensor: %v", err)
	}

	out, err := splitCodebookLogits(tensor, 2)
	if err != nil {
		t.Fatalf("splitCodebookLogits: %v", err)
	}

	if len(out) != 2 {
		t.Fatalf("got %d codebooks, want 2", len(out))
	}

	want0 := []float32{1, 2, 3, 4}
	want1 := []float32{5, 6, 7, 8}

	for i := range want0 {
		if out[0][i] != want0[i] {
			t.Fatalf("codebook 0 = %v, want %v", out[0], want0)
		}
	}

	for i := range want1 {
		if out[1][i] != want1[i] {
			t.Fatalf("codebook 1 = %v, want %v", out[1], want1)
		}
	}
}

func TestSplitCodebookLogitsRejectsBadDivision(t *testing.T) {
	tensor, err := onnxsession.NewTensor([]float32{1, 2, 3}, []int64{1, 1, 3})
	if err != nil {
		t.Fatalf("NewTensor: %v", err)
	}

	if _, err := splitCodebookLogits(tensor, 4); err == nil {
		t.Fatal("expected error for non-divisible logits length")
	}
}

type fakeProgress struct {
	total     int
	current   int
	cancelled bool
}

func (f *fakeProgress) SetTotalSteps(total int) { f.total = total }
func (f *fakeProgress) Advance(current int)     { f.current = current }
func (f *fakeProgress) Cancelled() bool         { return f.cancelled }

func TestProgressInterfaceShape(t *testing.T) {
	var p Progress = &fakeProgress{}

	p.SetTotalSteps(10)
	p.Advance(3)

	fp := p.(*fakeProgress)
	if fp.total != 10 || fp.current != 3 {
		t.Fatalf("fakeProgress state = %+v, want total=10 current=3", fp)
	}
}
