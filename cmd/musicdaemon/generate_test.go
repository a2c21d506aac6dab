package main

import "testing"

func TestCLIProgressNeverCancels(t *testing.T) {
	p := &cliProgress{}
	p.SetTotalSteps(10)
	p.Advance(5)

	if p.Cancelled() {
		t.Error("cliProgress.Cancelled() must always report false")
	}
}

func TestCLIProgressTracksTotal(t *testing.T) {
	p := &cliProgress{}
	p.SetTotalSteps(42)

	if p.total != 42 {
		t.Errorf("total = %d, want 42", p.total)
	}
}
