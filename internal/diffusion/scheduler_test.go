package diffusion

import (
	"testing"

	"github.com/example/musicdaemon/internal/tensor"
)

func TestKarrasSigmasDecreasingToZero(t *testing.T) {
	sigmas := karrasSigmas(8)

	if len(sigmas) != 9 {
		t.Fatalf("len(sigmas) = %d, want 9", len(sigmas))
	}

	for i := 1; i < len(sigmas); i++ {
		if sigmas[i] > sigmas[i-1] {
			t.Fatalf("sigmas not decreasing at %d: %v", i, sigmas)
		}
	}

	if sigmas[len(sigmas)-1] != 0 {
		t.Fatalf("final sigma = %f, want 0", sigmas[len(sigmas)-1])
	}
}

func identityDenoise(latent []float32, _ float64) ([]float32, error) {
	out := make([]float32, len(latent))
	copy(out, latent)
	return out, nil
}

func TestNewSchedulerVariants(t *testing.T) {
	for _, name := range []string{SchedulerEuler, SchedulerHeun, SchedulerPingPong} {
		s, err := NewScheduler(name)
		if err != nil {
			t.Fatalf("NewScheduler(%q): %v", name, err)
		}

		if s == nil {
			t.Fatalf("NewScheduler(%q) returned nil", name)
		}
	}
}

func TestNewSchedulerRejectsUnknown(t *testing.T) {
	if _, err := NewScheduler("bogus"); err == nil {
		t.Fatal("expected error for unknown scheduler variant")
	}
}

func TestEulerStepConvergesTowardDenoised(t *testing.T) {
	s := eulerScheduler{}
	sigmas := s.Sigmas(4)

	latent := []float32{5, -5}

	out, err := s.Step(identityDenoise, latent, sigmas, 0, nil)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	// identityDenoise makes d == 0, so latent should be unchanged.
	for i := range latent {
		if out[i] != latent[i] {
			t.Fatalf("Step()[%d] = %f, want %f (d=0 means no movement)", i, out[i], latent[i])
		}
	}
}

func TestHeunStepLastStepMatchesEuler(t *testing.T) {
	s := heunScheduler{}
	sigmas := []float64{1, 0}

	latent := []float32{2, 2}

	out, err := s.Step(identityDenoise, latent, sigmas, 0, nil)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	for i := range latent {
		if out[i] != latent[i] {
			t.Fatalf("Step()[%d] = %f, want %f", i, out[i], latent[i])
		}
	}
}

func TestPingPongStepFinalReturnsDenoisedExactly(t *testing.T) {
	s := pingPongScheduler{}
	sigmas := []float64{1, 0}

	latent := []float32{3, 4}

	out, err := s.Step(identityDenoise, latent, sigmas, 0, tensor.NewRng(1))
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	for i := range latent {
		if out[i] != latent[i] {
			t.Fatalf("Step()[%d] = %f, want %f (final step has no noise)", i, out[i], latent[i])
		}
	}
}

func TestPingPongStepIsDeterministicGivenSeed(t *testing.T) {
	s := pingPongScheduler{}
	sigmas := []float64{1, 0.5, 0}

	latent := []float32{1, 1, 1}

	out1, err := s.Step(identityDenoise, latent, sigmas, 0, tensor.NewRng(42))
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	out2, err := s.Step(identityDenoise, latent, sigmas, 0, tensor.NewRng(42))
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	for i := range out1 {
		if out1[i] != out2[i] {
			t.Fatalf("PingPong step not deterministic: %v vs %v", out1, out2)
		}
	}
}
