package rpc

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// randomSeed draws a fresh 64-bit seed for a generate request that omitted
// one. Uses crypto/rand rather than the engines' math/rand/v2 PCG source:
// this value only needs to be unpredictable, not reproducible, and must not
// share state with any per-job tensor.Rng.
func randomSeed() (uint64, error) {
	var buf [8]byte

	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}

	return binary.BigEndian.Uint64(buf[:]), nil
}
