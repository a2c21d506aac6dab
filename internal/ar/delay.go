package ar

// delayGrid holds per-codebook token ids across the staggered delay-pattern
// timeline described in spec §4.4 step 2: codebook k is prefixed by k pad
// tokens, so its real tokens occupy timeline positions [k, k+frames).
type delayGrid struct {
	codebooks int
	frames    int
	padToken  int64
	cells     [][]int64 // cells[k] has length totalSteps()
}

func newDelayGrid(codebooks, frames int, padToken int64) *delayGrid {
	total := frames + codebooks - 1

	cells := make([][]int64, codebooks)
	for k := range cells {
		row := make([]int64, total)
		for i := range row {
			row[i] = padToken
		}

		cells[k] = row
	}

	return &delayGrid{codebooks: codebooks, frames: frames, padToken: padToken, cells: cells}
}

// totalSteps is the number of raw decode steps needed to let every
// codebook's delayed stream finish its frames real tokens.
func (g *delayGrid) totalSteps() int {
	return g.frames + g.codebooks - 1
}

// active reports whether codebook k has a real (non-pad) token to sample at
// raw step t, i.e. t falls within [k, k+frames).
func (g *delayGrid) active(k, t int) bool {
	return t >= k && t-k < g.frames
}

// inputFrame returns the per-codebook token fed as input at step t: the
// token each codebook produced at step t-1 (or pad if t==0 or the codebook
// hasn't started yet).
func (g *delayGrid) inputFrame(t int) []int64 {
	frame := make([]int64, g.codebooks)

	for k := range frame {
		if t == 0 {
			frame[k] = g.padToken
			continue
		}

		frame[k] = g.cells[k][t-1]
	}

	return frame
}

func (g *delayGrid) set(k, t int, token int64) {
	g.cells[k][t] = token
}

// extract undoes the delay pattern, returning a (codebooks, frames) grid
// with no pad tokens — spec §4.4 step 6 and the boundary test in §8 ("no pad
// token leaks into the codec input").
func (g *delayGrid) extract() [][]int64 {
	out := make([][]int64, g.codebooks)
	for k := range out {
		out[k] = append([]int64(nil), g.cells[k][k:k+g.frames]...)
	}

	return out
}
