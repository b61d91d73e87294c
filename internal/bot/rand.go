package bot

import (
	"time"

	"golang.org/x/exp/rand"
)

// newRng returns a random source for one strategy instance. Strategies never
// share a source, so games running in parallel stay reproducible. A zero
// seed draws one from the clock.
func newRng(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(uint64(seed)))
}

// GameSeed derives the seed of one game in a match. Zero stays zero so an
// unseeded match stays unseeded.
func GameSeed(base int64, game int) int64 {
	if base == 0 {
		return 0
	}
	return base + int64(game)
}
