package baghchal

import (
	"math/rand"
	"testing"
)

// FuzzRandomPlayout verifies random games never break the position
// invariants and end for one of the known reasons.
func FuzzRandomPlayout(f *testing.F) {
	f.Add(int64(42))
	f.Add(int64(123456))
	f.Add(int64(0))

	f.Fuzz(func(t *testing.T, seed int64) {
		rng := rand.New(rand.NewSource(seed))
		gs := NewInitialState()
		for ply := 0; ply < 500; ply++ {
			if err := gs.Validate(); err != nil {
				t.Fatalf("ply %d: %v\n%s", ply, err, gs)
			}
			moves := LegalMoves(gs)
			over, winner := IsGameOver(gs)
			if over != (len(moves) == 0) {
				t.Fatalf("game over = %v with %d legal moves", over, len(moves))
			}
			if over {
				switch winner {
				case Tiger:
					if gs.GoatsCaptured < CapturesToWin {
						t.Fatalf("tiger wins with %d captures", gs.GoatsCaptured)
					}
				case Goat:
					if TigerMobility(gs) != 0 {
						t.Fatal("goat wins while tigers can move")
					}
				}
				return
			}
			m := moves[rng.Intn(len(moves))]
			next, err := Apply(gs, m)
			if err != nil {
				t.Fatalf("generated move rejected: %v", err)
			}
			if m.IsCapture() && next.GoatsCaptured != gs.GoatsCaptured+1 {
				t.Fatal("capture did not count")
			}
			gs = next
		}
	})
}
