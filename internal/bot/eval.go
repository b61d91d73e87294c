package bot

import "github.com/freeeve/baghchal/api/pkg/baghchal"

// Evaluation weights. Scores are from the tiger's point of view: tigers
// maximize, goats minimize. One capture outweighs any mobility swing the
// board allows.
const (
	CaptureWeight  = 100
	MobilityWeight = 2
	TrappedWeight  = 15

	// WinScore is the value of a won game before ply adjustment.
	WinScore = 10000
)

// Evaluate scores a position on material and tiger mobility.
func Evaluate(gs *baghchal.State) int {
	return CaptureWeight*gs.GoatsCaptured +
		MobilityWeight*baghchal.TigerMobility(gs) -
		TrappedWeight*baghchal.TrappedTigers(gs)
}

// terminalScore scores a finished game reached ply plies below the root.
// Nearer wins score higher, nearer losses lower. A draw keeps the material
// and mobility of the position it ended in.
func terminalScore(gs *baghchal.State, winner baghchal.Side, ply int) int {
	switch winner {
	case baghchal.Tiger:
		return WinScore - ply
	case baghchal.Goat:
		return -WinScore + ply
	default:
		return Evaluate(gs)
	}
}
