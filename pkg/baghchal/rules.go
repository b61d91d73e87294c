package baghchal

import "fmt"

// Rule names the rule an illegal move breaks.
type Rule string

const (
	RuleGameOver       Rule = "game over"
	RuleMalformed      Rule = "malformed move"
	RuleWrongPhase     Rule = "wrong phase"
	RuleWrongSide      Rule = "wrong side"
	RuleOccupied       Rule = "occupied destination"
	RuleNotAdjacent    Rule = "non-adjacent"
	RuleNotCollinear   Rule = "non-collinear jump"
	RuleCaptureNonGoat Rule = "capturing a non-goat"
	RuleGoatCapture    Rule = "goats cannot capture"
)

// IllegalMoveError describes why a move cannot be applied.
type IllegalMoveError struct {
	Move    Move
	Rule    Rule
	Message string
}

func (e *IllegalMoveError) Error() string {
	return fmt.Sprintf("illegal move %s (%s): %s", e.Move, e.Rule, e.Message)
}

// IsGameOver reports whether the game has ended and who won. Tigers win
// once CapturesToWin goats are captured; goats win when no tiger can move.
// A goat to move in the movement phase with no legal move ends the game
// with no winner, since goats cannot pass.
func IsGameOver(gs *State) (bool, Side) {
	if gs.GoatsCaptured >= CapturesToWin {
		return true, Tiger
	}
	if !hasMove(gs, Tiger) {
		return true, Goat
	}
	if gs.SideToMove == Goat && !hasMove(gs, Goat) {
		return true, None
	}
	return false, None
}

// Apply validates m against gs and returns the resulting state. gs is
// never modified. An illegal move returns an *IllegalMoveError.
func Apply(gs *State, m Move) (*State, error) {
	if err := validateMove(gs, m); err != nil {
		return nil, err
	}
	return gs.Play(m), nil
}

// Play returns the state after m without validating it. Use it only with
// moves obtained from LegalMoves on the same state.
func (gs *State) Play(m Move) *State {
	next := *gs
	side := gs.SideToMove
	if m.IsPlacement() {
		next.GoatsInHand--
		if next.GoatsInHand == 0 {
			next.Phase = Movement
		}
	} else {
		next.Cells[m.Origin] = None
	}
	next.Cells[m.Dest] = side
	if m.IsCapture() {
		next.Cells[m.Captured] = None
		next.GoatsCaptured++
	}
	next.SideToMove = side.Opponent()
	next.Ply++
	return &next
}

func validateMove(gs *State, m Move) error {
	if over, _ := IsGameOver(gs); over {
		return &IllegalMoveError{m, RuleGameOver, "the game has already ended"}
	}
	if !m.Dest.Valid() {
		return &IllegalMoveError{m, RuleMalformed, "destination is off the board"}
	}
	if m.Origin != NoPoint && !m.Origin.Valid() {
		return &IllegalMoveError{m, RuleMalformed, "origin is off the board"}
	}
	if m.Captured != NoPoint && !m.Captured.Valid() {
		return &IllegalMoveError{m, RuleMalformed, "captured point is off the board"}
	}
	if gs.SideToMove == Goat {
		return validateGoatMove(gs, m)
	}
	return validateTigerMove(gs, m)
}

func validateGoatMove(gs *State, m Move) error {
	if m.IsCapture() {
		return &IllegalMoveError{m, RuleGoatCapture, "only tigers capture"}
	}
	if m.IsPlacement() {
		if gs.Phase != Placement {
			return &IllegalMoveError{m, RuleWrongPhase, "no goats left to place"}
		}
	} else {
		if gs.Phase != Movement {
			return &IllegalMoveError{m, RuleWrongPhase, "goats must be placed until none remain in hand"}
		}
		if gs.Cells[m.Origin] != Goat {
			return &IllegalMoveError{m, RuleWrongSide, fmt.Sprintf("no goat on %s", m.Origin)}
		}
	}
	if gs.Cells[m.Dest] != None {
		return &IllegalMoveError{m, RuleOccupied, fmt.Sprintf("%s holds a %s", m.Dest, gs.Cells[m.Dest])}
	}
	if !m.IsPlacement() && !Board().Adjacent(m.Origin, m.Dest) {
		return &IllegalMoveError{m, RuleNotAdjacent, fmt.Sprintf("%s is not adjacent to %s", m.Dest, m.Origin)}
	}
	return nil
}

func validateTigerMove(gs *State, m Move) error {
	if m.IsPlacement() {
		return &IllegalMoveError{m, RuleMalformed, "tigers are never placed"}
	}
	if gs.Cells[m.Origin] != Tiger {
		return &IllegalMoveError{m, RuleWrongSide, fmt.Sprintf("no tiger on %s", m.Origin)}
	}
	if gs.Cells[m.Dest] != None {
		return &IllegalMoveError{m, RuleOccupied, fmt.Sprintf("%s holds a %s", m.Dest, gs.Cells[m.Dest])}
	}
	b := Board()
	if !m.IsCapture() {
		if !b.Adjacent(m.Origin, m.Dest) {
			return &IllegalMoveError{m, RuleNotAdjacent, fmt.Sprintf("%s is not adjacent to %s", m.Dest, m.Origin)}
		}
		return nil
	}
	over, ok := b.JumpOver(m.Origin, m.Dest)
	if !ok || over != m.Captured {
		return &IllegalMoveError{m, RuleNotCollinear, fmt.Sprintf("%s, %s and %s are not consecutive on one line", m.Origin, m.Captured, m.Dest)}
	}
	if gs.Cells[m.Captured] != Goat {
		return &IllegalMoveError{m, RuleCaptureNonGoat, fmt.Sprintf("%s holds no goat", m.Captured)}
	}
	return nil
}
