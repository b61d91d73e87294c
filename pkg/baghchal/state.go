package baghchal

import (
	"errors"
	"fmt"
	"strings"
)

const (
	NumTigers     = 4
	TotalGoats    = 20
	CapturesToWin = 5
)

// Side is a player, and also the occupant of a point. None marks an
// empty point or, as a winner, a game without one.
type Side uint8

const (
	None Side = iota
	Tiger
	Goat
)

// ErrUnknownSide is returned when a side token is not "tiger" or "goat".
var ErrUnknownSide = errors.New("unknown side")

func (s Side) String() string {
	switch s {
	case Tiger:
		return "tiger"
	case Goat:
		return "goat"
	default:
		return "none"
	}
}

// Opponent returns the other side.
func (s Side) Opponent() Side {
	switch s {
	case Tiger:
		return Goat
	case Goat:
		return Tiger
	default:
		return None
	}
}

// MarshalText encodes the side by name, "none" for no side.
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names written by MarshalText.
func (s *Side) UnmarshalText(b []byte) error {
	if string(b) == "none" || len(b) == 0 {
		*s = None
		return nil
	}
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSide parses "tiger" or "goat", ignoring case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tiger":
		return Tiger, nil
	case "goat":
		return Goat, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknownSide, s)
	}
}

// Phase is the game phase.
type Phase uint8

const (
	// Placement lasts until all 20 goats have entered the board.
	Placement Phase = iota
	Movement
)

func (p Phase) String() string {
	if p == Placement {
		return "placement"
	}
	return "movement"
}

// State is a complete snapshot of a position. States are values: Apply and
// Play return a new State and never touch their receiver.
type State struct {
	Cells         [NumPoints]Side
	Phase         Phase
	GoatsInHand   int
	GoatsCaptured int
	SideToMove    Side
	Ply           int
}

// NewInitialState returns the starting position: tigers on the four
// corners, all goats in hand, goat to move.
func NewInitialState() *State {
	gs := &State{
		Phase:       Placement,
		GoatsInHand: TotalGoats,
		SideToMove:  Goat,
	}
	for _, p := range []Point{PointAt(0, 0), PointAt(0, 4), PointAt(4, 0), PointAt(4, 4)} {
		gs.Cells[p] = Tiger
	}
	return gs
}

// Clone returns a copy of the state.
func (gs *State) Clone() *State {
	c := *gs
	return &c
}

// At returns the occupant of p.
func (gs *State) At(p Point) Side {
	return gs.Cells[p]
}

// GoatsOnBoard returns the number of goats currently on the board.
func (gs *State) GoatsOnBoard() int {
	n := 0
	for _, c := range gs.Cells {
		if c == Goat {
			n++
		}
	}
	return n
}

// PointsOf returns the points occupied by side in ascending order.
func (gs *State) PointsOf(side Side) []Point {
	var pts []Point
	for i, c := range gs.Cells {
		if c == side {
			pts = append(pts, Point(i))
		}
	}
	return pts
}

// SamePosition reports whether two states agree on everything that affects
// play. Ply is ignored.
func (gs *State) SamePosition(o *State) bool {
	return gs.Cells == o.Cells &&
		gs.Phase == o.Phase &&
		gs.GoatsInHand == o.GoatsInHand &&
		gs.GoatsCaptured == o.GoatsCaptured &&
		gs.SideToMove == o.SideToMove
}

// Validate checks the structural invariants of a position.
func (gs *State) Validate() error {
	tigers := 0
	for _, c := range gs.Cells {
		switch c {
		case Tiger:
			tigers++
		case None, Goat:
		default:
			return fmt.Errorf("invalid cell value %d", c)
		}
	}
	if tigers != NumTigers {
		return fmt.Errorf("expected %d tigers, found %d", NumTigers, tigers)
	}
	if gs.GoatsInHand < 0 || gs.GoatsCaptured < 0 {
		return fmt.Errorf("negative goat count")
	}
	if total := gs.GoatsInHand + gs.GoatsOnBoard() + gs.GoatsCaptured; total != TotalGoats {
		return fmt.Errorf("goat count %d, want %d", total, TotalGoats)
	}
	if (gs.Phase == Placement) != (gs.GoatsInHand > 0) {
		return fmt.Errorf("%s phase with %d goats in hand", gs.Phase, gs.GoatsInHand)
	}
	if gs.SideToMove != Tiger && gs.SideToMove != Goat {
		return fmt.Errorf("invalid side to move %d", gs.SideToMove)
	}
	return nil
}

func (gs *State) String() string {
	var b strings.Builder
	for row := BoardSize - 1; row >= 0; row-- {
		fmt.Fprintf(&b, "%d ", row+1)
		for col := 0; col < BoardSize; col++ {
			b.WriteByte(cellChar[gs.Cells[PointAt(row, col)]])
		}
		b.WriteByte('\n')
	}
	b.WriteString("  abcde\n")
	fmt.Fprintf(&b, "%s, %s to move, %d in hand, %d captured, ply %d",
		gs.Phase, gs.SideToMove, gs.GoatsInHand, gs.GoatsCaptured, gs.Ply)
	return b.String()
}
