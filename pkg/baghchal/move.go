package baghchal

import (
	"fmt"
	"strings"
)

// Move is a single turn. Origin is NoPoint for a goat placement; Captured
// is set only for a tiger jump.
type Move struct {
	Origin   Point
	Dest     Point
	Captured Point
}

// Place returns a goat placement on p.
func Place(p Point) Move {
	return Move{Origin: NoPoint, Dest: p, Captured: NoPoint}
}

// Step returns a move along a single edge.
func Step(from, to Point) Move {
	return Move{Origin: from, Dest: to, Captured: NoPoint}
}

// Capture returns a tiger jump from origin over the goat on over to land.
func Capture(origin, over, land Point) Move {
	return Move{Origin: origin, Dest: land, Captured: over}
}

func (m Move) IsPlacement() bool { return m.Origin == NoPoint }
func (m Move) IsCapture() bool   { return m.Captured != NoPoint }

// String returns the move notation: "c3" for a placement, "a1-b2" for a
// step, "a1xc3" for a capture. The notation doubles as the action key of a
// learned policy table.
func (m Move) String() string {
	switch {
	case m.IsPlacement():
		return m.Dest.String()
	case m.IsCapture():
		return m.Origin.String() + "x" + m.Dest.String()
	default:
		return m.Origin.String() + "-" + m.Dest.String()
	}
}

// ParseMove parses move notation. A capture's jumped point is recovered
// from the board geometry; a jump with no straight line between its ends
// is rejected.
func ParseMove(s string) (Move, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case len(s) == 2:
		p, err := ParsePoint(s)
		if err != nil {
			return Move{}, fmt.Errorf("parse move %q: %w", s, err)
		}
		return Place(p), nil
	case len(s) == 5 && (s[2] == '-' || s[2] == 'x'):
		from, err := ParsePoint(s[:2])
		if err != nil {
			return Move{}, fmt.Errorf("parse move %q: %w", s, err)
		}
		to, err := ParsePoint(s[3:])
		if err != nil {
			return Move{}, fmt.Errorf("parse move %q: %w", s, err)
		}
		if s[2] == '-' {
			return Step(from, to), nil
		}
		over, ok := Board().JumpOver(from, to)
		if !ok {
			return Move{}, fmt.Errorf("parse move %q: no straight jump from %s to %s", s, from, to)
		}
		return Capture(from, over, to), nil
	default:
		return Move{}, fmt.Errorf("parse move %q: unrecognized notation", s)
	}
}
