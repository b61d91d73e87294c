package baghchal

import (
	"fmt"
	"strconv"
)

// cellChar maps a point occupant to its key character.
var cellChar = map[Side]byte{
	None:  '.',
	Tiger: 'T',
	Goat:  'G',
}

// sideChar maps the side to move to its key character.
var sideChar = map[Side]byte{
	Tiger: 't',
	Goat:  'g',
}

// keyLen is 25 cells, '/', phase, two digits in hand, side.
const keyLen = NumPoints + 5

// KeyError reports a string that is not a valid state key.
type KeyError struct {
	Key     string
	Message string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("invalid state key %q: %s", e.Key, e.Message)
}

// Key returns the canonical encoding of every rule-relevant field of the
// position: cells in point order, phase, goats in hand, side to move.
// Captures are implied by the goat count. Ply is not part of the key.
// Example: "T...T...............T...T/P20g".
func (gs *State) Key() string {
	var buf [keyLen]byte
	for i, c := range gs.Cells {
		buf[i] = cellChar[c]
	}
	buf[NumPoints] = '/'
	if gs.Phase == Placement {
		buf[NumPoints+1] = 'P'
	} else {
		buf[NumPoints+1] = 'M'
	}
	buf[NumPoints+2] = byte('0' + gs.GoatsInHand/10)
	buf[NumPoints+3] = byte('0' + gs.GoatsInHand%10)
	buf[NumPoints+4] = sideChar[gs.SideToMove]
	return string(buf[:])
}

// ParseKey decodes a state key. The resulting state has Ply 0.
func ParseKey(key string) (*State, error) {
	if len(key) != keyLen || key[NumPoints] != '/' {
		return nil, &KeyError{key, "wrong shape"}
	}
	gs := &State{}
	for i := 0; i < NumPoints; i++ {
		switch key[i] {
		case '.':
		case 'T':
			gs.Cells[i] = Tiger
		case 'G':
			gs.Cells[i] = Goat
		default:
			return nil, &KeyError{key, fmt.Sprintf("bad cell %q", key[i])}
		}
	}
	switch key[NumPoints+1] {
	case 'P':
		gs.Phase = Placement
	case 'M':
		gs.Phase = Movement
	default:
		return nil, &KeyError{key, fmt.Sprintf("bad phase %q", key[NumPoints+1])}
	}
	inHand, err := strconv.Atoi(key[NumPoints+2 : NumPoints+4])
	if err != nil {
		return nil, &KeyError{key, "bad goats in hand"}
	}
	gs.GoatsInHand = inHand
	switch key[NumPoints+4] {
	case 't':
		gs.SideToMove = Tiger
	case 'g':
		gs.SideToMove = Goat
	default:
		return nil, &KeyError{key, fmt.Sprintf("bad side %q", key[NumPoints+4])}
	}
	gs.GoatsCaptured = TotalGoats - inHand - gs.GoatsOnBoard()
	if err := gs.Validate(); err != nil {
		return nil, &KeyError{key, err.Error()}
	}
	return gs, nil
}
