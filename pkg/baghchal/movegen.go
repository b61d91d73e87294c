package baghchal

// LegalMoves returns every legal move for the side to move, in generation
// order: by origin, then steps before jumps, then by destination. A
// finished game has no legal moves.
func LegalMoves(gs *State) []Move {
	return AppendLegalMoves(nil, gs)
}

// AppendLegalMoves is LegalMoves appending into dst, so a search can reuse
// one buffer per depth.
func AppendLegalMoves(dst []Move, gs *State) []Move {
	if over, _ := IsGameOver(gs); over {
		return dst
	}
	return appendMoves(dst, gs, gs.SideToMove)
}

func appendMoves(dst []Move, gs *State, side Side) []Move {
	b := Board()
	if side == Goat && gs.Phase == Placement {
		for i, c := range gs.Cells {
			if c == None {
				dst = append(dst, Place(Point(i)))
			}
		}
		return dst
	}
	for i, c := range gs.Cells {
		if c != side {
			continue
		}
		p := Point(i)
		for _, n := range b.Neighbors(p) {
			if gs.Cells[n] == None {
				dst = append(dst, Step(p, n))
			}
		}
		if side != Tiger {
			continue
		}
		for _, j := range b.Jumps(p) {
			if gs.Cells[j.Over] == Goat && gs.Cells[j.Land] == None {
				dst = append(dst, Capture(p, j.Over, j.Land))
			}
		}
	}
	return dst
}

// tigerMoves counts the legal moves of the tiger on p.
func tigerMoves(gs *State, p Point) int {
	b := Board()
	n := 0
	for _, q := range b.Neighbors(p) {
		if gs.Cells[q] == None {
			n++
		}
	}
	for _, j := range b.Jumps(p) {
		if gs.Cells[j.Over] == Goat && gs.Cells[j.Land] == None {
			n++
		}
	}
	return n
}

// TigerMobility returns the number of legal tiger moves, whichever side is
// to move.
func TigerMobility(gs *State) int {
	n := 0
	for i, c := range gs.Cells {
		if c == Tiger {
			n += tigerMoves(gs, Point(i))
		}
	}
	return n
}

// TrappedTigers returns the number of tigers with no legal move.
func TrappedTigers(gs *State) int {
	n := 0
	for i, c := range gs.Cells {
		if c == Tiger && tigerMoves(gs, Point(i)) == 0 {
			n++
		}
	}
	return n
}

func hasMove(gs *State, side Side) bool {
	if side == Goat && gs.Phase == Placement {
		for _, c := range gs.Cells {
			if c == None {
				return true
			}
		}
		return false
	}
	b := Board()
	for i, c := range gs.Cells {
		if c != side {
			continue
		}
		if side == Tiger {
			if tigerMoves(gs, Point(i)) > 0 {
				return true
			}
			continue
		}
		for _, n := range b.Neighbors(Point(i)) {
			if gs.Cells[n] == None {
				return true
			}
		}
	}
	return false
}
