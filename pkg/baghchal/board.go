package baghchal

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

const (
	BoardSize = 5
	NumPoints = BoardSize * BoardSize
)

// Point identifies one of the 25 intersections, numbered row-major from
// a1 (0) to e5 (24). Columns are lettered a..e, rows numbered 1..5.
type Point int8

// NoPoint marks an absent origin or capture on a Move.
const NoPoint Point = -1

// PointAt returns the point at the given zero-based row and column.
func PointAt(row, col int) Point {
	return Point(row*BoardSize + col)
}

func (p Point) Row() int { return int(p) / BoardSize }
func (p Point) Col() int { return int(p) % BoardSize }

// Valid reports whether p is on the board.
func (p Point) Valid() bool { return p >= 0 && int(p) < NumPoints }

func (p Point) String() string {
	if !p.Valid() {
		return "-"
	}
	return string([]byte{byte('a' + p.Col()), byte('1' + p.Row())})
}

// ParsePoint parses a point name such as "c3".
func ParsePoint(s string) (Point, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'e' || s[1] < '1' || s[1] > '5' {
		return NoPoint, fmt.Errorf("invalid point %q", s)
	}
	return PointAt(int(s[1]-'1'), int(s[0]-'a')), nil
}

// boardLines lists every straight line drawn on the board. Two points are
// adjacent iff they are consecutive on some line, and a tiger may jump from
// one end of three consecutive points to the other.
var boardLines = []string{
	// rows
	"a1 b1 c1 d1 e1",
	"a2 b2 c2 d2 e2",
	"a3 b3 c3 d3 e3",
	"a4 b4 c4 d4 e4",
	"a5 b5 c5 d5 e5",
	// columns
	"a1 a2 a3 a4 a5",
	"b1 b2 b3 b4 b5",
	"c1 c2 c3 c4 c5",
	"d1 d2 d3 d4 d5",
	"e1 e2 e3 e4 e5",
	// corner to corner
	"a1 b2 c3 d4 e5",
	"e1 d2 c3 b4 a5",
	// diamond, edge midpoint to edge midpoint
	"c1 b2 a3",
	"a3 b4 c5",
	"c5 d4 e3",
	"e3 d2 c1",
}

// Jump is a capture geometry: a tiger jumps over Over and lands on Land.
type Jump struct {
	Over Point
	Land Point
}

// Adjacency is the static movement graph of the board.
type Adjacency struct {
	neighbors [NumPoints][]Point
	jumps     [NumPoints][]Jump
	adjacent  [NumPoints][NumPoints]bool
	edges     int
}

// ModelError reports a malformed board geometry.
type ModelError struct {
	Line    string
	Message string
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("invalid board line %q: %s", e.Line, e.Message)
}

var (
	boardOnce sync.Once
	boardInst *Adjacency
)

// Board returns the standard board graph. It is built once and shared;
// callers must not mutate it. A malformed geometry panics since nothing
// can be played on it.
func Board() *Adjacency {
	boardOnce.Do(func() {
		a, err := buildAdjacency(boardLines)
		if err != nil {
			panic(err)
		}
		boardInst = a
	})
	return boardInst
}

func buildAdjacency(lines []string) (*Adjacency, error) {
	a := &Adjacency{}
	for _, line := range lines {
		var pts []Point
		for _, name := range strings.Fields(line) {
			p, err := ParsePoint(name)
			if err != nil {
				return nil, &ModelError{line, err.Error()}
			}
			pts = append(pts, p)
		}
		if len(pts) < 2 {
			return nil, &ModelError{line, "a line needs at least two points"}
		}
		for i := 1; i < len(pts); i++ {
			from, to := pts[i-1], pts[i]
			dr, dc := to.Row()-from.Row(), to.Col()-from.Col()
			if dr < -1 || dr > 1 || dc < -1 || dc > 1 || (dr == 0 && dc == 0) {
				return nil, &ModelError{line, fmt.Sprintf("%s and %s are not neighbors", from, to)}
			}
			if i >= 2 {
				prev := pts[i-2]
				if from.Row()-prev.Row() != dr || from.Col()-prev.Col() != dc {
					return nil, &ModelError{line, fmt.Sprintf("%s %s %s is not straight", prev, from, to)}
				}
			}
			if dr != 0 && dc != 0 && (from.Row()+from.Col())%2 != 0 {
				return nil, &ModelError{line, fmt.Sprintf("diagonal through %s", from)}
			}
			if a.adjacent[from][to] {
				return nil, &ModelError{line, fmt.Sprintf("duplicate edge %s-%s", from, to)}
			}
			a.adjacent[from][to] = true
			a.adjacent[to][from] = true
			a.neighbors[from] = append(a.neighbors[from], to)
			a.neighbors[to] = append(a.neighbors[to], from)
			a.edges++
		}
		for i := 2; i < len(pts); i++ {
			a.jumps[pts[i-2]] = append(a.jumps[pts[i-2]], Jump{Over: pts[i-1], Land: pts[i]})
			a.jumps[pts[i]] = append(a.jumps[pts[i]], Jump{Over: pts[i-1], Land: pts[i-2]})
		}
	}
	for p := range a.neighbors {
		sort.Slice(a.neighbors[p], func(i, j int) bool { return a.neighbors[p][i] < a.neighbors[p][j] })
		sort.Slice(a.jumps[p], func(i, j int) bool { return a.jumps[p][i].Land < a.jumps[p][j].Land })
	}
	return a, nil
}

// Adjacent reports whether p and q share an edge.
func (a *Adjacency) Adjacent(p, q Point) bool {
	if !p.Valid() || !q.Valid() {
		return false
	}
	return a.adjacent[p][q]
}

// Neighbors returns the points adjacent to p in ascending order.
func (a *Adjacency) Neighbors(p Point) []Point {
	return a.neighbors[p]
}

// Jumps returns every straight-line jump starting at p, ordered by landing point.
func (a *Adjacency) Jumps(p Point) []Jump {
	return a.jumps[p]
}

// JumpOver returns the point jumped over when moving from origin to land
// along a straight line, or false if no such jump exists.
func (a *Adjacency) JumpOver(origin, land Point) (Point, bool) {
	if !origin.Valid() || !land.Valid() {
		return NoPoint, false
	}
	for _, j := range a.jumps[origin] {
		if j.Land == land {
			return j.Over, true
		}
	}
	return NoPoint, false
}

// Edges returns the number of undirected edges.
func (a *Adjacency) Edges() int { return a.edges }
