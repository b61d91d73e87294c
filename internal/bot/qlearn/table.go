package qlearn

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/freeeve/baghchal/api/pkg/baghchal"
)

// Table maps a state key to the values of the actions tried there.
type Table map[string]map[string]float64

func (t Table) get(state, action string) float64 {
	return t[state][action]
}

func (t Table) set(state, action string, v float64) {
	row, ok := t[state]
	if !ok {
		row = make(map[string]float64)
		t[state] = row
	}
	row[action] = v
}

func (t Table) clone() Table {
	c := make(Table, len(t))
	for state, row := range t {
		r := make(map[string]float64, len(row))
		for a, v := range row {
			r[a] = v
		}
		c[state] = r
	}
	return c
}

// Snapshot is a published, read-only policy for one side: the two double
// Q-learning tables plus training bookkeeping. Nothing modifies a Snapshot
// after it is published.
type Snapshot struct {
	Side         baghchal.Side
	A, B         Table
	Episodes     int
	TrainingTime time.Duration
	TrainedAt    time.Time
}

// EmptySnapshot is the policy of an untrained agent.
func EmptySnapshot(side baghchal.Side) *Snapshot {
	return &Snapshot{Side: side, A: Table{}, B: Table{}}
}

// Seen reports whether either table has an entry for state.
func (s *Snapshot) Seen(state string) bool {
	return len(s.A[state]) > 0 || len(s.B[state]) > 0
}

// Sum returns QA+QB for a state-action pair, the quantity action selection
// ranks by. Missing entries count as zero.
func (s *Snapshot) Sum(state, action string) float64 {
	return s.A.get(state, action) + s.B.get(state, action)
}

// Combined returns the mean of QA and QB for every action known at state.
func (s *Snapshot) Combined(state string) map[string]float64 {
	out := make(map[string]float64, len(s.A[state])+len(s.B[state]))
	for a := range s.A[state] {
		out[a] = s.Sum(state, a) / 2
	}
	for a := range s.B[state] {
		out[a] = s.Sum(state, a) / 2
	}
	return out
}

// StateKeys returns every state in either table, sorted.
func (s *Snapshot) StateKeys() []string {
	keys := make([]string, 0, len(s.A))
	for k := range s.A {
		keys = append(keys, k)
	}
	for k := range s.B {
		if _, ok := s.A[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// States returns the number of distinct states in either table.
func (s *Snapshot) States() int {
	n := len(s.A)
	for k := range s.B {
		if _, ok := s.A[k]; !ok {
			n++
		}
	}
	return n
}

// Pairs returns the number of distinct state-action pairs in either table.
func (s *Snapshot) Pairs() int {
	n := 0
	for state, row := range s.A {
		n += len(row)
		for a := range s.B[state] {
			if _, ok := row[a]; !ok {
				n++
			}
		}
	}
	for state, row := range s.B {
		if _, ok := s.A[state]; !ok {
			n += len(row)
		}
	}
	return n
}

// Handle owns the current policy of one side. Readers always get a whole
// snapshot; training publishes new ones with Store.
type Handle struct {
	side baghchal.Side
	p    atomic.Pointer[Snapshot]
}

// NewHandle returns a handle holding an empty policy for side.
func NewHandle(side baghchal.Side) *Handle {
	h := &Handle{side: side}
	h.p.Store(EmptySnapshot(side))
	return h
}

// Side returns the side the handle's policies play.
func (h *Handle) Side() baghchal.Side { return h.side }

// Load returns the current snapshot. It is never nil.
func (h *Handle) Load() *Snapshot { return h.p.Load() }

// Store publishes s as the current snapshot.
func (h *Handle) Store(s *Snapshot) { h.p.Store(s) }
