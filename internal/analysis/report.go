// Package analysis turns match results and learned policies into the
// reports shown on the admin AI analysis screen.
package analysis

import (
	"errors"
	"math"
	"time"

	"github.com/freeeve/baghchal/api/internal/bot"
	"github.com/freeeve/baghchal/api/internal/model"
	"github.com/freeeve/baghchal/api/pkg/baghchal"
)

// AdaptivenessWeights define the adaptiveness score:
//
//	score = 100 * (Stability*stability + Breadth*breadth + Performance*performance)
//
// stability is 1 - min(1, stddev(win rates)/50), breadth is
// min(1, log10(1+states)/log10(1+BreadthReference)) and performance is the
// mean win rate over 100. The three weights sum to 1, so the score lies in
// [0, 100]; higher is better.
type AdaptivenessWeights struct {
	Stability        float64
	Breadth          float64
	Performance      float64
	BreadthReference float64
}

// DefaultAdaptivenessWeights are the weights reported scores use.
var DefaultAdaptivenessWeights = AdaptivenessWeights{
	Stability:        0.4,
	Breadth:          0.3,
	Performance:      0.3,
	BreadthReference: 100000,
}

// ErrSameName is returned when both contestants share a name, since
// results are attributed by name.
var ErrSameName = errors.New("contestants need distinct names")

// ComparisonInput is everything BuildComparison needs.
type ComparisonInput struct {
	Difficulty string
	QName      string
	GuestName  string
	// Results of the main match between the two contestants.
	Results []bot.MatchResult
	// Probes holds shorter matches of the learned agent against other
	// levels, keyed by level. They only feed its adaptiveness score.
	Probes map[string][]bot.MatchResult
	// TrainingTime is the total training time behind the learned policies.
	TrainingTime time.Duration
	// QStates is the number of distinct states in the learned policies.
	QStates int
	Weights *AdaptivenessWeights
}

// BuildComparison aggregates a match into the comparison report.
func BuildComparison(in ComparisonInput) (*model.AnalysisResponse, error) {
	if in.QName == in.GuestName {
		return nil, ErrSameName
	}
	w := DefaultAdaptivenessWeights
	if in.Weights != nil {
		w = *in.Weights
	}

	resp := &model.AnalysisResponse{
		GuestAIDifficulty: in.Difficulty,
		NumGames:          len(in.Results),
	}
	for i := range in.Results {
		switch in.Results[i].WinnerName() {
		case in.QName:
			resp.QLearningWins++
		case in.GuestName:
			resp.GuestAIWins++
		default:
			resp.Draws++
		}
	}

	q := tally(in.Results, in.QName)
	guest := tally(in.Results, in.GuestName)
	avgLen := avgGameLength(in.Results)

	qSamples := []float64{q.winRate(baghchal.Tiger), q.winRate(baghchal.Goat)}
	for _, level := range bot.GuestDifficulties() {
		probe, ok := in.Probes[string(level)]
		if !ok || string(level) == in.Difficulty || len(probe) == 0 {
			continue
		}
		qSamples = append(qSamples, tally(probe, in.QName).overallWinRate())
	}
	guestSamples := []float64{guest.winRate(baghchal.Tiger), guest.winRate(baghchal.Goat)}

	resp.Results = []model.ComparisonResult{{
		AlgorithmComparison: model.AlgorithmComparison{
			DoubleQLearning: model.AlgorithmStats{
				WinRateAsTiger:      q.winRate(baghchal.Tiger),
				WinRateAsGoat:       q.winRate(baghchal.Goat),
				AvgGameLength:       avgLen,
				DecisionTimeMS:      q.decisionTimeMS(),
				TrainingTimeMinutes: round(in.TrainingTime.Minutes(), 2),
				StatesExplored:      int64(in.QStates),
				AdaptivenessScore:   Adaptiveness(qSamples, int64(in.QStates), w),
			},
			Minimax: model.AlgorithmStats{
				WinRateAsTiger:    guest.winRate(baghchal.Tiger),
				WinRateAsGoat:     guest.winRate(baghchal.Goat),
				AvgGameLength:     avgLen,
				DecisionTimeMS:    guest.decisionTimeMS(),
				StatesExplored:    guest.nodes,
				AdaptivenessScore: Adaptiveness(guestSamples, guest.nodes, w),
			},
		},
	}}
	return resp, nil
}

type record struct {
	played, won int
}

type contestantTally struct {
	bySide       map[baghchal.Side]*record
	decisions    int
	decisionTime time.Duration
	nodes        int64
}

func tally(results []bot.MatchResult, name string) *contestantTally {
	t := &contestantTally{bySide: map[baghchal.Side]*record{
		baghchal.Tiger: {},
		baghchal.Goat:  {},
	}}
	for i := range results {
		ps, ok := results[i].Player(name)
		if !ok {
			continue
		}
		rec := t.bySide[ps.Side]
		rec.played++
		if results[i].Winner == ps.Side {
			rec.won++
		}
		t.decisions += ps.Decisions
		t.decisionTime += ps.DecisionTime
		t.nodes += ps.Nodes
	}
	return t
}

func (t *contestantTally) winRate(side baghchal.Side) float64 {
	rec := t.bySide[side]
	if rec.played == 0 {
		return 0
	}
	return round(100*float64(rec.won)/float64(rec.played), 2)
}

func (t *contestantTally) overallWinRate() float64 {
	played, won := 0, 0
	for _, rec := range t.bySide {
		played += rec.played
		won += rec.won
	}
	if played == 0 {
		return 0
	}
	return round(100*float64(won)/float64(played), 2)
}

func (t *contestantTally) decisionTimeMS() float64 {
	if t.decisions == 0 {
		return 0
	}
	ms := float64(t.decisionTime) / float64(time.Millisecond) / float64(t.decisions)
	return round(ms, 2)
}

func avgGameLength(results []bot.MatchResult) float64 {
	if len(results) == 0 {
		return 0
	}
	total := 0
	for i := range results {
		total += results[i].Moves
	}
	return round(float64(total)/float64(len(results)), 2)
}

// Adaptiveness scores how evenly an algorithm performs across conditions
// and how much of the game it has seen. winRates are percentages.
func Adaptiveness(winRates []float64, states int64, w AdaptivenessWeights) float64 {
	if len(winRates) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range winRates {
		mean += r
	}
	mean /= float64(len(winRates))
	variance := 0.0
	for _, r := range winRates {
		variance += (r - mean) * (r - mean)
	}
	stddev := math.Sqrt(variance / float64(len(winRates)))

	stability := 1 - math.Min(1, stddev/50)
	breadth := 0.0
	if states > 0 && w.BreadthReference > 0 {
		breadth = math.Min(1, math.Log10(1+float64(states))/math.Log10(1+w.BreadthReference))
	}
	performance := clamp(mean/100, 0, 1)

	score := 100 * (w.Stability*stability + w.Breadth*breadth + w.Performance*performance)
	return round(clamp(score, 0, 100), 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
