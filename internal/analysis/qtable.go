package analysis

import (
	"math"

	"github.com/freeeve/baghchal/api/internal/bot/qlearn"
	"github.com/freeeve/baghchal/api/internal/model"
)

// DefaultSampleSize is how many states a Q-table summary shows.
const DefaultSampleSize = 10

// SummarizeTable reports a policy's size, a sample of its entries (the
// first states in key order) and statistics over every combined Q-value,
// the mean of the two tables. Values are rounded to three decimals. An
// empty policy summarizes to zeros.
func SummarizeTable(snap *qlearn.Snapshot, sampleSize int) model.QTableResponse {
	if sampleSize < 0 {
		sampleSize = 0
	}
	resp := model.QTableResponse{
		Player:                snap.Side.String(),
		QTableSize:            snap.States(),
		TotalStateActionPairs: snap.Pairs(),
		Episodes:              snap.Episodes,
		SampleEntries:         make(map[string]map[string]float64),
	}

	keys := snap.StateKeys()
	minQ, maxQ := math.Inf(1), math.Inf(-1)
	sum, n := 0.0, 0
	for i, key := range keys {
		combined := snap.Combined(key)
		for _, v := range combined {
			minQ = math.Min(minQ, v)
			maxQ = math.Max(maxQ, v)
			sum += v
			n++
		}
		if i < sampleSize {
			row := make(map[string]float64, len(combined))
			for a, v := range combined {
				row[a] = round(v, 3)
			}
			resp.SampleEntries[key] = row
		}
	}
	if n > 0 {
		resp.Statistics = model.QTableStatistics{
			MaxQValue: round(maxQ, 3),
			MinQValue: round(minQ, 3),
			AvgQValue: round(sum/float64(n), 3),
		}
	}
	return resp
}
