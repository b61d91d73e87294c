package qlearn

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/freeeve/baghchal/api/pkg/baghchal"
)

const formatVersion = 1

// ErrBadFormat is returned when decoding data that is not a policy artifact.
var ErrBadFormat = errors.New("bad policy format")

type snapshotJSON struct {
	Version        int           `json:"version"`
	Side           baghchal.Side `json:"side"`
	Episodes       int           `json:"episodes"`
	TrainingTimeMS int64         `json:"training_time_ms"`
	TrainedAt      time.Time     `json:"trained_at"`
	QA             Table         `json:"qa"`
	QB             Table         `json:"qb"`
}

// Encode serializes a snapshot into the policy artifact format.
func Encode(s *Snapshot) ([]byte, error) {
	data, err := json.Marshal(snapshotJSON{
		Version:        formatVersion,
		Side:           s.Side,
		Episodes:       s.Episodes,
		TrainingTimeMS: s.TrainingTime.Milliseconds(),
		TrainedAt:      s.TrainedAt,
		QA:             s.A,
		QB:             s.B,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s policy: %w", s.Side, err)
	}
	return data, nil
}

// Decode parses a policy artifact. Every state and action key is checked,
// so a decoded snapshot never holds a key the engine cannot reproduce.
func Decode(data []byte) (*Snapshot, error) {
	var raw snapshotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	if raw.Version != formatVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadFormat, raw.Version)
	}
	if raw.Side != baghchal.Tiger && raw.Side != baghchal.Goat {
		return nil, fmt.Errorf("%w: no side", ErrBadFormat)
	}
	if raw.QA == nil {
		raw.QA = Table{}
	}
	if raw.QB == nil {
		raw.QB = Table{}
	}
	for _, t := range []Table{raw.QA, raw.QB} {
		if err := checkKeys(t, raw.Side); err != nil {
			return nil, err
		}
	}
	return &Snapshot{
		Side:         raw.Side,
		A:            raw.QA,
		B:            raw.QB,
		Episodes:     raw.Episodes,
		TrainingTime: time.Duration(raw.TrainingTimeMS) * time.Millisecond,
		TrainedAt:    raw.TrainedAt,
	}, nil
}

func checkKeys(t Table, side baghchal.Side) error {
	for state, row := range t {
		gs, err := baghchal.ParseKey(state)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
		if gs.SideToMove != side {
			return fmt.Errorf("%w: %s state %q in a %s policy", ErrBadFormat, gs.SideToMove, state, side)
		}
		for action := range row {
			if _, err := baghchal.ParseMove(action); err != nil {
				return fmt.Errorf("%w: %v", ErrBadFormat, err)
			}
		}
	}
	return nil
}
