package repository

import (
	"context"
	"errors"
	"time"

	"github.com/freeeve/baghchal/api/pkg/baghchal"
)

// PolicyStore persists encoded policy artifacts, one per side.
type PolicyStore interface {
	SavePolicy(ctx context.Context, side baghchal.Side, data []byte) error
	// LoadPolicy returns nil, nil when no policy has been saved for side.
	LoadPolicy(ctx context.Context, side baghchal.Side) ([]byte, error)
}

// PolicyCache is a PolicyStore that may forget entries.
type PolicyCache interface {
	PolicyStore
	DeletePolicy(ctx context.Context, side baghchal.Side) error
}

// PolicyInfo describes a stored policy without loading it.
type PolicyInfo struct {
	Side      baghchal.Side
	Episodes  int
	Size      int
	UpdatedAt time.Time
}

// ErrListUnsupported is returned by a PolicyLister whose backing store
// cannot enumerate policies.
var ErrListUnsupported = errors.New("policy store cannot list policies")

// PolicyLister is implemented by stores that can enumerate their policies.
type PolicyLister interface {
	ListPolicies(ctx context.Context) ([]PolicyInfo, error)
}
