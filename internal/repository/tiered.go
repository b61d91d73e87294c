package repository

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/baghchal/api/pkg/baghchal"
)

// TieredPolicyStore puts a cache in front of a durable store. Reads go to
// the cache first and fill it on a miss; writes go to the store, then the
// cache. Either layer may be nil. Cache failures are logged and otherwise
// ignored.
type TieredPolicyStore struct {
	Cache PolicyCache
	Store PolicyStore
}

// Enabled reports whether any layer is configured.
func (t *TieredPolicyStore) Enabled() bool {
	return t != nil && (t.Cache != nil || t.Store != nil)
}

// SavePolicy writes data through to both layers.
func (t *TieredPolicyStore) SavePolicy(ctx context.Context, side baghchal.Side, data []byte) error {
	if t.Store != nil {
		if err := t.Store.SavePolicy(ctx, side, data); err != nil {
			return err
		}
	}
	if t.Cache != nil {
		if err := t.Cache.SavePolicy(ctx, side, data); err != nil {
			if t.Store == nil {
				return err
			}
			log.Warn().Err(err).Str("side", side.String()).Msg("Policy cache write failed")
			// A stale entry would shadow the new policy.
			if err := t.Cache.DeletePolicy(ctx, side); err != nil {
				log.Warn().Err(err).Str("side", side.String()).Msg("Policy cache delete failed")
			}
		}
	}
	return nil
}

// LoadPolicy reads through the cache. It returns nil, nil when neither
// layer has a policy for side.
func (t *TieredPolicyStore) LoadPolicy(ctx context.Context, side baghchal.Side) ([]byte, error) {
	if t.Cache != nil {
		data, err := t.Cache.LoadPolicy(ctx, side)
		if err != nil {
			if t.Store == nil {
				return nil, err
			}
			log.Warn().Err(err).Str("side", side.String()).Msg("Policy cache read failed")
		} else if data != nil {
			return data, nil
		}
	}
	if t.Store == nil {
		return nil, nil
	}
	data, err := t.Store.LoadPolicy(ctx, side)
	if err != nil || data == nil {
		return data, err
	}
	if t.Cache != nil {
		if err := t.Cache.SavePolicy(ctx, side, data); err != nil {
			log.Warn().Err(err).Str("side", side.String()).Msg("Policy cache fill failed")
		}
	}
	return data, nil
}

// ListPolicies lists the durable store. The cache is never listed since it
// may have evicted entries.
func (t *TieredPolicyStore) ListPolicies(ctx context.Context) ([]PolicyInfo, error) {
	lister, ok := t.Store.(PolicyLister)
	if !ok {
		return nil, ErrListUnsupported
	}
	return lister.ListPolicies(ctx)
}
