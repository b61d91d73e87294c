package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/freeeve/baghchal/api/pkg/baghchal"
)

// PolicyTTL is how long a cached policy artifact lives.
const PolicyTTL = 24 * time.Hour

func policyKey(side baghchal.Side) string { return "policy:" + side.String() }

// SavePolicy caches the encoded policy for side.
func (c *Client) SavePolicy(ctx context.Context, side baghchal.Side, data []byte) error {
	if err := c.rdb.Set(ctx, policyKey(side), data, PolicyTTL).Err(); err != nil {
		return fmt.Errorf("cache policy: %w", err)
	}
	return nil
}

// LoadPolicy returns the cached policy for side, or nil on a miss.
func (c *Client) LoadPolicy(ctx context.Context, side baghchal.Side) ([]byte, error) {
	data, err := c.rdb.Get(ctx, policyKey(side)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached policy: %w", err)
	}
	return data, nil
}

// DeletePolicy drops the cached policy for side.
func (c *Client) DeletePolicy(ctx context.Context, side baghchal.Side) error {
	return c.rdb.Del(ctx, policyKey(side)).Err()
}
