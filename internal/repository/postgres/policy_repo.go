package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/freeeve/baghchal/api/internal/repository"
	"github.com/freeeve/baghchal/api/pkg/baghchal"
)

// PolicyRepo stores encoded policy artifacts in the policy_tables table.
type PolicyRepo struct {
	db *sql.DB
}

// NewPolicyRepo creates a PolicyRepo.
func NewPolicyRepo(db *sql.DB) *PolicyRepo {
	return &PolicyRepo{db: db}
}

// SavePolicy inserts or replaces the policy for side. The episode count is
// read from the artifact so it can be listed without decoding the tables.
func (r *PolicyRepo) SavePolicy(ctx context.Context, side baghchal.Side, data []byte) error {
	var header struct {
		Episodes int `json:"episodes"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return fmt.Errorf("save policy: read header: %w", err)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO policy_tables (side, data, episodes)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (side)
		 DO UPDATE SET data = EXCLUDED.data, episodes = EXCLUDED.episodes, updated_at = now()`,
		side.String(), data, header.Episodes,
	)
	if err != nil {
		return fmt.Errorf("save policy: %w", err)
	}
	return nil
}

// LoadPolicy returns the stored artifact for side, or nil if there is none.
func (r *PolicyRepo) LoadPolicy(ctx context.Context, side baghchal.Side) ([]byte, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM policy_tables WHERE side = $1`,
		side.String(),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	return data, nil
}

// ListPolicies returns metadata for every stored policy.
func (r *PolicyRepo) ListPolicies(ctx context.Context) ([]repository.PolicyInfo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT side, episodes, octet_length(data), updated_at FROM policy_tables ORDER BY side`,
	)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var out []repository.PolicyInfo
	for rows.Next() {
		var (
			p    repository.PolicyInfo
			side string
		)
		if err := rows.Scan(&side, &p.Episodes, &p.Size, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		if p.Side, err = baghchal.ParseSide(side); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePolicy removes the stored policy for side.
func (r *PolicyRepo) DeletePolicy(ctx context.Context, side baghchal.Side) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM policy_tables WHERE side = $1`, side.String())
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	return nil
}
