package plan

import (
	"context"
	"database/sql"
	"errors"

	"lumen/ingest/internal/policy"
)

// PostgresResolver maps a user to their plan through the subscriptions
// table. Anyone without an active subscription is on Free.
type PostgresResolver struct {
	db *sql.DB
}

func NewPostgresResolver(db *sql.DB) *PostgresResolver {
	return &PostgresResolver{db: db}
}

func (r *PostgresResolver) PlanFor(ctx context.Context, userID string) (policy.Plan, error) {
	var (
		plan   string
		status string
	)
	query := `SELECT plan, status FROM subscriptions WHERE user_id = $1 ORDER BY updated_at DESC LIMIT 1`
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&plan, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return policy.PlanFree, nil
	}
	if err != nil {
		return policy.PlanFree, err
	}
	if status != "active" {
		return policy.PlanFree, nil
	}
	return policy.Plan(plan), nil
}
