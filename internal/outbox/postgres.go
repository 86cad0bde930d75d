package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"example.com/taskform/internal/store"
)

type execQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresExecutor upserts entries into a Postgres table. The stable key
// is the conflict target, so redelivery overwrites instead of duplicating.
type PostgresExecutor struct {
	db execQuerier
}

// NewPostgresExecutor constructs a PostgresExecutor. db is typically a
// *pgxpool.Pool.
func NewPostgresExecutor(db execQuerier) *PostgresExecutor {
	return &PostgresExecutor{db: db}
}

// Deliver upserts the entry keyed by stable key.
func (e *PostgresExecutor) Deliver(ctx context.Context, entry store.OutboxEntry) error {
	variables, err := json.Marshal(entry.Variables)
	if err != nil {
		return fmt.Errorf("encode variables: %w", err)
	}

	const query = `INSERT INTO task_temp_answers (stable_key, document, variables, received_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (stable_key) DO UPDATE SET
            document = EXCLUDED.document,
            variables = EXCLUDED.variables,
            received_at = NOW()`

	_, err = e.db.Exec(ctx, query, entry.StableKey, entry.Document, variables)
	return err
}
