// Package dedup stores consumer checkpoints: the highest event sequence a
// consumer has handled for each partition.
package dedup

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	selectCheckpointSQL = `
		SELECT last_sequence
		FROM consumer_checkpoints
		WHERE consumer = $1 AND partition_key = $2`

	// The conditional update keeps a checkpoint from moving backwards when
	// two deliveries of one partition race.
	advanceCheckpointSQL = `
		INSERT INTO consumer_checkpoints (consumer, partition_key, last_sequence)
		VALUES ($1, $2, $3)
		ON CONFLICT (consumer, partition_key) DO UPDATE
		SET last_sequence = EXCLUDED.last_sequence, updated_at = now()
		WHERE consumer_checkpoints.last_sequence < EXCLUDED.last_sequence`
)

// Executor is satisfied by *pgxpool.Pool and pgx.Tx.
type Executor interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type Repository struct {
	exec Executor
}

func NewRepository(exec Executor) *Repository {
	return &Repository{exec: exec}
}

// WithTx binds the checkpoint writes to tx.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{exec: tx}
}

func (r *Repository) GetLastSequence(ctx context.Context, consumer, partitionKey string) (int64, bool, error) {
	var last int64
	err := r.exec.QueryRow(ctx, selectCheckpointSQL, consumer, partitionKey).Scan(&last)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("checkpoint %s/%s: %w", consumer, partitionKey, err)
	}
	return last, true, nil
}

// UpsertLastSequence records seq unless a higher sequence is already stored.
func (r *Repository) UpsertLastSequence(ctx context.Context, consumer, partitionKey string, seq int64) error {
	if seq <= 0 {
		return fmt.Errorf("checkpoint %s/%s: sequence %d is not positive", consumer, partitionKey, seq)
	}
	if _, err := r.exec.Exec(ctx, advanceCheckpointSQL, consumer, partitionKey, seq); err != nil {
		return fmt.Errorf("advance checkpoint %s/%s: %w", consumer, partitionKey, err)
	}
	return nil
}
