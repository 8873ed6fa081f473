// Package sequence hands out per-partition producer sequence numbers so
// consumers can drop replays and notice gaps.
package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const nextSequenceSQL = `
	INSERT INTO partition_sequences AS s (partition_key, last_sequence)
	VALUES ($1, 1)
	ON CONFLICT (partition_key) DO UPDATE
	SET last_sequence = s.last_sequence + 1, updated_at = now()
	RETURNING last_sequence`

var ErrEmptyPartition = errors.New("empty partition key")

type Store interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	store Store
}

func NewRepository(store Store) *Repository {
	return &Repository{store: store}
}

// NextSequence returns 1 for the first event of a partition and increments
// atomically afterwards.
func (r *Repository) NextSequence(ctx context.Context, partitionKey string) (int64, error) {
	if partitionKey == "" {
		return 0, ErrEmptyPartition
	}

	var seq int64
	if err := r.store.QueryRow(ctx, nextSequenceSQL, partitionKey).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", partitionKey, err)
	}
	return seq, nil
}
