package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrAlreadySubscribed = errors.New("already subscribed to this product")

type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type Repository interface {
	Create(ctx context.Context, s *Subscription) error
	// Claim reserves the pending subscriptions of a product that no other
	// run holds, treating claims older than staleBefore as abandoned.
	Claim(ctx context.Context, productID string, at, staleBefore time.Time) ([]Subscription, error)
	Release(ctx context.Context, ids []string) error
	MarkNotified(ctx context.Context, ids []string, at time.Time) (int64, error)
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create relies on the partial unique index over pending rows, so two
// concurrent subscribers cannot both win.
func (r *PostgresRepository) Create(ctx context.Context, s *Subscription) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO stock_subscriptions (id, product_id, email)
		VALUES ($1, $2, $3)
		RETURNING subscribed_at
	`, s.ID, s.ProductID, s.Email).Scan(&s.SubscribedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadySubscribed
		}
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// Claim is one UPDATE, so two concurrent runs never get the same row: the
// second waits on the row lock and then fails the claimed_at predicate.
func (r *PostgresRepository) Claim(ctx context.Context, productID string, at, staleBefore time.Time) ([]Subscription, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE stock_subscriptions
		SET claimed_at=$2
		WHERE product_id=$1 AND NOT is_notified
		  AND (claimed_at IS NULL OR claimed_at < $3)
		RETURNING id, product_id, email, subscribed_at
	`, productID, at, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("claim pending subscriptions: %w", err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		var s Subscription
		if err := rows.Scan(&s.ID, &s.ProductID, &s.Email, &s.SubscribedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// Release hands claimed but unsent subscriptions back to the next run.
func (r *PostgresRepository) Release(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.pool.Exec(ctx, `
		UPDATE stock_subscriptions
		SET claimed_at=NULL
		WHERE id = ANY($1) AND NOT is_notified
	`, ids); err != nil {
		return fmt.Errorf("release subscriptions: %w", err)
	}
	return nil
}

// MarkNotified flags every id in one statement.
func (r *PostgresRepository) MarkNotified(ctx context.Context, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE stock_subscriptions
		SET is_notified=true, notified_at=$2
		WHERE id = ANY($1) AND NOT is_notified
	`, ids, at)
	if err != nil {
		return 0, fmt.Errorf("mark notified: %w", err)
	}
	return tag.RowsAffected(), nil
}
