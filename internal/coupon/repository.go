package coupon

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound      = errors.New("coupon not found")
	ErrDuplicateCode = errors.New("coupon code already exists")
)

// DBPool matches the methods from *pgxpool.Pool that we use.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type Repository interface {
	Finder
	Create(ctx context.Context, c *Coupon) error
	List(ctx context.Context) ([]Coupon, error)
	// IncrementUsageWithTx bumps usage_count inside the caller's transaction
	// without going past max_usage.
	IncrementUsageWithTx(ctx context.Context, tx pgx.Tx, code string) error
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const selectCoupon = `
	SELECT id, code, discount_type, discount_value, min_purchase, max_usage, usage_count, expiry_date, is_active, created_at
	FROM coupons`

func scanCoupon(row pgx.Row) (Coupon, error) {
	var c Coupon
	var discountType string
	err := row.Scan(&c.ID, &c.Code, &discountType, &c.DiscountValue, &c.MinPurchase, &c.MaxUsage, &c.UsageCount, &c.ExpiryDate, &c.IsActive, &c.CreatedAt)
	c.DiscountType = DiscountType(discountType)
	return c, err
}

func (r *PostgresRepository) FindByCode(ctx context.Context, code string) (Coupon, error) {
	c, err := scanCoupon(r.pool.QueryRow(ctx, selectCoupon+` WHERE code=$1`, NormalizeCode(code)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Coupon{}, ErrNotFound
		}
		return Coupon{}, fmt.Errorf("select coupon: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Create(ctx context.Context, c *Coupon) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Code = NormalizeCode(c.Code)

	err := r.pool.QueryRow(ctx, `
		INSERT INTO coupons (id, code, discount_type, discount_value, min_purchase, max_usage, expiry_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING usage_count, created_at
	`, c.ID, c.Code, string(c.DiscountType), c.DiscountValue, c.MinPurchase, c.MaxUsage, c.ExpiryDate, c.IsActive).Scan(&c.UsageCount, &c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Coupon, error) {
	rows, err := r.pool.Query(ctx, selectCoupon+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select coupons: %w", err)
	}
	defer rows.Close()

	var out []Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// IncrementUsageWithTx counts one use unless the coupon is already at its
// cap, in which case ErrUsageLimitReached is returned and nothing changes.
func (r *PostgresRepository) IncrementUsageWithTx(ctx context.Context, tx pgx.Tx, code string) error {
	code = NormalizeCode(code)
	tag, err := tx.Exec(ctx, `
		UPDATE coupons
		SET usage_count = usage_count + 1
		WHERE code = $1 AND (max_usage IS NULL OR usage_count < max_usage)
	`, code)
	if err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1)`, code).Scan(&exists); err != nil {
		return fmt.Errorf("lookup coupon %s: %w", code, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrUsageLimitReached
}
