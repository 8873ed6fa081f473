package inventory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrProductNotFound = errors.New("product not found")
	// ErrStockInconsistent marks an aborted decrement transaction. Retryable.
	ErrStockInconsistent = errors.New("stock transaction aborted")
)

// DBPool is the subset of *pgxpool.Pool the repository uses.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Repository interface {
	Get(ctx context.Context, productID string) (StockItem, error)
	SetAvailable(ctx context.Context, productID string, count int) error
	Products(ctx context.Context, productIDs []string) (map[string]Product, error)
	Decrement(ctx context.Context, orderID string, lines []Line) (DecrementResult, error)
}

type TransactionalRepository interface {
	Repository
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	DecrementWithTx(ctx context.Context, tx pgx.Tx, orderID string, lines []Line) (DecrementResult, error)
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Get(ctx context.Context, productID string) (StockItem, error) {
	var item StockItem
	row := r.pool.QueryRow(ctx, `SELECT id, count_in_stock FROM products WHERE id=$1`, productID)
	if err := row.Scan(&item.ProductID, &item.CountInStock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockItem{}, ErrProductNotFound
		}
		return StockItem{}, err
	}
	return item, nil
}

// SetAvailable overwrites the stock count. Used by admin stock adjustments.
func (r *PostgresRepository) SetAvailable(ctx context.Context, productID string, count int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE products
		SET count_in_stock=$2, updated_at=now()
		WHERE id=$1
	`, productID, count)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *PostgresRepository) Products(ctx context.Context, productIDs []string) (map[string]Product, error) {
	out := make(map[string]Product, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, slug, category, image, price, count_in_stock, num_sales
		FROM products
		WHERE id = ANY($1)
	`, productIDs)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.Category, &p.Image, &p.Price, &p.CountInStock, &p.NumSales); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// Decrement runs DecrementWithTx in its own transaction.
func (r *PostgresRepository) Decrement(ctx context.Context, orderID string, lines []Line) (DecrementResult, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return DecrementResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := r.decrementWithTx(ctx, tx, orderID, lines)
	if err != nil {
		return DecrementResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return DecrementResult{}, classify(fmt.Errorf("commit decrement for order %s: %w", orderID, err))
	}
	return res, nil
}

func (r *PostgresRepository) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return r.pool.BeginTx(ctx, txOptions)
}

// DecrementWithTx decrements every line inside tx. Any error leaves the
// caller's transaction unusable; it must roll back.
func (r *PostgresRepository) DecrementWithTx(ctx context.Context, tx pgx.Tx, orderID string, lines []Line) (DecrementResult, error) {
	return r.decrementWithTx(ctx, tx, orderID, lines)
}

func (r *PostgresRepository) decrementWithTx(ctx context.Context, tx pgx.Tx, orderID string, lines []Line) (DecrementResult, error) {
	res := DecrementResult{}

	for _, line := range lockOrder(lines) {

		// atomic increment; no read-modify-write even under the tx
		var remaining int
		err := tx.QueryRow(ctx, `
			UPDATE products
			SET count_in_stock = count_in_stock - $2,
			    num_sales = num_sales + $2,
			    updated_at = now()
			WHERE id=$1
			RETURNING count_in_stock
		`, line.ProductID, line.Quantity).Scan(&remaining)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return DecrementResult{}, fmt.Errorf("decrement %s for order %s: %w", line.ProductID, orderID, ErrProductNotFound)
			}
			return DecrementResult{}, classify(fmt.Errorf("decrement %s for order %s: %w", line.ProductID, orderID, err))
		}

		res.Decremented = append(res.Decremented, line)
		if remaining < 0 {
			res.Negative = append(res.Negative, NegativeLine{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Remaining: remaining,
			})
		}
	}

	return res, nil
}

// lockOrder merges lines per product and sorts them by product ID, so
// concurrent decrements take product row locks in the same order.
func lockOrder(lines []Line) []Line {
	qty := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		qty[l.ProductID] += l.Quantity
	}

	out := make([]Line, 0, len(qty))
	for id, q := range qty {
		out = append(out, Line{ProductID: id, Quantity: q})
	}
	slices.SortFunc(out, func(a, b Line) int { return cmp.Compare(a.ProductID, b.ProductID) })
	return out
}

// classify tags serialization failures and deadlocks as ErrStockInconsistent.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %w", ErrStockInconsistent, err)
		}
	}
	return err
}
