package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound             = errors.New("order not found")
	ErrPaymentReferenceUsed = errors.New("payment reference already settled another order")
)

// DBPool matches the methods from *pgxpool.Pool that we use.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, orderID string) (Order, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, int, error)
	ListAll(ctx context.Context, limit, offset int) ([]Order, int, error)
	Delete(ctx context.Context, orderID string) error
}

type TransactionalRepository interface {
	Repository
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	// GetForUpdateWithTx locks the order row until tx ends.
	GetForUpdateWithTx(ctx context.Context, tx pgx.Tx, orderID string) (Order, error)
	MarkPaidWithTx(ctx context.Context, tx pgx.Tx, orderID string, paidAt time.Time, result *PaymentResult) error
	MarkDeliveredWithTx(ctx context.Context, tx pgx.Tx, orderID string, deliveredAt time.Time) error
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const selectOrder = `
	SELECT id::text, user_id, user_name, user_email, shipping_address, payment_method,
	       items_price, shipping_price, tax_price, total_price, coupon_code, coupon_discount,
	       is_paid, paid_at, payment_result, is_delivered, delivered_at,
	       expected_delivery_date, created_at, updated_at
	FROM orders`

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *PostgresRepository) Create(ctx context.Context, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = o.CreatedAt

	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}

	var couponCode *string
	var couponDiscount decimal.NullDecimal
	if o.Coupon != nil {
		couponCode = &o.Coupon.Code
		couponDiscount = decimal.NewNullDecimal(o.Coupon.DiscountAmount)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, user_name, user_email, shipping_address, payment_method,
		                    items_price, shipping_price, tax_price, total_price, coupon_code, coupon_discount,
		                    expected_delivery_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, o.ID, o.User.ID, o.User.Name, o.User.Email, address, o.PaymentMethod,
		o.ItemsPrice, o.ShippingPrice, o.TaxPrice, o.TotalPrice, couponCode, couponDiscount,
		o.ExpectedDeliveryDate, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (order_id, position, product_id, name, slug, category, image,
			                         price, quantity, size, color, count_in_stock)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, o.ID, i, it.ProductID, it.Name, it.Slug, it.Category, it.Image,
			it.Price, it.Quantity, it.Size, it.Color, it.CountInStock)
		if err != nil {
			return fmt.Errorf("insert order_item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, orderID string) (Order, error) {
	return r.get(ctx, r.pool, orderID, false)
}

func (r *PostgresRepository) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return r.pool.BeginTx(ctx, txOptions)
}

func (r *PostgresRepository) GetForUpdateWithTx(ctx context.Context, tx pgx.Tx, orderID string) (Order, error) {
	return r.get(ctx, tx, orderID, true)
}

func (r *PostgresRepository) get(ctx context.Context, q querier, orderID string, forUpdate bool) (Order, error) {
	// ids are uuids; anything else cannot exist
	if _, err := uuid.Parse(orderID); err != nil {
		return Order{}, ErrNotFound
	}

	sql := selectOrder + ` WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}

	o, err := scanOrder(q.QueryRow(ctx, sql, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := loadItems(ctx, q, []string{o.ID})
	if err != nil {
		return Order{}, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	orders, err := r.list(ctx, selectOrder+` WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	return orders, total, err
}

func (r *PostgresRepository) ListAll(ctx context.Context, limit, offset int) ([]Order, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM orders`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	orders, err := r.list(ctx, selectOrder+` ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	return orders, total, err
}

func (r *PostgresRepository) list(ctx context.Context, sql string, args ...any) ([]Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	items, err := loadItems(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, orderID string) error {
	if _, err := uuid.Parse(orderID); err != nil {
		return ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPaidWithTx also records the gateway reference, which is unique across
// orders so one gateway transaction can pay for only one order.
func (r *PostgresRepository) MarkPaidWithTx(ctx context.Context, tx pgx.Tx, orderID string, paidAt time.Time, result *PaymentResult) error {
	var (
		raw []byte
		ref *string
	)
	if result != nil {
		var err error
		if raw, err = json.Marshal(result); err != nil {
			return fmt.Errorf("marshal payment result: %w", err)
		}
		if g := result.GatewayReference(); g != "" {
			ref = &g
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET is_paid = true, paid_at = $2, payment_result = $3, payment_reference = $4, updated_at = now()
		WHERE id = $1 AND NOT is_paid
	`, orderID, paidAt, raw, ref)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == paymentReferenceConstraint {
			return fmt.Errorf("%w: %s", ErrPaymentReferenceUsed, *ref)
		}
		return fmt.Errorf("mark paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const paymentReferenceConstraint = "uq_orders_payment_reference"

func (r *PostgresRepository) MarkDeliveredWithTx(ctx context.Context, tx pgx.Tx, orderID string, deliveredAt time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET is_delivered = true, delivered_at = $2, updated_at = now()
		WHERE id = $1 AND is_paid AND NOT is_delivered
	`, orderID, deliveredAt)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o              Order
		address        []byte
		paymentResult  []byte
		couponCode     *string
		couponDiscount decimal.NullDecimal
	)
	err := row.Scan(&o.ID, &o.User.ID, &o.User.Name, &o.User.Email, &address, &o.PaymentMethod,
		&o.ItemsPrice, &o.ShippingPrice, &o.TaxPrice, &o.TotalPrice, &couponCode, &couponDiscount,
		&o.IsPaid, &o.PaidAt, &paymentResult, &o.IsDelivered, &o.DeliveredAt,
		&o.ExpectedDeliveryDate, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}

	if len(address) > 0 && string(address) != "null" {
		o.ShippingAddress = &ShippingAddress{}
		if err := json.Unmarshal(address, o.ShippingAddress); err != nil {
			return Order{}, fmt.Errorf("decode shipping address: %w", err)
		}
	}
	if len(paymentResult) > 0 && string(paymentResult) != "null" {
		o.PaymentResult = &PaymentResult{}
		if err := json.Unmarshal(paymentResult, o.PaymentResult); err != nil {
			return Order{}, fmt.Errorf("decode payment result: %w", err)
		}
	}
	if couponCode != nil {
		o.Coupon = &Coupon{Code: *couponCode, DiscountAmount: couponDiscount.Decimal}
	}
	return o, nil
}

func loadItems(ctx context.Context, q querier, orderIDs []string) (map[string][]Item, error) {
	rows, err := q.Query(ctx, `
		SELECT order_id::text, product_id, name, slug, category, image, price, quantity, size, color, count_in_stock
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, position
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("select order_items: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]Item, len(orderIDs))
	for rows.Next() {
		var orderID string
		var it Item
		if err := rows.Scan(&orderID, &it.ProductID, &it.Name, &it.Slug, &it.Category, &it.Image,
			&it.Price, &it.Quantity, &it.Size, &it.Color, &it.CountInStock); err != nil {
			return nil, fmt.Errorf("scan order_item: %w", err)
		}
		out[orderID] = append(out[orderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
