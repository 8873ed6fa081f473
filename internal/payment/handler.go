// Package payment settles orders: the admin cash-on-delivery path and the
// gateway confirmation path share one transactional flow that locks the
// order, decrements stock, counts coupon usage and marks the order paid.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vinrain-coder/shoepedi-sub000/internal/coupon"
	"github.com/vinrain-coder/shoepedi-sub000/internal/inventory"
	"github.com/vinrain-coder/shoepedi-sub000/internal/order"
	"github.com/vinrain-coder/shoepedi-sub000/internal/pricing"
)

var (
	ErrAlreadyPaid          = errors.New("order already paid")
	ErrMissingPaymentInfo   = errors.New("missing payment information")
	ErrPaymentNotSuccessful = errors.New("payment was not successful")
	ErrAmountMismatch       = errors.New("amount paid is less than the order total")
	ErrMethodMismatch       = errors.New("order uses a different payment method")
	ErrVerificationFailed   = errors.New("payment could not be verified with the gateway")

	// ErrReferenceReused means the gateway transaction already paid for
	// another order.
	ErrReferenceReused = order.ErrPaymentReferenceUsed
)

type OrderStore interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	GetForUpdateWithTx(ctx context.Context, tx pgx.Tx, orderID string) (order.Order, error)
	MarkPaidWithTx(ctx context.Context, tx pgx.Tx, orderID string, paidAt time.Time, result *order.PaymentResult) error
}

type StockLedger interface {
	DecrementWithTx(ctx context.Context, tx pgx.Tx, orderID string, lines []inventory.Line) (inventory.DecrementResult, error)
}

type CouponUsage interface {
	IncrementUsageWithTx(ctx context.Context, tx pgx.Tx, code string) error
}

type ReceiptSender interface {
	PublishPurchaseReceipt(ctx context.Context, o order.Order) error
}

// Verifier double-checks a transaction with the gateway.
type Verifier interface {
	Verify(ctx context.Context, reference string) (Verification, error)
}

type Deps struct {
	Orders   OrderStore
	Stock    StockLedger
	Coupons  CouponUsage
	Receipts ReceiptSender
	Verifier Verifier
	Logger   *log.Logger

	// Currency is the store currency a verified transaction must be in.
	// Empty skips the check.
	Currency string

	// DecrementStock gates the ledger so development databases keep
	// their seeded counts.
	DecrementStock bool
}

type Handler struct {
	orders         OrderStore
	stock          StockLedger
	coupons        CouponUsage
	receipts       ReceiptSender
	verifier       Verifier
	logger         *log.Logger
	currency       string
	decrementStock bool
	now            func() time.Time
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		orders:         d.Orders,
		stock:          d.Stock,
		coupons:        d.Coupons,
		receipts:       d.Receipts,
		verifier:       d.Verifier,
		logger:         d.Logger,
		currency:       d.Currency,
		decrementStock: d.DecrementStock,
		now:            time.Now,
	}
}

// MarkPaidCashOnDelivery is the admin path.
func (h *Handler) MarkPaidCashOnDelivery(ctx context.Context, orderID string) (order.Order, error) {
	return h.settle(ctx, orderID, order.CashOnDelivery, nil)
}

// ConfirmGatewayPayment is the gateway callback path. The callback is stored
// verbatim as the order's payment result.
func (h *Handler) ConfirmGatewayPayment(ctx context.Context, orderID string, cb Callback) (order.Order, error) {
	return h.settle(ctx, orderID, order.PaystackGateway, &cb)
}

// settle runs under the order row lock, so of two concurrent attempts on the
// same order exactly one sees isPaid=false.
func (h *Handler) settle(ctx context.Context, orderID string, via order.PaymentMethod, cb *Callback) (order.Order, error) {
	tx, err := h.orders.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return order.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := h.orders.GetForUpdateWithTx(ctx, tx, orderID)
	if err != nil {
		return order.Order{}, err
	}
	if o.IsPaid {
		return order.Order{}, ErrAlreadyPaid
	}

	method, err := order.ParsePaymentMethod(o.PaymentMethod)
	if err != nil {
		return order.Order{}, err
	}
	if method.Kind != via.Kind {
		return order.Order{}, fmt.Errorf("%w: order %s expects %s", ErrMethodMismatch, o.ID, method)
	}

	var result *order.PaymentResult
	if cb != nil {
		if result, err = h.checkCallback(ctx, o, *cb); err != nil {
			return order.Order{}, err
		}
	}

	if h.decrementStock {
		lines := make([]inventory.Line, 0, len(o.Items))
		for _, it := range o.Items {
			lines = append(lines, inventory.Line{ProductID: it.ProductID, Quantity: it.Quantity})
		}
		res, err := h.stock.DecrementWithTx(ctx, tx, o.ID, lines)
		if err != nil {
			return order.Order{}, fmt.Errorf("decrement stock for order %s: %w", o.ID, err)
		}
		for _, n := range res.Negative {
			h.logger.Printf("negative stock product=%s remaining=%d order=%s", n.ProductID, n.Remaining, o.ID)
		}
	}

	if o.Coupon != nil && h.coupons != nil {
		if err := h.coupons.IncrementUsageWithTx(ctx, tx, o.Coupon.Code); err != nil {
			switch {
			case errors.Is(err, coupon.ErrNotFound):
				h.logger.Printf("coupon %s for order %s no longer exists, usage not counted", o.Coupon.Code, o.ID)
			case errors.Is(err, coupon.ErrUsageLimitReached):
				// The discounted total is already paid; the counter stays at the cap.
				h.logger.Printf("coupon %s hit its usage limit before order %s settled, usage not counted", o.Coupon.Code, o.ID)
			default:
				return order.Order{}, err
			}
		}
	}

	paidAt := h.now().UTC()
	if err := h.orders.MarkPaidWithTx(ctx, tx, o.ID, paidAt, result); err != nil {
		return order.Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return order.Order{}, fmt.Errorf("commit payment for order %s: %w", o.ID, err)
	}

	o.IsPaid = true
	o.PaidAt = &paidAt
	o.PaymentResult = result
	h.logger.Printf("order paid id=%s via=%s total=%s", o.ID, via, o.TotalPrice.StringFixed(2))

	if o.User.Email != "" && h.receipts != nil {
		if err := h.receipts.PublishPurchaseReceipt(ctx, o); err != nil {
			h.logger.Printf("purchase receipt order=%s: %v", o.ID, err)
		}
	}
	return o, nil
}

func (h *Handler) checkCallback(ctx context.Context, o order.Order, cb Callback) (*order.PaymentResult, error) {
	if err := cb.validate(); err != nil {
		return nil, err
	}

	paid := pricing.Round(*cb.PricePaid)
	if paid.LessThan(o.TotalPrice) {
		return nil, fmt.Errorf("%w: paid %s, total %s", ErrAmountMismatch, paid.StringFixed(2), o.TotalPrice.StringFixed(2))
	}

	if h.verifier != nil {
		v, err := h.verifier.Verify(ctx, cb.reference())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
		}
		if v.Reference != cb.reference() {
			return nil, fmt.Errorf("%w: gateway returned reference %q for %q", ErrVerificationFailed, v.Reference, cb.reference())
		}
		if h.currency != "" && !strings.EqualFold(v.Currency, h.currency) {
			return nil, fmt.Errorf("%w: gateway currency %q, store currency %q", ErrVerificationFailed, v.Currency, h.currency)
		}
		if v.Status != StatusSuccess || v.Amount.LessThan(o.TotalPrice) {
			return nil, fmt.Errorf("%w: gateway status %q amount %s", ErrVerificationFailed, v.Status, v.Amount.StringFixed(2))
		}
	}

	return &order.PaymentResult{
		ID:           cb.ID,
		Status:       cb.Status,
		EmailAddress: cb.EmailAddress,
		PricePaid:    paid,
		Method:       cb.PaymentMethod,
		Reference:    cb.PaymentReference,
	}, nil
}
