package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vinrain-coder/shoepedi-sub000/internal/pricing"
)

var (
	ErrInvalid           = errors.New("invalid coupon")
	ErrExpired           = errors.New("coupon expired")
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	ErrBelowMinimum      = errors.New("order total below coupon minimum purchase")
)

type Finder interface {
	FindByCode(ctx context.Context, code string) (Coupon, error)
}

// Validator checks a code against an order total. It never mutates the coupon.
type Validator struct {
	repo Finder
	now  func() time.Time
}

func NewValidator(repo Finder) *Validator {
	return &Validator{repo: repo, now: time.Now}
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (v *Validator) Validate(ctx context.Context, code string, orderTotal decimal.Decimal) (Application, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Application{}, ErrInvalid
	}

	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Application{}, ErrInvalid
		}
		return Application{}, fmt.Errorf("find coupon %s: %w", code, err)
	}

	if err := Check(c, orderTotal, v.now()); err != nil {
		return Application{}, err
	}
	return Apply(c, orderTotal), nil
}

// Check runs the ordered eligibility rules; the first failing rule wins.
func Check(c Coupon, orderTotal decimal.Decimal, now time.Time) error {
	if !c.IsActive {
		return ErrInvalid
	}
	if c.ExpiryDate.Before(now) {
		return ErrExpired
	}
	if c.MaxUsage != nil && c.UsageCount >= *c.MaxUsage {
		return ErrUsageLimitReached
	}
	if c.MinPurchase.Valid && orderTotal.LessThan(c.MinPurchase.Decimal) {
		return ErrBelowMinimum
	}
	return nil
}

// Apply computes the discount, capped so the new total never goes below zero.
func Apply(c Coupon, orderTotal decimal.Decimal) Application {
	var discount decimal.Decimal
	switch c.DiscountType {
	case Percentage:
		discount = c.DiscountValue.Div(decimal.NewFromInt(100)).Mul(orderTotal)
	default:
		discount = c.DiscountValue
	}

	discount = pricing.Round(decimal.Min(discount, orderTotal))
	if discount.IsNegative() {
		discount = decimal.Zero
	}

	return Application{
		Code:     c.Code,
		Discount: discount,
		NewTotal: pricing.Round(decimal.Max(orderTotal.Sub(discount), decimal.Zero)),
	}
}
