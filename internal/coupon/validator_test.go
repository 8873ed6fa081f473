package coupon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFinder struct {
	coupons map[string]Coupon
	err     error
	calls   int
}

func (f *fakeFinder) FindByCode(ctx context.Context, code string) (Coupon, error) {
	f.calls++
	if f.err != nil {
		return Coupon{}, f.err
	}
	c, ok := f.coupons[code]
	if !ok {
		return Coupon{}, ErrNotFound
	}
	return c, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func intPtr(i int) *int { return &i }

var fixedNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestValidator(coupons ...Coupon) *Validator {
	f := &fakeFinder{coupons: map[string]Coupon{}}
	for _, c := range coupons {
		f.coupons[c.Code] = c
	}
	v := NewValidator(f)
	v.now = func() time.Time { return fixedNow }
	return v
}

func activeCoupon(code string) Coupon {
	return Coupon{
		Code:          code,
		DiscountType:  Percentage,
		DiscountValue: dec("10"),
		ExpiryDate:    fixedNow.Add(24 * time.Hour),
		IsActive:      true,
	}
}

func TestValidate_Failures(t *testing.T) {
	inactive := activeCoupon("OFF")
	inactive.IsActive = false

	expired := activeCoupon("OLD")
	expired.ExpiryDate = fixedNow.Add(-time.Minute)

	usedUp := activeCoupon("USED")
	usedUp.MaxUsage = intPtr(5)
	usedUp.UsageCount = 5

	// expired and exhausted at once: expiry is checked first
	both := activeCoupon("BOTH")
	both.ExpiryDate = fixedNow.Add(-time.Minute)
	both.MaxUsage = intPtr(1)
	both.UsageCount = 1

	v := newTestValidator(inactive, expired, usedUp, both)

	tests := map[string]struct {
		code    string
		wantErr error
	}{
		"unknown code": {code: "NOPE", wantErr: ErrInvalid},
		"empty code":   {code: "  ", wantErr: ErrInvalid},
		"inactive":     {code: "OFF", wantErr: ErrInvalid},
		"expired":      {code: "old", wantErr: ErrExpired},
		"usage limit":  {code: "USED", wantErr: ErrUsageLimitReached},
		"rule order":   {code: "BOTH", wantErr: ErrExpired},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Validate(context.Background(), tc.code, dec("100"))
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestValidate_MinimumPurchaseBoundary(t *testing.T) {
	c := activeCoupon("MIN100")
	c.MinPurchase = decimal.NewNullDecimal(dec("100"))
	v := newTestValidator(c)

	_, err := v.Validate(context.Background(), "MIN100", dec("99.99"))
	assert.ErrorIs(t, err, ErrBelowMinimum)

	app, err := v.Validate(context.Background(), "MIN100", dec("100.00"))
	require.NoError(t, err)
	assert.Equal(t, "10.00", app.Discount.StringFixed(2))
	assert.Equal(t, "90.00", app.NewTotal.StringFixed(2))
}

func TestValidate_RepositoryErrorIsWrapped(t *testing.T) {
	boom := errors.New("connection reset")
	v := NewValidator(&fakeFinder{err: boom})

	_, err := v.Validate(context.Background(), "ANY", dec("10"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestApply(t *testing.T) {
	tests := map[string]struct {
		coupon       Coupon
		total        string
		wantDiscount string
		wantTotal    string
	}{
		"percentage": {
			coupon:       Coupon{Code: "P", DiscountType: Percentage, DiscountValue: dec("15")},
			total:        "59.99",
			wantDiscount: "9.00",
			wantTotal:    "50.99",
		},
		"fixed": {
			coupon:       Coupon{Code: "F", DiscountType: Fixed, DiscountValue: dec("5")},
			total:        "20.00",
			wantDiscount: "5.00",
			wantTotal:    "15.00",
		},
		"fixed larger than total is capped": {
			coupon:       Coupon{Code: "BIG", DiscountType: Fixed, DiscountValue: dec("50")},
			total:        "20.00",
			wantDiscount: "20.00",
			wantTotal:    "0.00",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			app := Apply(tc.coupon, dec(tc.total))
			assert.Equal(t, tc.wantDiscount, app.Discount.StringFixed(2))
			assert.Equal(t, tc.wantTotal, app.NewTotal.StringFixed(2))
		})
	}
}

func TestValidate_DoesNotMutateUsage(t *testing.T) {
	c := activeCoupon("ONCE")
	c.MaxUsage = intPtr(1)
	v := newTestValidator(c)

	for i := 0; i < 3; i++ {
		_, err := v.Validate(context.Background(), "ONCE", dec("10"))
		require.NoError(t, err)
	}
}
