package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidInput = errors.New("invalid coupon input")

type CreateRequest struct {
	Code          string           `json:"code"`
	DiscountType  DiscountType     `json:"discountType"`
	DiscountValue decimal.Decimal  `json:"discountValue"`
	MinPurchase   *decimal.Decimal `json:"minPurchase,omitempty"`
	MaxUsage      *int             `json:"maxUsage,omitempty"`
	ExpiryDate    time.Time        `json:"expiryDate"`
	IsActive      *bool            `json:"isActive,omitempty"`
}

// Service is the admin side of coupons: create and list.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (Coupon, error) {
	code := NormalizeCode(req.Code)
	if code == "" {
		return Coupon{}, fmt.Errorf("%w: code is required", ErrInvalidInput)
	}
	if !req.DiscountType.Valid() {
		return Coupon{}, fmt.Errorf("%w: discountType must be percentage or fixed", ErrInvalidInput)
	}
	if !req.DiscountValue.IsPositive() {
		return Coupon{}, fmt.Errorf("%w: discountValue must be positive", ErrInvalidInput)
	}
	if req.DiscountType == Percentage && req.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return Coupon{}, fmt.Errorf("%w: percentage discount above 100", ErrInvalidInput)
	}
	if req.MaxUsage != nil && *req.MaxUsage < 1 {
		return Coupon{}, fmt.Errorf("%w: maxUsage must be at least 1", ErrInvalidInput)
	}
	if req.ExpiryDate.IsZero() {
		return Coupon{}, fmt.Errorf("%w: expiryDate is required", ErrInvalidInput)
	}

	c := Coupon{
		Code:          code,
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		MaxUsage:      req.MaxUsage,
		ExpiryDate:    req.ExpiryDate.UTC(),
		IsActive:      true,
	}
	if req.MinPurchase != nil {
		c.MinPurchase = decimal.NewNullDecimal(*req.MinPurchase)
	}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}

	if err := s.repo.Create(ctx, &c); err != nil {
		return Coupon{}, err
	}
	return c, nil
}

func (s *Service) List(ctx context.Context) ([]Coupon, error) {
	return s.repo.List(ctx)
}
