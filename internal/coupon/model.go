package coupon

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	Percentage DiscountType = "percentage"
	Fixed      DiscountType = "fixed"
)

func (t DiscountType) Valid() bool {
	return t == Percentage || t == Fixed
}

type Coupon struct {
	ID            string              `json:"id"`
	Code          string              `json:"code"`
	DiscountType  DiscountType        `json:"discountType"`
	DiscountValue decimal.Decimal     `json:"discountValue"`
	MinPurchase   decimal.NullDecimal `json:"minPurchase"`
	MaxUsage      *int                `json:"maxUsage,omitempty"`
	UsageCount    int                 `json:"usageCount"`
	ExpiryDate    time.Time           `json:"expiryDate"`
	IsActive      bool                `json:"isActive"`
	CreatedAt     time.Time           `json:"createdAt"`
}

// Application is the outcome of a successful validation.
type Application struct {
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
	NewTotal decimal.Decimal `json:"newTotal"`
}
