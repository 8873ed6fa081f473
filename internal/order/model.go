package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is an immutable snapshot of a product taken at checkout.
type Item struct {
	ProductID    string          `json:"product"`
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	Category     string          `json:"category"`
	Image        string          `json:"image"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
	Size         string          `json:"size,omitempty"`
	Color        string          `json:"color,omitempty"`
	CountInStock int             `json:"countInStock"`
}

type ShippingAddress struct {
	FullName   string `json:"fullName"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Province   string `json:"province,omitempty"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

// PaymentResult is the gateway confirmation stored for audit.
type PaymentResult struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	EmailAddress string          `json:"email_address"`
	PricePaid    decimal.Decimal `json:"pricePaid"`
	Method       string          `json:"paymentMethod,omitempty"`
	Reference    string          `json:"paymentReference,omitempty"`
}

// GatewayReference is the gateway's transaction reference, falling back to
// the transaction ID when the callback carried no separate reference.
func (p *PaymentResult) GatewayReference() string {
	if p.Reference != "" {
		return p.Reference
	}
	return p.ID
}

type Coupon struct {
	Code           string          `json:"code"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

// Customer is the purchasing account. It is set once at creation.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Order struct {
	ID                   string           `json:"id"`
	User                 Customer         `json:"user"`
	Items                []Item           `json:"items"`
	ShippingAddress      *ShippingAddress `json:"shippingAddress,omitempty"`
	PaymentMethod        string           `json:"paymentMethod"`
	ItemsPrice           decimal.Decimal  `json:"itemsPrice"`
	ShippingPrice        decimal.Decimal  `json:"shippingPrice"`
	TaxPrice             decimal.Decimal  `json:"taxPrice"`
	TotalPrice           decimal.Decimal  `json:"totalPrice"`
	Coupon               *Coupon          `json:"coupon,omitempty"`
	IsPaid               bool             `json:"isPaid"`
	PaidAt               *time.Time       `json:"paidAt,omitempty"`
	PaymentResult        *PaymentResult   `json:"paymentResult,omitempty"`
	IsDelivered          bool             `json:"isDelivered"`
	DeliveredAt          *time.Time       `json:"deliveredAt,omitempty"`
	ExpectedDeliveryDate time.Time        `json:"expectedDeliveryDate"`
	CreatedAt            time.Time        `json:"createdAt"`
	UpdatedAt            time.Time        `json:"updatedAt"`
}

// Page is one page of a paginated listing.
type Page struct {
	Orders     []Order `json:"orders"`
	Page       int     `json:"page"`
	TotalPages int     `json:"totalPages"`
	Total      int     `json:"total"`
}
