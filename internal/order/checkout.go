package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrValidation = errors.New("validation failed")

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// CheckoutItem mirrors a client cart line. Only product, quantity, size and
// color are trusted; the rest is re-read from the catalog.
type CheckoutItem struct {
	ClientID     string           `json:"clientId,omitempty"`
	ProductID    string           `json:"product"`
	Name         string           `json:"name,omitempty"`
	Slug         string           `json:"slug,omitempty"`
	Category     string           `json:"category,omitempty"`
	Image        string           `json:"image,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	Quantity     int              `json:"quantity"`
	Size         string           `json:"size,omitempty"`
	Color        string           `json:"color,omitempty"`
	CountInStock *int             `json:"countInStock,omitempty"`
}

// CheckoutRequest is the cart snapshot submitted at order creation. The
// price fields are display hints only.
type CheckoutRequest struct {
	Items                []CheckoutItem   `json:"items"`
	ShippingAddress      *ShippingAddress `json:"shippingAddress"`
	PaymentMethod        string           `json:"paymentMethod"`
	DeliveryDateIndex    *int             `json:"deliveryDateIndex,omitempty"`
	CouponCode           string           `json:"couponCode,omitempty"`
	ItemsPrice           *decimal.Decimal `json:"itemsPrice,omitempty"`
	ShippingPrice        *decimal.Decimal `json:"shippingPrice,omitempty"`
	TaxPrice             *decimal.Decimal `json:"taxPrice,omitempty"`
	TotalPrice           *decimal.Decimal `json:"totalPrice,omitempty"`
	ExpectedDeliveryDate *time.Time       `json:"expectedDeliveryDate,omitempty"`
}

// DecodeCheckout parses body strictly: unknown fields and trailing data are
// rejected.
func DecodeCheckout(body io.Reader) (CheckoutRequest, error) {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	var req CheckoutRequest
	if err := dec.Decode(&req); err != nil {
		return CheckoutRequest{}, &ValidationError{Reason: "malformed checkout: " + err.Error()}
	}
	if dec.More() {
		return CheckoutRequest{}, &ValidationError{Reason: "malformed checkout: trailing data"}
	}
	return req, nil
}

func (r CheckoutRequest) validate() error {
	if len(r.Items) == 0 {
		return invalid("items", "cart is empty")
	}
	for i, it := range r.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return invalid(fmt.Sprintf("items[%d].product", i), "is required")
		}
		if it.Quantity < 1 {
			return invalid(fmt.Sprintf("items[%d].quantity", i), "must be at least 1")
		}
	}

	if r.ShippingAddress == nil {
		return invalid("shippingAddress", "is required")
	}
	a := r.ShippingAddress
	required := []struct{ field, value string }{
		{"shippingAddress.fullName", a.FullName},
		{"shippingAddress.street", a.Street},
		{"shippingAddress.city", a.City},
		{"shippingAddress.postalCode", a.PostalCode},
		{"shippingAddress.country", a.Country},
		{"shippingAddress.phone", a.Phone},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return invalid(f.field, "is required")
		}
	}

	if strings.TrimSpace(r.PaymentMethod) == "" {
		return invalid("paymentMethod", "is required")
	}
	return nil
}
