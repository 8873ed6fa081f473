package payment

import (
	"strings"

	"github.com/shopspring/decimal"
)

const StatusSuccess = "success"

// Callback is the untrusted gateway confirmation posted by the client after
// an inline checkout.
type Callback struct {
	ID               string           `json:"id"`
	Status           string           `json:"status"`
	EmailAddress     string           `json:"email_address"`
	PricePaid        *decimal.Decimal `json:"pricePaid"`
	PaymentMethod    string           `json:"paymentMethod,omitempty"`
	PaymentReference string           `json:"paymentReference,omitempty"`
}

func (c Callback) validate() error {
	if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.EmailAddress) == "" || c.PricePaid == nil {
		return ErrMissingPaymentInfo
	}
	if !strings.EqualFold(c.Status, StatusSuccess) {
		return ErrPaymentNotSuccessful
	}
	return nil
}

// reference is what the gateway knows the transaction by.
func (c Callback) reference() string {
	if c.PaymentReference != "" {
		return c.PaymentReference
	}
	return c.ID
}
