package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vinrain-coder/shoepedi-sub000/internal/inventory"
	"github.com/vinrain-coder/shoepedi-sub000/internal/order"
)

const (
	EventTypePurchaseReceipt  = "PurchaseReceiptRequested"
	EventTypeReviewRequest    = "ReviewRequested"
	EventTypeStockAvailable   = "StockAvailable"
	EventTypePaymentSucceeded = "PaymentSucceeded"

	purchaseReceiptSchema  = "notification.purchase-receipt.v1"
	reviewRequestSchema    = "notification.review-request.v1"
	stockAvailableSchema   = "notification.stock-available.v1"
	paymentSucceededSchema = "payment.succeeded.v1"
)

type PurchaseReceiptPayload struct {
	Order order.Order `json:"order"`
}

type ReviewRequestPayload struct {
	OrderID     string         `json:"orderId"`
	Customer    order.Customer `json:"customer"`
	Items       []order.Item   `json:"items"`
	DeliveredAt time.Time      `json:"deliveredAt"`
	SendAt      time.Time      `json:"sendAt"`
}

type StockAvailablePayload struct {
	Email   string            `json:"email"`
	Product inventory.Product `json:"product"`
}

// PaymentSucceededPayload is published by the payment gateway integration
// once a charge is confirmed.
type PaymentSucceededPayload struct {
	OrderID       string           `json:"orderId"`
	TransactionID string           `json:"transactionId"`
	Status        string           `json:"status"`
	EmailAddress  string           `json:"emailAddress"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Method        string           `json:"paymentMethod,omitempty"`
	Reference     string           `json:"reference,omitempty"`
}

type (
	PurchaseReceiptEvent  = EventEnvelope[PurchaseReceiptPayload]
	ReviewRequestEvent    = EventEnvelope[ReviewRequestPayload]
	StockAvailableEvent   = EventEnvelope[StockAvailablePayload]
	PaymentSucceededEvent = EventEnvelope[PaymentSucceededPayload]
)
