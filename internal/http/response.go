package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/vinrain-coder/shoepedi-sub000/internal/coupon"
	"github.com/vinrain-coder/shoepedi-sub000/internal/inventory"
	"github.com/vinrain-coder/shoepedi-sub000/internal/order"
	"github.com/vinrain-coder/shoepedi-sub000/internal/payment"
	"github.com/vinrain-coder/shoepedi-sub000/internal/session"
	"github.com/vinrain-coder/shoepedi-sub000/internal/subscription"
)

const msgInternal = "Something went wrong, please try again later"

// response is the body of every API reply.
type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, status int, msg string, data any) {
	writeJSON(w, status, response{Success: true, Message: msg, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, response{Success: false, Message: msg})
}

type errorMapping struct {
	target error
	status int
	// message overrides err.Error() when set.
	message string
}

var errorMappings = []errorMapping{
	{target: payment.ErrAlreadyPaid, status: http.StatusConflict, message: "Order already processed: it is already paid"},
	{target: order.ErrAlreadyDelivered, status: http.StatusConflict, message: "Order already processed: it is already delivered"},
	{target: order.ErrNotPaid, status: http.StatusConflict, message: "Order is not paid yet, it cannot be delivered"},

	{target: order.ErrValidation, status: http.StatusBadRequest},
	{target: order.ErrUnknownPaymentMethod, status: http.StatusBadRequest},
	{target: order.ErrUnauthenticated, status: http.StatusUnauthorized, message: "Unauthenticated"},
	{target: order.ErrNotFound, status: http.StatusNotFound, message: "Order not found"},
	{target: inventory.ErrProductNotFound, status: http.StatusNotFound, message: "Product not found"},
	{target: coupon.ErrNotFound, status: http.StatusNotFound, message: "Coupon not found"},

	{target: coupon.ErrInvalid, status: http.StatusBadRequest, message: "Invalid coupon code"},
	{target: coupon.ErrExpired, status: http.StatusBadRequest, message: "Coupon has expired"},
	{target: coupon.ErrUsageLimitReached, status: http.StatusBadRequest, message: "Coupon usage limit reached"},
	{target: coupon.ErrBelowMinimum, status: http.StatusBadRequest},
	{target: coupon.ErrInvalidInput, status: http.StatusBadRequest},
	{target: coupon.ErrDuplicateCode, status: http.StatusConflict, message: "Coupon code already exists"},

	{target: payment.ErrMissingPaymentInfo, status: http.StatusBadRequest, message: "Missing payment information"},
	{target: payment.ErrPaymentNotSuccessful, status: http.StatusBadRequest, message: "Payment was not successful"},
	{target: payment.ErrAmountMismatch, status: http.StatusBadRequest, message: "Amount paid does not cover the order total"},
	{target: payment.ErrMethodMismatch, status: http.StatusBadRequest, message: "Order uses a different payment method"},
	{target: payment.ErrVerificationFailed, status: http.StatusBadGateway, message: "Payment could not be verified, please contact support"},
	{target: payment.ErrReferenceReused, status: http.StatusConflict, message: "This payment has already been applied to another order"},

	{target: inventory.ErrStockInconsistent, status: http.StatusConflict, message: "Stock changed while processing, please retry"},
	{target: inventory.ErrInvalidCount, status: http.StatusBadRequest, message: "Stock count must not be negative"},
	{target: subscription.ErrInvalidEmail, status: http.StatusBadRequest, message: "Invalid email address"},
	{target: subscription.ErrAlreadySubscribed, status: http.StatusConflict, message: "You are already subscribed to this product"},
	{target: session.ErrInvalidToken, status: http.StatusUnauthorized, message: "Unauthenticated"},
}

// writeServiceError maps domain errors to a status and a user-facing message.
// Anything unknown is logged and answered with a generic message.
func writeServiceError(w http.ResponseWriter, logger *log.Logger, op string, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			msg := m.message
			if msg == "" {
				msg = err.Error()
			}
			writeError(w, m.status, msg)
			return
		}
	}

	logger.Printf("%s: %v", op, err)
	writeError(w, http.StatusInternalServerError, msgInternal)
}
