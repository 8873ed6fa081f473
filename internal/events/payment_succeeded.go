package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/vinrain-coder/shoepedi-sub000/internal/inventory"
	"github.com/vinrain-coder/shoepedi-sub000/internal/order"
	"github.com/vinrain-coder/shoepedi-sub000/internal/payment"
)

const PaymentSucceededConsumerName = "storefront-payment-succeeded"

type GatewaySettler interface {
	ConfirmGatewayPayment(ctx context.Context, orderID string, cb payment.Callback) (order.Order, error)
}

type Checkpoints interface {
	GetLastSequence(ctx context.Context, consumerName, partitionKey string) (int64, bool, error)
	UpsertLastSequence(ctx context.Context, consumerName, partitionKey string, newSeq int64) error
}

// PaymentSucceededHandler settles orders from gateway events. Replays are
// skipped by checkpoint, and an order that is already paid acks the message.
func PaymentSucceededHandler(settler GatewaySettler, checkpoints Checkpoints, logger *log.Logger, consumerName string) HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		var ev PaymentSucceededEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal PaymentSucceeded: %w", err)
		}
		if err := ev.Validate(EventTypePaymentSucceeded, 1); err != nil {
			return err
		}
		if ev.Payload.OrderID == "" {
			return fmt.Errorf("missing orderId")
		}
		ctx = WithCorrelationID(ctx, ev.CorrelationID)

		partitionKey := ev.PartitionKey
		if ev.Sequence != nil {
			lastSeq, ok, err := checkpoints.GetLastSequence(ctx, consumerName, partitionKey)
			if err != nil {
				return err
			}
			if ok {
				if *ev.Sequence <= lastSeq {
					logger.Printf("skip duplicate orderId=%s partition=%s seq=%d last=%d", ev.Payload.OrderID, partitionKey, *ev.Sequence, lastSeq)
					return nil
				}
				if *ev.Sequence > lastSeq+1 {
					logger.Printf("warning: sequence gap for partition=%s seq=%d last=%d", partitionKey, *ev.Sequence, lastSeq)
				}
			}
		}

		cb := payment.Callback{
			ID:               ev.Payload.TransactionID,
			Status:           ev.Payload.Status,
			EmailAddress:     ev.Payload.EmailAddress,
			PricePaid:        ev.Payload.Amount,
			PaymentMethod:    ev.Payload.Method,
			PaymentReference: ev.Payload.Reference,
		}

		err := confirmWithRetry(ctx, settler, logger, ev.Payload.OrderID, cb)
		switch {
		case errors.Is(err, payment.ErrAlreadyPaid):
			logger.Printf("order %s already paid, event %s acknowledged", ev.Payload.OrderID, ev.EventID)
		case err != nil:
			return fmt.Errorf("confirm payment for order %s: %w", ev.Payload.OrderID, err)
		default:
			logger.Printf("order %s paid from event %s", ev.Payload.OrderID, ev.EventID)
		}

		if ev.Sequence != nil {
			if err := checkpoints.UpsertLastSequence(ctx, consumerName, partitionKey, *ev.Sequence); err != nil {
				return err
			}
		}
		return nil
	}
}

var (
	settleAttempts = 3
	settleBackoff  = 200 * time.Millisecond
)

// confirmWithRetry retries settlements aborted by a deadlock or
// serialization failure instead of dead-lettering a valid payment.
func confirmWithRetry(ctx context.Context, settler GatewaySettler, logger *log.Logger, orderID string, cb payment.Callback) error {
	for attempt := 1; ; attempt++ {
		_, err := settler.ConfirmGatewayPayment(ctx, orderID, cb)
		if err == nil || !errors.Is(err, inventory.ErrStockInconsistent) || attempt >= settleAttempts {
			return err
		}
		logger.Printf("settle order %s aborted (attempt %d/%d): %v", orderID, attempt, settleAttempts, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * settleBackoff):
		}
	}
}
