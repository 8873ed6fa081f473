package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vinrain-coder/shoepedi-sub000/internal/inventory"
	"github.com/vinrain-coder/shoepedi-sub000/internal/order"
)

type Sequencer interface {
	NextSequence(ctx context.Context, partitionKey string) (int64, error)
}

// Channel is the publishing half of *amqp.Channel.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Publisher struct {
	ch       Channel
	closeFn  func() error
	seq      Sequencer
	producer string
	now      func() time.Time
}

type PublisherOptions struct {
	Producer string
}

func NewPublisher(conn *amqp.Connection, seq Sequencer, opts PublisherOptions) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareEventsExchange(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}
	if err := declareReviewDelayQueue(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare %s: %w", reviewDelayQueue, err)
	}

	p := newPublisher(ch, seq, opts)
	p.closeFn = ch.Close
	return p, nil
}

func newPublisher(ch Channel, seq Sequencer, opts PublisherOptions) *Publisher {
	producer := opts.Producer
	if producer == "" {
		producer = StorefrontServiceName
	}
	return &Publisher{
		ch:       ch,
		seq:      seq,
		producer: producer,
		now:      time.Now,
	}
}

func (p *Publisher) Close() error {
	if p.closeFn == nil {
		return nil
	}
	return p.closeFn()
}

// PublishPurchaseReceipt asks the mailer to send the receipt of a paid order.
func (p *Publisher) PublishPurchaseReceipt(ctx context.Context, o order.Order) error {
	meta := EventMeta{CorrelationID: o.ID, PartitionKey: o.ID}
	env, err := enveloped(ctx, p, EventTypePurchaseReceipt, purchaseReceiptSchema, meta, PurchaseReceiptPayload{Order: o})
	if err != nil {
		return err
	}
	return p.publishJSON(ctx, EventsExchange, PurchaseReceiptRoutingKey, env, "")
}

// PublishReviewRequest schedules the review request for sendAt. Future
// requests wait in the delay queue; past ones are published right away.
func (p *Publisher) PublishReviewRequest(ctx context.Context, o order.Order, sendAt time.Time) error {
	payload := ReviewRequestPayload{
		OrderID:  o.ID,
		Customer: o.User,
		Items:    o.Items,
		SendAt:   sendAt.UTC(),
	}
	if o.DeliveredAt != nil {
		payload.DeliveredAt = o.DeliveredAt.UTC()
	}

	meta := EventMeta{CorrelationID: o.ID, PartitionKey: o.ID}
	env, err := enveloped(ctx, p, EventTypeReviewRequest, reviewRequestSchema, meta, payload)
	if err != nil {
		return err
	}

	delay := sendAt.Sub(p.now())
	if delay <= 0 {
		return p.publishJSON(ctx, EventsExchange, ReviewRequestRoutingKey, env, "")
	}
	return p.publishJSON(ctx, "", reviewDelayQueue, env, strconv.FormatInt(delay.Milliseconds(), 10))
}

// PublishStockAvailable tells one subscriber that product is back in stock.
func (p *Publisher) PublishStockAvailable(ctx context.Context, email string, product inventory.Product) error {
	meta := EventMeta{PartitionKey: product.ID}
	env, err := enveloped(ctx, p, EventTypeStockAvailable, stockAvailableSchema, meta, StockAvailablePayload{Email: email, Product: product})
	if err != nil {
		return err
	}
	return p.publishJSON(ctx, EventsExchange, StockAvailableRoutingKey, env, "")
}

func enveloped[T any](ctx context.Context, p *Publisher, name, schema string, meta EventMeta, payload T) ([]byte, error) {
	if cid := CorrelationID(ctx); cid != "" {
		meta.CorrelationID = cid
	}
	seq, err := p.seq.NextSequence(ctx, meta.PartitionKey)
	if err != nil {
		return nil, fmt.Errorf("reserve sequence: %w", err)
	}

	env := newEnvelope(name, schema, p.producer, meta, seq, p.now().UTC(), payload)
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", name, err)
	}
	return body, nil
}

func (p *Publisher) publishJSON(ctx context.Context, exchange, routingKey string, body []byte, expiration string) error {
	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Expiration:   expiration,
			Body:         body,
		},
	)
}
