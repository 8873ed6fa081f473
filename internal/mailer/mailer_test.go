package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinrain-coder/shoepedi-sub000/internal/events"
	"github.com/vinrain-coder/shoepedi-sub000/internal/inventory"
	"github.com/vinrain-coder/shoepedi-sub000/internal/order"
)

type sentMail struct {
	to, subject, body string
}

type fakeSender struct {
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: htmlBody})
	return nil
}

type memCheckpoints map[string]int64

func (m memCheckpoints) GetLastSequence(ctx context.Context, consumerName, partitionKey string) (int64, bool, error) {
	v, ok := m[consumerName+"/"+partitionKey]
	return v, ok, nil
}

func (m memCheckpoints) UpsertLastSequence(ctx context.Context, consumerName, partitionKey string, newSeq int64) error {
	if newSeq > m[consumerName+"/"+partitionKey] {
		m[consumerName+"/"+partitionKey] = newSeq
	}
	return nil
}

var site = Site{Name: "ShoePedi", URL: "https://shoepedi.example", Currency: "NGN"}

func newTestMailer(t *testing.T, sender Sender, cps Checkpoints) *Mailer {
	t.Helper()
	m, err := New(sender, cps, site, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	return m
}

func envelope[T any](t *testing.T, name, partition string, seq int64, payload T) []byte {
	t.Helper()
	body, err := json.Marshal(events.EventEnvelope[T]{
		EventName:    name,
		EventVersion: 1,
		EventID:      "evt-1",
		Producer:     events.StorefrontServiceName,
		PartitionKey: partition,
		Sequence:     &seq,
		OccurredAt:   time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC),
		Payload:      payload,
	})
	require.NoError(t, err)
	return body
}

func paidOrder() order.Order {
	paidAt := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	return order.Order{
		ID:   "o1",
		User: order.Customer{ID: "u1", Name: "Ada", Email: "ada@example.com"},
		Items: []order.Item{
			{ProductID: "p1", Name: "Court <Classic>", Slug: "court-classic", Price: decimal.RequireFromString("25.005"), Quantity: 1, Size: "42"},
		},
		ItemsPrice:           decimal.RequireFromString("25.01"),
		ShippingPrice:        decimal.RequireFromString("4.90"),
		TaxPrice:             decimal.Zero,
		TotalPrice:           decimal.RequireFromString("29.91"),
		Coupon:               &order.Coupon{Code: "SAVE5", DiscountAmount: decimal.RequireFromString("5")},
		IsPaid:               true,
		PaidAt:               &paidAt,
		ExpectedDeliveryDate: paidAt.AddDate(0, 0, 5),
	}
}

func TestPurchaseReceiptHandler(t *testing.T) {
	sender := &fakeSender{}
	cps := memCheckpoints{}
	m := newTestMailer(t, sender, cps)
	h := m.PurchaseReceiptHandler()

	body := envelope(t, events.EventTypePurchaseReceipt, "o1", 1, events.PurchaseReceiptPayload{Order: paidOrder()})
	require.NoError(t, h(context.Background(), body))
	require.NoError(t, h(context.Background(), body))

	require.Len(t, sender.sent, 1, "a redelivered receipt must not be mailed twice")
	mail := sender.sent[0]
	assert.Equal(t, "ada@example.com", mail.to)
	assert.Contains(t, mail.subject, "o1")
	assert.Contains(t, mail.body, "NGN 29.91")
	assert.Contains(t, mail.body, "SAVE5")
	assert.Contains(t, mail.body, "Court &lt;Classic&gt;")
	assert.Contains(t, mail.body, "https://shoepedi.example/account/orders/o1")
	assert.Equal(t, int64(1), cps[PurchaseReceiptConsumerName+"/o1"])
}

func TestPurchaseReceiptHandler_SendFailureKeepsCheckpoint(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp down")}
	cps := memCheckpoints{}
	h := newTestMailer(t, sender, cps).PurchaseReceiptHandler()

	body := envelope(t, events.EventTypePurchaseReceipt, "o1", 1, events.PurchaseReceiptPayload{Order: paidOrder()})
	require.Error(t, h(context.Background(), body))
	assert.Empty(t, cps)
}

func TestReviewRequestHandler(t *testing.T) {
	sender := &fakeSender{}
	h := newTestMailer(t, sender, memCheckpoints{}).ReviewRequestHandler()

	o := paidOrder()
	body := envelope(t, events.EventTypeReviewRequest, "o1", 2, events.ReviewRequestPayload{
		OrderID:  o.ID,
		Customer: o.User,
		Items:    o.Items,
	})
	require.NoError(t, h(context.Background(), body))
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].body, "https://shoepedi.example/product/court-classic#reviews")
}

func TestStockAvailableHandler(t *testing.T) {
	sender := &fakeSender{}
	h := newTestMailer(t, sender, memCheckpoints{}).StockAvailableHandler()

	product := inventory.Product{ID: "p1", Name: "Runner", Slug: "runner", Price: decimal.RequireFromString("49.99")}
	for seq, email := range []string{"a@example.com", "b@example.com"} {
		body := envelope(t, events.EventTypeStockAvailable, "p1", int64(seq+1), events.StockAvailablePayload{Email: email, Product: product})
		require.NoError(t, h(context.Background(), body))
	}

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "Runner is back in stock", sender.sent[0].subject)
	assert.Contains(t, sender.sent[1].body, "NGN 49.99")
}

func TestHandlers_RejectMalformed(t *testing.T) {
	m := newTestMailer(t, &fakeSender{}, nil)

	require.Error(t, m.PurchaseReceiptHandler()(context.Background(), []byte("{")))

	wrong := envelope(t, events.EventTypeStockAvailable, "o1", 1, events.PurchaseReceiptPayload{Order: paidOrder()})
	require.Error(t, m.PurchaseReceiptHandler()(context.Background(), wrong))

	noEmail := paidOrder()
	noEmail.User.Email = ""
	body := envelope(t, events.EventTypePurchaseReceipt, "o1", 1, events.PurchaseReceiptPayload{Order: noEmail})
	require.Error(t, m.PurchaseReceiptHandler()(context.Background(), body))
}

func TestBindings(t *testing.T) {
	m := newTestMailer(t, &fakeSender{}, nil)
	bs := m.Bindings()
	require.Len(t, bs, 3)
	assert.Equal(t, "mailer.notification.purchase-receipt.v1", bs[0].Queue)
	assert.Equal(t, events.ReviewRequestRoutingKey, bs[1].RoutingKey)
}
