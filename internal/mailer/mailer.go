// Package mailer turns notification events into emails.
package mailer

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/vinrain-coder/shoepedi-sub000/internal/events"
)

const (
	PurchaseReceiptConsumerName = "mailer-purchase-receipt"
	ReviewRequestConsumerName   = "mailer-review-request"
)

//go:embed templates/*.html
var templatesFS embed.FS

var funcs = template.FuncMap{
	"money": func(currency string, d decimal.Decimal) string {
		return currency + " " + d.StringFixed(2)
	},
	"date": func(t time.Time) string {
		return t.Format("Monday, January 2, 2006")
	},
}

type Site struct {
	Name     string
	URL      string
	Currency string
}

// Checkpoints skips receipt and review events already mailed. Stock
// notifications are one event per subscriber and are not checkpointed.
type Checkpoints interface {
	GetLastSequence(ctx context.Context, consumerName, partitionKey string) (int64, bool, error)
	UpsertLastSequence(ctx context.Context, consumerName, partitionKey string, newSeq int64) error
}

type Mailer struct {
	sender      Sender
	checkpoints Checkpoints
	site        Site
	tmpl        *template.Template
	logger      *log.Logger
}

func New(sender Sender, checkpoints Checkpoints, site Site, logger *log.Logger) (*Mailer, error) {
	tmpl, err := template.New("mail").Funcs(funcs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &Mailer{
		sender:      sender,
		checkpoints: checkpoints,
		site:        site,
		tmpl:        tmpl,
		logger:      logger,
	}, nil
}

func (m *Mailer) Bindings() []events.Binding {
	return []events.Binding{
		{
			Queue:      events.ServiceQueue(events.MailerServiceName, events.PurchaseReceiptRoutingKey),
			RoutingKey: events.PurchaseReceiptRoutingKey,
			Handler:    m.PurchaseReceiptHandler(),
		},
		{
			Queue:      events.ServiceQueue(events.MailerServiceName, events.ReviewRequestRoutingKey),
			RoutingKey: events.ReviewRequestRoutingKey,
			Handler:    m.ReviewRequestHandler(),
		},
		{
			Queue:      events.ServiceQueue(events.MailerServiceName, events.StockAvailableRoutingKey),
			RoutingKey: events.StockAvailableRoutingKey,
			Handler:    m.StockAvailableHandler(),
		},
	}
}

// Start declares and consumes every mail queue.
func (m *Mailer) Start(ctx context.Context, conn *amqp.Connection) error {
	var g errgroup.Group
	for _, b := range m.Bindings() {
		g.Go(func() error {
			if err := events.Consume(ctx, conn, b, m.logger); err != nil {
				return fmt.Errorf("start %s consumer: %w", b.Queue, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *Mailer) PurchaseReceiptHandler() events.HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		var ev events.PurchaseReceiptEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal PurchaseReceipt: %w", err)
		}
		if err := ev.Validate(events.EventTypePurchaseReceipt, 1); err != nil {
			return err
		}
		o := ev.Payload.Order
		if o.User.Email == "" {
			return fmt.Errorf("order %s has no email", o.ID)
		}

		return m.once(ctx, PurchaseReceiptConsumerName, ev.PartitionKey, ev.Sequence, func() error {
			html, err := m.render("purchase_receipt.html", map[string]any{"Site": m.site, "Order": o})
			if err != nil {
				return err
			}
			subject := fmt.Sprintf("Your %s order %s is confirmed", m.site.Name, o.ID)
			return m.sender.Send(ctx, o.User.Email, subject, html)
		})
	}
}

func (m *Mailer) ReviewRequestHandler() events.HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		var ev events.ReviewRequestEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal ReviewRequest: %w", err)
		}
		if err := ev.Validate(events.EventTypeReviewRequest, 1); err != nil {
			return err
		}
		p := ev.Payload
		if p.Customer.Email == "" {
			return fmt.Errorf("order %s has no email", p.OrderID)
		}

		return m.once(ctx, ReviewRequestConsumerName, ev.PartitionKey, ev.Sequence, func() error {
			html, err := m.render("review_request.html", map[string]any{
				"Site":     m.site,
				"OrderID":  p.OrderID,
				"Customer": p.Customer,
				"Items":    p.Items,
			})
			if err != nil {
				return err
			}
			return m.sender.Send(ctx, p.Customer.Email, "Review your purchase", html)
		})
	}
}

func (m *Mailer) StockAvailableHandler() events.HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		var ev events.StockAvailableEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal StockAvailable: %w", err)
		}
		if err := ev.Validate(events.EventTypeStockAvailable, 1); err != nil {
			return err
		}

		html, err := m.render("stock_available.html", map[string]any{"Site": m.site, "Product": ev.Payload.Product})
		if err != nil {
			return err
		}
		subject := fmt.Sprintf("%s is back in stock", ev.Payload.Product.Name)
		return m.sender.Send(ctx, ev.Payload.Email, subject, html)
	}
}

// once runs send unless the checkpoint already covers seq, and advances the
// checkpoint after a successful send.
func (m *Mailer) once(ctx context.Context, consumerName, partitionKey string, seq *int64, send func() error) error {
	if m.checkpoints == nil || seq == nil {
		return send()
	}

	last, ok, err := m.checkpoints.GetLastSequence(ctx, consumerName, partitionKey)
	if err != nil {
		return err
	}
	if ok && *seq <= last {
		m.logger.Printf("skip duplicate consumer=%s partition=%s seq=%d last=%d", consumerName, partitionKey, *seq, last)
		return nil
	}

	if err := send(); err != nil {
		return err
	}
	return m.checkpoints.UpsertLastSequence(ctx, consumerName, partitionKey, *seq)
}

func (m *Mailer) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := m.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
