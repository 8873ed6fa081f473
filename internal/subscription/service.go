// Package subscription lets shoppers ask to be emailed when an out-of-stock
// product is available again.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vinrain-coder/shoepedi-sub000/internal/inventory"
)

var ErrInvalidEmail = errors.New("invalid email address")

const (
	MessageOutOfStock    = "product is still out of stock, nobody notified"
	MessageNoSubscribers = "no subscribers"

	defaultConcurrency = 8

	// claimLease bounds how long a crashed run keeps subscribers reserved.
	claimLease = 10 * time.Minute
)

type ProductFinder interface {
	Products(ctx context.Context, productIDs []string) (map[string]inventory.Product, error)
}

// Dispatcher sends the back-in-stock notification to one subscriber.
type Dispatcher interface {
	PublishStockAvailable(ctx context.Context, email string, p inventory.Product) error
}

type Service struct {
	repo       Repository
	products   ProductFinder
	dispatcher Dispatcher
	logger     *log.Logger

	concurrency int
	now         func() time.Time
}

func NewService(repo Repository, products ProductFinder, dispatcher Dispatcher, logger *log.Logger) *Service {
	return &Service{
		repo:        repo,
		products:    products,
		dispatcher:  dispatcher,
		logger:      logger,
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func (s *Service) product(ctx context.Context, productID string) (inventory.Product, error) {
	found, err := s.products.Products(ctx, []string{productID})
	if err != nil {
		return inventory.Product{}, fmt.Errorf("load product %s: %w", productID, err)
	}
	p, ok := found[productID]
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	return p, nil
}

func (s *Service) Subscribe(ctx context.Context, productID, email string) (Subscription, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Subscription{}, err
	}
	if _, err := s.product(ctx, productID); err != nil {
		return Subscription{}, err
	}

	sub := Subscription{ProductID: productID, Email: email}
	if err := s.repo.Create(ctx, &sub); err != nil {
		return Subscription{}, err
	}
	return sub, nil
}

// Notify emails every pending subscriber of a product that has stock. The
// subscribers are claimed first so overlapping runs never email the same
// one twice. Only successful sends are marked notified; failed ones are
// released for the next run.
func (s *Service) Notify(ctx context.Context, productID string) (Report, error) {
	p, err := s.product(ctx, productID)
	if err != nil {
		return Report{}, err
	}
	if p.CountInStock <= 0 {
		return Report{Message: MessageOutOfStock}, nil
	}

	now := s.now().UTC()
	pending, err := s.repo.Claim(ctx, productID, now, now.Add(-claimLease))
	if err != nil {
		return Report{}, err
	}
	if len(pending) == 0 {
		return Report{Message: MessageNoSubscribers}, nil
	}

	var (
		mu        sync.Mutex
		delivered = make([]string, 0, len(pending))
		undone    []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, sub := range pending {
		g.Go(func() error {
			err := s.dispatcher.PublishStockAvailable(gctx, sub.Email, p)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				undone = append(undone, sub.ID)
				s.logger.Printf("stock notification product=%s subscription=%s: %v", productID, sub.ID, err)
				return nil
			}
			delivered = append(delivered, sub.ID)
			return nil
		})
	}
	_ = g.Wait()

	marked, err := s.repo.MarkNotified(ctx, delivered, s.now().UTC())
	if err != nil {
		return Report{}, err
	}
	if err := s.repo.Release(ctx, undone); err != nil {
		// the lease expires on its own
		s.logger.Printf("release subscriptions product=%s: %v", productID, err)
	}

	return Report{
		Message:  fmt.Sprintf("notified %d subscriber(s), %d failed", marked, len(undone)),
		Notified: int(marked),
		Failed:   len(undone),
	}, nil
}

// NotifyRestock adapts Notify for inventory.RestockNotifier.
func (s *Service) NotifyRestock(ctx context.Context, productID string) error {
	report, err := s.Notify(ctx, productID)
	if err != nil {
		return err
	}
	s.logger.Printf("restock product=%s: %s", productID, report.Message)
	return nil
}
