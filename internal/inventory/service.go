package inventory

import (
	"context"
	"errors"
	"log"
)

var ErrInvalidCount = errors.New("stock count must not be negative")

// RestockNotifier is told when a product has stock again.
type RestockNotifier interface {
	NotifyRestock(ctx context.Context, productID string) error
}

// Service wraps admin stock adjustments on top of the Repository.
type Service struct {
	repo     Repository
	notifier RestockNotifier
	logger   *log.Logger
}

func NewService(repo Repository, notifier RestockNotifier, logger *log.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, logger: logger}
}

func (s *Service) Get(ctx context.Context, productID string) (StockItem, error) {
	return s.repo.Get(ctx, productID)
}

// AdjustStock sets the count and, when it is positive, notifies pending
// subscribers. Notification failures are logged only.
func (s *Service) AdjustStock(ctx context.Context, productID string, count int) (StockItem, error) {
	if count < 0 {
		return StockItem{}, ErrInvalidCount
	}
	if err := s.repo.SetAvailable(ctx, productID, count); err != nil {
		return StockItem{}, err
	}

	if count > 0 && s.notifier != nil {
		if err := s.notifier.NotifyRestock(ctx, productID); err != nil {
			s.logger.Printf("restock notify product=%s: %v", productID, err)
		}
	}
	return StockItem{ProductID: productID, CountInStock: count}, nil
}
