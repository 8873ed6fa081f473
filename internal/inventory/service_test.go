package inventory

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepository struct {
	stock  map[string]int
	setErr error
}

func (f *fakeRepository) Get(ctx context.Context, productID string) (StockItem, error) {
	if v, ok := f.stock[productID]; ok {
		return StockItem{ProductID: productID, CountInStock: v}, nil
	}
	return StockItem{}, ErrProductNotFound
}

func (f *fakeRepository) SetAvailable(ctx context.Context, productID string, count int) error {
	if f.setErr != nil {
		return f.setErr
	}
	if _, ok := f.stock[productID]; !ok {
		return ErrProductNotFound
	}
	f.stock[productID] = count
	return nil
}

func (f *fakeRepository) Products(ctx context.Context, productIDs []string) (map[string]Product, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRepository) Decrement(ctx context.Context, orderID string, lines []Line) (DecrementResult, error) {
	return DecrementResult{}, errors.New("not implemented")
}

type fakeNotifier struct {
	notified []string
	err      error
}

func (f *fakeNotifier) NotifyRestock(ctx context.Context, productID string) error {
	f.notified = append(f.notified, productID)
	return f.err
}

func TestService_AdjustStock(t *testing.T) {
	logger := log.New(io.Discard, "", 0)

	tests := map[string]struct {
		count        int
		notifyErr    error
		wantErr      error
		wantNotified []string
	}{
		"restock notifies": {
			count:        5,
			wantNotified: []string{"p1"},
		},
		"zero does not notify": {
			count: 0,
		},
		"negative rejected": {
			count:   -1,
			wantErr: ErrInvalidCount,
		},
		"notifier failure is not returned": {
			count:        2,
			notifyErr:    errors.New("smtp down"),
			wantNotified: []string{"p1"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			repo := &fakeRepository{stock: map[string]int{"p1": 0}}
			notifier := &fakeNotifier{err: tc.notifyErr}
			svc := NewService(repo, notifier, logger)

			item, err := svc.AdjustStock(context.Background(), "p1", tc.count)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, 0, repo.stock["p1"])
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.count, item.CountInStock)
			assert.Equal(t, tc.count, repo.stock["p1"])
			assert.Equal(t, tc.wantNotified, notifier.notified)
		})
	}
}

func TestService_AdjustStockMissingProduct(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := NewService(&fakeRepository{stock: map[string]int{}}, notifier, log.New(io.Discard, "", 0))

	_, err := svc.AdjustStock(context.Background(), "nope", 3)
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.Empty(t, notifier.notified)
}
