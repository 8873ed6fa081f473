// Package order owns the order aggregate: checkout creation, paginated reads,
// admin deletion and the paid to delivered transition.
package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/vinrain-coder/shoepedi-sub000/internal/coupon"
	"github.com/vinrain-coder/shoepedi-sub000/internal/inventory"
	"github.com/vinrain-coder/shoepedi-sub000/internal/pricing"
	"github.com/vinrain-coder/shoepedi-sub000/internal/setting"
)

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrNotPaid          = errors.New("order is not paid")
	ErrAlreadyDelivered = errors.New("order already delivered")
)

// ReviewRequestDelay is how long after delivery the review email goes out.
const ReviewRequestDelay = 24 * time.Hour

type Catalog interface {
	Products(ctx context.Context, productIDs []string) (map[string]inventory.Product, error)
}

type CouponValidator interface {
	Validate(ctx context.Context, code string, orderTotal decimal.Decimal) (coupon.Application, error)
}

type ReviewRequester interface {
	PublishReviewRequest(ctx context.Context, o Order, sendAt time.Time) error
}

// Viewer is who is reading orders.
type Viewer struct {
	UserID string
	Admin  bool
}

type Service struct {
	repo     TransactionalRepository
	catalog  Catalog
	coupons  CouponValidator
	settings setting.Provider
	tax      pricing.TaxPolicy
	reviews  ReviewRequester
	logger   *log.Logger
	now      func() time.Time
}

type ServiceDeps struct {
	Repo     TransactionalRepository
	Catalog  Catalog
	Coupons  CouponValidator
	Settings setting.Provider
	Tax      pricing.TaxPolicy
	Reviews  ReviewRequester
	Logger   *log.Logger
}

func NewService(d ServiceDeps) *Service {
	tax := d.Tax
	if tax == nil {
		tax = pricing.NoTax{}
	}
	return &Service{
		repo:     d.Repo,
		catalog:  d.Catalog,
		coupons:  d.Coupons,
		settings: d.Settings,
		tax:      tax,
		reviews:  d.Reviews,
		logger:   d.Logger,
		now:      time.Now,
	}
}

// Create persists an order from a cart snapshot. Prices, names and totals
// come from the catalog and the pricing engine; a coupon is re-validated
// and its discount is part of TotalPrice.
func (s *Service) Create(ctx context.Context, user *Customer, req CheckoutRequest) (Order, error) {
	if user == nil || user.ID == "" {
		return Order{}, ErrUnauthenticated
	}
	if err := req.validate(); err != nil {
		return Order{}, err
	}

	st, err := s.settings.Get(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("load settings: %w", err)
	}
	if !st.HasPaymentMethod(req.PaymentMethod) {
		return Order{}, invalid("paymentMethod", "%q is not available", req.PaymentMethod)
	}
	if _, err := ParsePaymentMethod(req.PaymentMethod); err != nil {
		return Order{}, invalid("paymentMethod", "%q is not supported", req.PaymentMethod)
	}

	ids := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.catalog.Products(ctx, ids)
	if err != nil {
		return Order{}, fmt.Errorf("load products: %w", err)
	}

	items := make([]Item, 0, len(req.Items))
	lines := make([]pricing.Line, 0, len(req.Items))
	for i, it := range req.Items {
		p, ok := products[it.ProductID]
		if !ok {
			return Order{}, invalid(fmt.Sprintf("items[%d].product", i), "product %s no longer exists", it.ProductID)
		}
		items = append(items, Item{
			ProductID:    p.ID,
			Name:         p.Name,
			Slug:         p.Slug,
			Category:     p.Category,
			Image:        p.Image,
			Price:        pricing.Round(p.Price),
			Quantity:     it.Quantity,
			Size:         it.Size,
			Color:        it.Color,
			CountInStock: p.CountInStock,
		})
		lines = append(lines, pricing.Line{Price: p.Price, Quantity: it.Quantity})
	}

	now := s.now().UTC()
	res := pricing.Calc(pricing.Input{
		Items:              lines,
		HasShippingAddress: true,
		DeliveryDateIndex:  req.DeliveryDateIndex,
		Now:                now,
	}, st.AvailableDeliveryDates, s.tax)
	if !res.Determined() {
		return Order{}, invalid("deliveryDateIndex", "no delivery option is configured")
	}

	o := Order{
		User:                 *user,
		Items:                items,
		ShippingAddress:      req.ShippingAddress,
		PaymentMethod:        req.PaymentMethod,
		ItemsPrice:           res.ItemsPrice,
		ShippingPrice:        *res.ShippingPrice,
		TaxPrice:             *res.TaxPrice,
		TotalPrice:           res.TotalPrice,
		ExpectedDeliveryDate: res.ExpectedDeliveryDate,
		CreatedAt:            now,
	}

	if req.CouponCode != "" {
		app, err := s.coupons.Validate(ctx, req.CouponCode, res.TotalPrice)
		if err != nil {
			return Order{}, err
		}
		o.Coupon = &Coupon{Code: app.Code, DiscountAmount: app.Discount}
		o.TotalPrice = app.NewTotal
	}

	s.compareHints(user.ID, req, o)

	if err := s.repo.Create(ctx, &o); err != nil {
		return Order{}, err
	}
	s.logger.Printf("order created id=%s user=%s total=%s method=%q", o.ID, user.ID, o.TotalPrice.StringFixed(2), o.PaymentMethod)
	return o, nil
}

// compareHints logs client totals that disagree with the server's.
func (s *Service) compareHints(userID string, req CheckoutRequest, o Order) {
	check := func(name string, hint *decimal.Decimal, actual decimal.Decimal) {
		if hint != nil && !pricing.Round(*hint).Equal(actual) {
			s.logger.Printf("checkout hint mismatch user=%s field=%s client=%s server=%s", userID, name, hint.String(), actual.StringFixed(2))
		}
	}
	check("itemsPrice", req.ItemsPrice, o.ItemsPrice)
	check("shippingPrice", req.ShippingPrice, o.ShippingPrice)
	check("taxPrice", req.TaxPrice, o.TaxPrice)
	check("totalPrice", req.TotalPrice, o.TotalPrice)
}

// Get returns an order its owner or an admin may see. Other viewers get
// ErrNotFound.
func (s *Service) Get(ctx context.Context, viewer Viewer, orderID string) (Order, error) {
	if viewer.UserID == "" {
		return Order{}, ErrUnauthenticated
	}
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !viewer.Admin && o.User.ID != viewer.UserID {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string, page int) (Page, error) {
	if userID == "" {
		return Page{}, ErrUnauthenticated
	}
	return s.page(ctx, page, func(limit, offset int) ([]Order, int, error) {
		return s.repo.ListByUser(ctx, userID, limit, offset)
	})
}

func (s *Service) ListAll(ctx context.Context, page int) (Page, error) {
	return s.page(ctx, page, func(limit, offset int) ([]Order, int, error) {
		return s.repo.ListAll(ctx, limit, offset)
	})
}

func (s *Service) page(ctx context.Context, page int, load func(limit, offset int) ([]Order, int, error)) (Page, error) {
	st, err := s.settings.Get(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("load settings: %w", err)
	}
	limit := st.PageSize
	if limit < 1 {
		limit = 1
	}
	if page < 1 {
		page = 1
	}

	orders, total, err := load(limit, (page-1)*limit)
	if err != nil {
		return Page{}, err
	}
	if orders == nil {
		orders = []Order{}
	}
	return Page{
		Orders:     orders,
		Page:       page,
		TotalPages: TotalPages(total, limit),
		Total:      total,
	}, nil
}

// TotalPages is ceil(count/limit).
func TotalPages(count, limit int) int {
	if limit <= 0 || count <= 0 {
		return 0
	}
	return (count + limit - 1) / limit
}

// Delete is an admin hard delete. Stock is not restored.
func (s *Service) Delete(ctx context.Context, orderID string) error {
	if err := s.repo.Delete(ctx, orderID); err != nil {
		return err
	}
	s.logger.Printf("order deleted id=%s", orderID)
	return nil
}

// MarkDelivered moves a paid order to delivered and schedules the review
// request after commit.
func (s *Service) MarkDelivered(ctx context.Context, orderID string) (Order, error) {
	tx, err := s.repo.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := s.repo.GetForUpdateWithTx(ctx, tx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !o.IsPaid {
		return Order{}, ErrNotPaid
	}
	if o.IsDelivered {
		return Order{}, ErrAlreadyDelivered
	}

	at := s.now().UTC()
	if err := s.repo.MarkDeliveredWithTx(ctx, tx, orderID, at); err != nil {
		return Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, fmt.Errorf("commit delivered: %w", err)
	}

	o.IsDelivered = true
	o.DeliveredAt = &at
	s.logger.Printf("order delivered id=%s", o.ID)

	if o.User.Email != "" && s.reviews != nil {
		if err := s.reviews.PublishReviewRequest(ctx, o, at.Add(ReviewRequestDelay)); err != nil {
			s.logger.Printf("review request order=%s: %v", o.ID, err)
		}
	}
	return o, nil
}
