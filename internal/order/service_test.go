package order

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinrain-coder/shoepedi-sub000/internal/coupon"
	"github.com/vinrain-coder/shoepedi-sub000/internal/inventory"
	"github.com/vinrain-coder/shoepedi-sub000/internal/setting"
)

type fakeTx struct {
	pgx.Tx
	pending    []func()
	committed  bool
	rolledBack bool
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	for _, apply := range tx.pending {
		apply()
	}
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	if !tx.committed {
		tx.rolledBack = true
	}
	return nil
}

type fakeRepo struct {
	orders map[string]Order
	lastTx *fakeTx

	listLimit, listOffset int
	total                 int
}

func newFakeRepo(orders ...Order) *fakeRepo {
	r := &fakeRepo{orders: map[string]Order{}}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func (r *fakeRepo) Create(ctx context.Context, o *Order) error {
	o.ID = uuid.NewString()
	r.orders[o.ID] = *o
	return nil
}

func (r *fakeRepo) GetByID(ctx context.Context, orderID string) (Order, error) {
	o, ok := r.orders[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (r *fakeRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, int, error) {
	r.listLimit, r.listOffset = limit, offset
	var out []Order
	for _, o := range r.orders {
		if o.User.ID == userID {
			out = append(out, o)
		}
	}
	return out, r.total, nil
}

func (r *fakeRepo) ListAll(ctx context.Context, limit, offset int) ([]Order, int, error) {
	r.listLimit, r.listOffset = limit, offset
	return nil, r.total, nil
}

func (r *fakeRepo) Delete(ctx context.Context, orderID string) error {
	if _, ok := r.orders[orderID]; !ok {
		return ErrNotFound
	}
	delete(r.orders, orderID)
	return nil
}

func (r *fakeRepo) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	r.lastTx = &fakeTx{}
	return r.lastTx, nil
}

func (r *fakeRepo) GetForUpdateWithTx(ctx context.Context, tx pgx.Tx, orderID string) (Order, error) {
	return r.GetByID(ctx, orderID)
}

func (r *fakeRepo) MarkPaidWithTx(ctx context.Context, tx pgx.Tx, orderID string, paidAt time.Time, result *PaymentResult) error {
	return errors.New("not used")
}

func (r *fakeRepo) MarkDeliveredWithTx(ctx context.Context, tx pgx.Tx, orderID string, deliveredAt time.Time) error {
	ftx := tx.(*fakeTx)
	ftx.pending = append(ftx.pending, func() {
		o := r.orders[orderID]
		o.IsDelivered = true
		o.DeliveredAt = &deliveredAt
		r.orders[orderID] = o
	})
	return nil
}

type fakeCatalog map[string]inventory.Product

func (f fakeCatalog) Products(ctx context.Context, ids []string) (map[string]inventory.Product, error) {
	out := map[string]inventory.Product{}
	for _, id := range ids {
		if p, ok := f[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeCoupons struct {
	app       coupon.Application
	err       error
	gotCode   string
	gotTotal  decimal.Decimal
	callCount int
}

func (f *fakeCoupons) Validate(ctx context.Context, code string, total decimal.Decimal) (coupon.Application, error) {
	f.callCount++
	f.gotCode, f.gotTotal = code, total
	return f.app, f.err
}

type fakeReviews struct {
	orders  []Order
	sendAts []time.Time
}

func (f *fakeReviews) PublishReviewRequest(ctx context.Context, o Order, sendAt time.Time) error {
	f.orders = append(f.orders, o)
	f.sendAts = append(f.sendAts, sendAt)
	return nil
}

var testNow = time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)

type testDeps struct {
	repo    *fakeRepo
	coupons *fakeCoupons
	reviews *fakeReviews
}

func newTestService(repo *fakeRepo) (*Service, testDeps) {
	d := testDeps{repo: repo, coupons: &fakeCoupons{}, reviews: &fakeReviews{}}
	svc := NewService(ServiceDeps{
		Repo: repo,
		Catalog: fakeCatalog{
			"p1": {ID: "p1", Name: "Runner", Slug: "runner", Category: "Sneakers", Price: decimal.RequireFromString("10.00"), CountInStock: 5},
			"p2": {ID: "p2", Name: "Loafer", Slug: "loafer", Category: "Formal", Price: decimal.RequireFromString("30.00"), CountInStock: 1},
		},
		Coupons:  d.coupons,
		Settings: setting.NewStatic(setting.Defaults()),
		Reviews:  d.reviews,
		Logger:   log.New(io.Discard, "", 0),
	})
	svc.now = func() time.Time { return testNow }
	return svc, d
}

func validRequest() CheckoutRequest {
	clientPrice := decimal.RequireFromString("1.00")
	clientTotal := decimal.RequireFromString("2.00")
	return CheckoutRequest{
		Items: []CheckoutItem{{ProductID: "p1", Name: "Cheap?", Price: &clientPrice, Quantity: 2, Size: "42"}},
		ShippingAddress: &ShippingAddress{
			FullName: "Ada Obi", Street: "1 Marina", City: "Lagos", PostalCode: "100001", Country: "NG", Phone: "0800",
		},
		PaymentMethod: "Paystack",
		TotalPrice:    &clientTotal,
	}
}

var customer = &Customer{ID: "u1", Name: "Ada", Email: "ada@example.com"}

func TestCreate_RecomputesTotalsServerSide(t *testing.T) {
	svc, d := newTestService(newFakeRepo())

	o, err := svc.Create(context.Background(), customer, validRequest())
	require.NoError(t, err)

	require.Len(t, o.Items, 1)
	assert.Equal(t, "Runner", o.Items[0].Name)
	assert.Equal(t, "10.00", o.Items[0].Price.StringFixed(2))
	assert.Equal(t, "42", o.Items[0].Size)
	assert.Equal(t, "20.00", o.ItemsPrice.StringFixed(2))
	// default tier is the last one: 4.90 below the 35 threshold
	assert.Equal(t, "4.90", o.ShippingPrice.StringFixed(2))
	assert.Equal(t, "24.90", o.TotalPrice.StringFixed(2))
	assert.Equal(t, testNow.AddDate(0, 0, 5), o.ExpectedDeliveryDate)
	assert.Equal(t, StatusCreated, o.Status())
	assert.Nil(t, o.Coupon)
	assert.Zero(t, d.coupons.callCount)
	assert.Contains(t, d.repo.orders, o.ID)
}

func TestCreate_BakesCouponIntoTotal(t *testing.T) {
	svc, d := newTestService(newFakeRepo())
	d.coupons.app = coupon.Application{
		Code:     "SAVE10",
		Discount: decimal.RequireFromString("2.49"),
		NewTotal: decimal.RequireFromString("22.41"),
	}

	req := validRequest()
	req.CouponCode = "save10"

	o, err := svc.Create(context.Background(), customer, req)
	require.NoError(t, err)

	assert.Equal(t, "save10", d.coupons.gotCode)
	assert.Equal(t, "24.90", d.coupons.gotTotal.StringFixed(2))
	require.NotNil(t, o.Coupon)
	assert.Equal(t, "SAVE10", o.Coupon.Code)
	assert.Equal(t, "2.49", o.Coupon.DiscountAmount.StringFixed(2))
	assert.Equal(t, "22.41", o.TotalPrice.StringFixed(2))
}

func TestCreate_Rejections(t *testing.T) {
	tests := map[string]struct {
		user      *Customer
		mutate    func(r *CheckoutRequest)
		couponErr error
		wantErr   error
	}{
		"no session": {
			user:    nil,
			wantErr: ErrUnauthenticated,
		},
		"empty cart": {
			user:    customer,
			mutate:  func(r *CheckoutRequest) { r.Items = nil },
			wantErr: ErrValidation,
		},
		"zero quantity": {
			user:    customer,
			mutate:  func(r *CheckoutRequest) { r.Items[0].Quantity = 0 },
			wantErr: ErrValidation,
		},
		"missing address": {
			user:    customer,
			mutate:  func(r *CheckoutRequest) { r.ShippingAddress = nil },
			wantErr: ErrValidation,
		},
		"missing city": {
			user:    customer,
			mutate:  func(r *CheckoutRequest) { r.ShippingAddress.City = " " },
			wantErr: ErrValidation,
		},
		"unavailable payment method": {
			user:    customer,
			mutate:  func(r *CheckoutRequest) { r.PaymentMethod = "PayPal" },
			wantErr: ErrValidation,
		},
		"deleted product": {
			user:    customer,
			mutate:  func(r *CheckoutRequest) { r.Items[0].ProductID = "gone" },
			wantErr: ErrValidation,
		},
		"expired coupon": {
			user:      customer,
			mutate:    func(r *CheckoutRequest) { r.CouponCode = "OLD" },
			couponErr: coupon.ErrExpired,
			wantErr:   coupon.ErrExpired,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			repo := newFakeRepo()
			svc, d := newTestService(repo)
			d.coupons.err = tc.couponErr

			req := validRequest()
			if tc.mutate != nil {
				tc.mutate(&req)
			}

			_, err := svc.Create(context.Background(), tc.user, req)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Empty(t, repo.orders)
		})
	}
}

func TestDecodeCheckout(t *testing.T) {
	t.Run("unknown fields rejected", func(t *testing.T) {
		_, err := DecodeCheckout(strings.NewReader(`{"items":[],"isPaid":true}`))
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("trailing data rejected", func(t *testing.T) {
		_, err := DecodeCheckout(strings.NewReader(`{"items":[]} {"items":[]}`))
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("client cart accepted", func(t *testing.T) {
		body := `{
			"items":[{"clientId":"c1","product":"p1","name":"Runner","slug":"runner","category":"Sneakers",
			          "image":"/r.png","price":10,"quantity":2,"size":"42","color":"red","countInStock":5}],
			"shippingAddress":{"fullName":"Ada","street":"1 Marina","city":"Lagos","postalCode":"100001","country":"NG","phone":"0800"},
			"paymentMethod":"Cash On Delivery",
			"deliveryDateIndex":0,
			"itemsPrice":20,"shippingPrice":12.9,"taxPrice":0,"totalPrice":32.9
		}`
		req, err := DecodeCheckout(strings.NewReader(body))
		require.NoError(t, err)
		require.NotNil(t, req.DeliveryDateIndex)
		assert.Equal(t, 0, *req.DeliveryDateIndex)
		assert.Equal(t, 2, req.Items[0].Quantity)
	})
}

func paidOrder(id string) Order {
	at := testNow.Add(-time.Hour)
	return Order{ID: id, User: *customer, IsPaid: true, PaidAt: &at}
}

func TestMarkDelivered(t *testing.T) {
	ctx := context.Background()

	t.Run("unpaid order is rejected without review email", func(t *testing.T) {
		repo := newFakeRepo(Order{ID: "o1", User: *customer})
		svc, d := newTestService(repo)

		_, err := svc.MarkDelivered(ctx, "o1")
		assert.ErrorIs(t, err, ErrNotPaid)
		assert.Empty(t, d.reviews.orders)
		assert.False(t, repo.orders["o1"].IsDelivered)
		assert.True(t, repo.lastTx.rolledBack)
	})

	t.Run("paid order is delivered and review scheduled", func(t *testing.T) {
		repo := newFakeRepo(paidOrder("o2"))
		svc, d := newTestService(repo)

		o, err := svc.MarkDelivered(ctx, "o2")
		require.NoError(t, err)

		assert.Equal(t, StatusDelivered, o.Status())
		assert.True(t, repo.orders["o2"].IsDelivered)
		require.NotNil(t, repo.orders["o2"].DeliveredAt)
		assert.Equal(t, testNow, *repo.orders["o2"].DeliveredAt)
		require.Len(t, d.reviews.sendAts, 1)
		assert.Equal(t, testNow.Add(24*time.Hour), d.reviews.sendAts[0])
	})

	t.Run("second delivery is rejected", func(t *testing.T) {
		o := paidOrder("o3")
		o.IsDelivered = true
		svc, d := newTestService(newFakeRepo(o))

		_, err := svc.MarkDelivered(ctx, "o3")
		assert.ErrorIs(t, err, ErrAlreadyDelivered)
		assert.Empty(t, d.reviews.orders)
	})

	t.Run("no email means no review request", func(t *testing.T) {
		o := paidOrder("o4")
		o.User.Email = ""
		svc, d := newTestService(newFakeRepo(o))

		_, err := svc.MarkDelivered(ctx, "o4")
		require.NoError(t, err)
		assert.Empty(t, d.reviews.orders)
	})

	t.Run("missing order", func(t *testing.T) {
		svc, _ := newTestService(newFakeRepo())
		_, err := svc.MarkDelivered(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestGet_OwnerCheck(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(newFakeRepo(Order{ID: "o1", User: *customer}))

	_, err := svc.Get(ctx, Viewer{UserID: "u1"}, "o1")
	assert.NoError(t, err)

	_, err = svc.Get(ctx, Viewer{UserID: "intruder"}, "o1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Get(ctx, Viewer{UserID: "admin", Admin: true}, "o1")
	assert.NoError(t, err)

	_, err = svc.Get(ctx, Viewer{}, "o1")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestListByUser_Pagination(t *testing.T) {
	repo := newFakeRepo()
	repo.total = 19
	svc, _ := newTestService(repo)

	page, err := svc.ListByUser(context.Background(), "u1", 3)
	require.NoError(t, err)

	assert.Equal(t, 9, repo.listLimit)
	assert.Equal(t, 18, repo.listOffset)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 3, page.Page)
	assert.NotNil(t, page.Orders)
}

func TestTotalPages(t *testing.T) {
	tests := map[string]struct {
		count, limit, want int
	}{
		"empty":      {0, 9, 0},
		"exact":      {18, 9, 2},
		"partial":    {19, 9, 3},
		"single":     {1, 9, 1},
		"zero limit": {5, 0, 0},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, TotalPages(tc.count, tc.limit))
		})
	}
}

func TestDelete(t *testing.T) {
	repo := newFakeRepo(Order{ID: "o1"})
	svc, _ := newTestService(repo)

	require.NoError(t, svc.Delete(context.Background(), "o1"))
	assert.Empty(t, repo.orders)
	assert.ErrorIs(t, svc.Delete(context.Background(), "o1"), ErrNotFound)
}

func TestParsePaymentMethod(t *testing.T) {
	m, err := ParsePaymentMethod("Cash On Delivery")
	require.NoError(t, err)
	assert.Equal(t, CashOnDelivery, m)
	assert.False(t, m.IsGateway())

	m, err = ParsePaymentMethod("Paystack")
	require.NoError(t, err)
	assert.True(t, m.IsGateway())
	assert.Equal(t, "Paystack", m.String())

	_, err = ParsePaymentMethod("cash on delivery")
	assert.ErrorIs(t, err, ErrUnknownPaymentMethod)
}
