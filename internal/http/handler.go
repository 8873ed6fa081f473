// Package httpapi exposes the storefront over HTTP. Every reply is a
// {success, message, data} document.
package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/vinrain-coder/shoepedi-sub000/internal/coupon"
	"github.com/vinrain-coder/shoepedi-sub000/internal/inventory"
	"github.com/vinrain-coder/shoepedi-sub000/internal/order"
	"github.com/vinrain-coder/shoepedi-sub000/internal/payment"
	"github.com/vinrain-coder/shoepedi-sub000/internal/pricing"
	"github.com/vinrain-coder/shoepedi-sub000/internal/session"
	"github.com/vinrain-coder/shoepedi-sub000/internal/setting"
	"github.com/vinrain-coder/shoepedi-sub000/internal/subscription"
)

type OrderService interface {
	Create(ctx context.Context, user *order.Customer, req order.CheckoutRequest) (order.Order, error)
	Get(ctx context.Context, viewer order.Viewer, orderID string) (order.Order, error)
	ListByUser(ctx context.Context, userID string, page int) (order.Page, error)
	ListAll(ctx context.Context, page int) (order.Page, error)
	Delete(ctx context.Context, orderID string) error
	MarkDelivered(ctx context.Context, orderID string) (order.Order, error)
}

type PaymentService interface {
	MarkPaidCashOnDelivery(ctx context.Context, orderID string) (order.Order, error)
	ConfirmGatewayPayment(ctx context.Context, orderID string, cb payment.Callback) (order.Order, error)
}

type CouponValidator interface {
	Validate(ctx context.Context, code string, orderTotal decimal.Decimal) (coupon.Application, error)
}

type CouponAdmin interface {
	Create(ctx context.Context, req coupon.CreateRequest) (coupon.Coupon, error)
	List(ctx context.Context) ([]coupon.Coupon, error)
}

type StockService interface {
	AdjustStock(ctx context.Context, productID string, count int) (inventory.StockItem, error)
}

type SubscriptionService interface {
	Subscribe(ctx context.Context, productID, email string) (subscription.Subscription, error)
	Notify(ctx context.Context, productID string) (subscription.Report, error)
}

type Deps struct {
	Orders        OrderService
	Payments      PaymentService
	Coupons       CouponValidator
	CouponAdmin   CouponAdmin
	Stock         StockService
	Subscriptions SubscriptionService
	Settings      setting.Provider
	Tax           pricing.TaxPolicy
	Logger        *log.Logger
}

type Handler struct {
	orders        OrderService
	payments      PaymentService
	coupons       CouponValidator
	couponAdmin   CouponAdmin
	stock         StockService
	subscriptions SubscriptionService
	settings      setting.Provider
	tax           pricing.TaxPolicy
	logger        *log.Logger
	now           func() time.Time
}

func NewHandler(d Deps) *Handler {
	tax := d.Tax
	if tax == nil {
		tax = pricing.NoTax{}
	}
	return &Handler{
		orders:        d.Orders,
		payments:      d.Payments,
		coupons:       d.Coupons,
		couponAdmin:   d.CouponAdmin,
		stock:         d.Stock,
		subscriptions: d.Subscriptions,
		settings:      d.Settings,
		tax:           tax,
		logger:        d.Logger,
		now:           time.Now,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "storefront",
	})
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := h.settings.Get(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "get settings", err)
		return
	}
	writeOK(w, http.StatusOK, "", st)
}

type quoteItem struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type quoteRequest struct {
	Items              []quoteItem `json:"items"`
	HasShippingAddress bool        `json:"hasShippingAddress"`
	DeliveryDateIndex  *int        `json:"deliveryDateIndex,omitempty"`
}

type quoteResponse struct {
	ItemsPrice           decimal.Decimal  `json:"itemsPrice"`
	ShippingPrice        *decimal.Decimal `json:"shippingPrice"`
	TaxPrice             *decimal.Decimal `json:"taxPrice"`
	TotalPrice           decimal.Decimal  `json:"totalPrice"`
	DeliveryDateIndex    int              `json:"deliveryDateIndex"`
	ExpectedDeliveryDate *time.Time       `json:"expectedDeliveryDate,omitempty"`
}

// Quote previews cart totals for a delivery tier. Nothing is persisted.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lines := make([]pricing.Line, 0, len(req.Items))
	for _, it := range req.Items {
		if it.Quantity < 1 || it.Price.IsNegative() {
			writeError(w, http.StatusBadRequest, "items need a quantity of at least 1 and a non-negative price")
			return
		}
		lines = append(lines, pricing.Line{Price: it.Price, Quantity: it.Quantity})
	}

	st, err := h.settings.Get(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "quote", err)
		return
	}

	res := pricing.Calc(pricing.Input{
		Items:              lines,
		HasShippingAddress: req.HasShippingAddress,
		DeliveryDateIndex:  req.DeliveryDateIndex,
		Now:                h.now(),
	}, st.AvailableDeliveryDates, h.tax)

	out := quoteResponse{
		ItemsPrice:        res.ItemsPrice,
		ShippingPrice:     res.ShippingPrice,
		TaxPrice:          res.TaxPrice,
		TotalPrice:        res.TotalPrice,
		DeliveryDateIndex: res.DeliveryDateIndex,
	}
	if !res.ExpectedDeliveryDate.IsZero() {
		out.ExpectedDeliveryDate = &res.ExpectedDeliveryDate
	}
	writeOK(w, http.StatusOK, "", out)
}

type validateCouponRequest struct {
	Code       string          `json:"code"`
	OrderTotal decimal.Decimal `json:"orderTotal"`
}

func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderTotal.IsNegative() {
		writeError(w, http.StatusBadRequest, "orderTotal must not be negative")
		return
	}

	app, err := h.coupons.Validate(r.Context(), req.Code, req.OrderTotal)
	if err != nil {
		writeServiceError(w, h.logger, "validate coupon", err)
		return
	}
	writeOK(w, http.StatusOK, "Coupon applied", app)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	u, _ := session.FromContext(r.Context())

	req, err := order.DecodeCheckout(r.Body)
	if err != nil {
		writeServiceError(w, h.logger, "decode checkout", err)
		return
	}

	o, err := h.orders.Create(r.Context(), &order.Customer{ID: u.ID, Name: u.Name, Email: u.Email}, req)
	if err != nil {
		writeServiceError(w, h.logger, "create order", err)
		return
	}
	writeOK(w, http.StatusCreated, "Order placed successfully", o)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), viewer(r), chi.URLParam(r, "orderId"))
	if err != nil {
		writeServiceError(w, h.logger, "get order", err)
		return
	}
	writeOK(w, http.StatusOK, "", o)
}

func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	u, _ := session.FromContext(r.Context())
	p, err := h.orders.ListByUser(r.Context(), u.ID, pageParam(r))
	if err != nil {
		writeServiceError(w, h.logger, "list orders", err)
		return
	}
	writeOK(w, http.StatusOK, "", p)
}

// ConfirmPaystack is called by the client after the inline Paystack checkout.
func (h *Handler) ConfirmPaystack(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	if _, err := h.orders.Get(r.Context(), viewer(r), orderID); err != nil {
		writeServiceError(w, h.logger, "confirm paystack", err)
		return
	}

	var cb payment.Callback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.payments.ConfirmGatewayPayment(r.Context(), orderID, cb)
	if err != nil {
		writeServiceError(w, h.logger, "confirm paystack", err)
		return
	}
	writeOK(w, http.StatusOK, "Payment confirmed, thank you for your order", o)
}

func (h *Handler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	p, err := h.orders.ListAll(r.Context(), pageParam(r))
	if err != nil {
		writeServiceError(w, h.logger, "list all orders", err)
		return
	}
	writeOK(w, http.StatusOK, "", p)
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "orderId")); err != nil {
		writeServiceError(w, h.logger, "delete order", err)
		return
	}
	writeOK(w, http.StatusOK, "Order deleted successfully", nil)
}

func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	o, err := h.payments.MarkPaidCashOnDelivery(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		writeServiceError(w, h.logger, "mark paid", err)
		return
	}
	writeOK(w, http.StatusOK, "Order paid successfully", o)
}

func (h *Handler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.MarkDelivered(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		writeServiceError(w, h.logger, "mark delivered", err)
		return
	}
	writeOK(w, http.StatusOK, "Order delivered successfully", o)
}

type adjustStockRequest struct {
	CountInStock *int `json:"countInStock"`
}

func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CountInStock == nil {
		writeError(w, http.StatusBadRequest, "countInStock is required")
		return
	}

	item, err := h.stock.AdjustStock(r.Context(), chi.URLParam(r, "productId"), *req.CountInStock)
	if err != nil {
		writeServiceError(w, h.logger, "adjust stock", err)
		return
	}
	writeOK(w, http.StatusOK, "Stock updated", item)
}

type subscribeRequest struct {
	Email string `json:"email"`
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.subscriptions.Subscribe(r.Context(), chi.URLParam(r, "productId"), req.Email)
	if err != nil {
		writeServiceError(w, h.logger, "subscribe", err)
		return
	}
	writeOK(w, http.StatusCreated, "You will be notified when this product is back in stock", sub)
}

func (h *Handler) NotifySubscribers(w http.ResponseWriter, r *http.Request) {
	rep, err := h.subscriptions.Notify(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		writeServiceError(w, h.logger, "notify subscribers", err)
		return
	}
	writeOK(w, http.StatusOK, rep.Message, rep)
}

func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	cs, err := h.couponAdmin.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "list coupons", err)
		return
	}
	writeOK(w, http.StatusOK, "", cs)
}

func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req coupon.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.couponAdmin.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "create coupon", err)
		return
	}
	writeOK(w, http.StatusCreated, "Coupon created", c)
}

func viewer(r *http.Request) order.Viewer {
	u, _ := session.FromContext(r.Context())
	return order.Viewer{UserID: u.ID, Admin: u.IsAdmin()}
}

func pageParam(r *http.Request) int {
	p, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || p < 1 {
		return 1
	}
	return p
}
