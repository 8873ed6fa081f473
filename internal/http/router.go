package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vinrain-coder/shoepedi-sub000/internal/session"
)

func NewRouter(h *Handler, sessions *session.Manager, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(correlationID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors(corsOrigins))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(session.Authenticate(sessions))

		r.Get("/settings", h.GetSettings)
		r.Post("/checkout/quote", h.Quote)
		r.Post("/coupons/validate", h.ValidateCoupon)
		r.Post("/products/{productId}/subscriptions", h.Subscribe)

		r.Group(func(r chi.Router) {
			r.Use(session.Require)
			r.Post("/orders", h.CreateOrder)
			r.Get("/orders", h.ListMyOrders)
			r.Get("/orders/{orderId}", h.GetOrder)
			r.Post("/orders/{orderId}/paystack", h.ConfirmPaystack)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(session.RequireAdmin)
			r.Get("/orders", h.ListAllOrders)
			r.Delete("/orders/{orderId}", h.DeleteOrder)
			r.Post("/orders/{orderId}/pay", h.MarkPaid)
			r.Post("/orders/{orderId}/deliver", h.MarkDelivered)
			r.Post("/products/{productId}/stock", h.AdjustStock)
			r.Post("/products/{productId}/notify", h.NotifySubscribers)
			r.Get("/coupons", h.ListCoupons)
			r.Post("/coupons", h.CreateCoupon)
		})
	})

	return r
}
