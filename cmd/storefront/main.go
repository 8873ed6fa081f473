package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vinrain-coder/shoepedi-sub000/internal/config"
	"github.com/vinrain-coder/shoepedi-sub000/internal/coupon"
	"github.com/vinrain-coder/shoepedi-sub000/internal/db"
	"github.com/vinrain-coder/shoepedi-sub000/internal/dedup"
	"github.com/vinrain-coder/shoepedi-sub000/internal/events"
	httpapi "github.com/vinrain-coder/shoepedi-sub000/internal/http"
	"github.com/vinrain-coder/shoepedi-sub000/internal/inventory"
	"github.com/vinrain-coder/shoepedi-sub000/internal/order"
	"github.com/vinrain-coder/shoepedi-sub000/internal/payment"
	"github.com/vinrain-coder/shoepedi-sub000/internal/sequence"
	"github.com/vinrain-coder/shoepedi-sub000/internal/session"
	"github.com/vinrain-coder/shoepedi-sub000/internal/setting"
	"github.com/vinrain-coder/shoepedi-sub000/internal/subscription"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := setting.Load(cfg.SettingsFile)
	if err != nil {
		logger.Fatalf("load settings: %v", err)
	}
	settings := setting.NewStatic(st)

	// --- DB ---
	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.DatabaseDSN, logger); err != nil {
			logger.Fatalf("db migrate: %v", err)
		}
	}

	inventoryRepo := inventory.NewPostgresRepository(pool)
	orderRepo := order.NewPostgresRepository(pool)
	couponRepo := coupon.NewPostgresRepository(pool)
	subscriptionRepo := subscription.NewPostgresRepository(pool)

	// --- AMQP ---
	conn, err := events.Dial(cfg.RabbitURL)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer conn.Close()

	pub, err := events.NewPublisher(conn, sequence.NewRepository(pool), events.PublisherOptions{Producer: events.StorefrontServiceName})
	if err != nil {
		logger.Fatalf("create publisher: %v", err)
	}
	defer pub.Close()

	// --- services ---
	couponValidator := coupon.NewValidator(couponRepo)
	subscriptions := subscription.NewService(subscriptionRepo, inventoryRepo, pub, logger)
	stock := inventory.NewService(inventoryRepo, subscriptions, logger)

	orders := order.NewService(order.ServiceDeps{
		Repo:     orderRepo,
		Catalog:  inventoryRepo,
		Coupons:  couponValidator,
		Settings: settings,
		Reviews:  pub,
		Logger:   logger,
	})

	var verifier payment.Verifier
	if cfg.PaystackSecretKey != "" {
		paystack, err := payment.NewPaystackClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey, cfg.PaymentTimeout)
		if err != nil {
			logger.Fatalf("paystack client: %v", err)
		}
		verifier = paystack
	} else {
		logger.Printf("PAYSTACK_SECRET_KEY not set, gateway callbacks are not verified remotely")
	}

	payments := payment.NewHandler(payment.Deps{
		Orders:         orderRepo,
		Stock:          inventoryRepo,
		Coupons:        couponRepo,
		Receipts:       pub,
		Verifier:       verifier,
		Logger:         logger,
		Currency:       st.Currency,
		DecrementStock: cfg.DecrementStock,
	})
	logger.Printf("env=%s decrement_stock=%t", cfg.Env, cfg.DecrementStock)

	err = events.Consume(ctx, conn, events.Binding{
		Queue:      events.ServiceQueue(events.StorefrontServiceName, events.PaymentSucceededRoutingKey),
		RoutingKey: events.PaymentSucceededRoutingKey,
		Handler:    events.PaymentSucceededHandler(payments, dedup.NewRepository(pool), logger, events.PaymentSucceededConsumerName),
	}, logger)
	if err != nil {
		logger.Fatalf("start payment consumer: %v", err)
	}

	// --- HTTP ---
	h := httpapi.NewHandler(httpapi.Deps{
		Orders:        orders,
		Payments:      payments,
		Coupons:       couponValidator,
		CouponAdmin:   coupon.NewService(couponRepo),
		Stock:         stock,
		Subscriptions: subscriptions,
		Settings:      settings,
		Logger:        logger,
	})
	r := httpapi.NewRouter(h, session.NewManager(cfg.JWTSecret, 24*time.Hour), cfg.CORSAllowOrigins)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Printf("shutdown signal: %s", sig)
	case err := <-errCh:
		logger.Printf("fatal error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = httpServer.Shutdown(shutdownCtx)
	cancel()

	logger.Printf("shutdown complete")
}
