package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vinrain-coder/shoepedi-sub000/internal/config"
	"github.com/vinrain-coder/shoepedi-sub000/internal/db"
	"github.com/vinrain-coder/shoepedi-sub000/internal/dedup"
	"github.com/vinrain-coder/shoepedi-sub000/internal/events"
	"github.com/vinrain-coder/shoepedi-sub000/internal/mailer"
	"github.com/vinrain-coder/shoepedi-sub000/internal/setting"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[mailer] ", log.LstdFlags|log.Lmicroseconds)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := setting.Load(cfg.SettingsFile)
	if err != nil {
		logger.Fatalf("load settings: %v", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	conn, err := events.Dial(cfg.RabbitURL)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer conn.Close()

	sender := mailer.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	site := mailer.Site{Name: st.SiteName, URL: st.SiteURL, Currency: st.Currency}

	m, err := mailer.New(sender, dedup.NewRepository(pool), site, logger)
	if err != nil {
		logger.Fatalf("create mailer: %v", err)
	}
	if err := m.Start(ctx, conn); err != nil {
		logger.Fatalf("start mailer: %v", err)
	}
	logger.Printf("consuming notification events smtp=%s:%d", cfg.SMTPHost, cfg.SMTPPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Printf("shutdown signal: %s", sig)
	case err := <-conn.NotifyClose(make(chan *amqp.Error, 1)):
		logger.Printf("rabbitmq connection closed: %v", err)
	}

	cancel()
	logger.Printf("shutdown complete")
}
