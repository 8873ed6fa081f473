package events

import (
	"context"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

// HandlerFunc processes one message body. A returned error rejects the
// message into the queue's dead-letter queue.
type HandlerFunc func(ctx context.Context, body []byte) error

type Binding struct {
	Queue      string
	RoutingKey string
	Handler    HandlerFunc
}

// Consume declares b's queue and processes its messages on a goroutine until
// ctx is cancelled or the delivery channel closes.
func Consume(ctx context.Context, conn *amqp.Connection, b Binding, logger *log.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	if err := DeclareQueue(ch, b.Queue, b.RoutingKey); err != nil {
		_ = ch.Close()
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("qos: %w", err)
	}

	msgs, err := ch.Consume(
		b.Queue,
		b.Queue, // consumer tag
		false,   // autoAck
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume %s: %w", b.Queue, err)
	}

	go func() {
		defer ch.Close()
		serve(ctx, b.Queue, msgs, b.Handler, logger)
	}()
	return nil
}

func serve(ctx context.Context, queue string, msgs <-chan amqp.Delivery, h HandlerFunc, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Printf("stopping %s consumer", queue)
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Printf("%s messages channel closed", queue)
				return
			}

			if err := h(ctx, msg.Body); err != nil {
				logger.Printf("handle %s message error: %v", queue, err)
				_ = msg.Nack(false, false)
				continue
			}
			_ = msg.Ack(false)
		}
	}
}
