package events

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange             = "ecommerce.events"
	PaymentSucceededRoutingKey = "payment.succeeded.v1"
	PurchaseReceiptRoutingKey  = "notification.purchase-receipt.v1"
	ReviewRequestRoutingKey    = "notification.review-request.v1"
	StockAvailableRoutingKey   = "notification.stock-available.v1"

	StorefrontServiceName = "storefront"
	MailerServiceName     = "mailer"
)

// ServiceQueue names the queue a service binds for a routing key.
func ServiceQueue(serviceName, routingKey string) string {
	return serviceName + "." + routingKey
}

func deadLetterQueue(queue string) string {
	return queue + ".dlq"
}

// reviewDelayQueue holds review requests until their per-message TTL expires,
// then dead-letters them onto the exchange under the real routing key.
var reviewDelayQueue = ServiceQueue(StorefrontServiceName, ReviewRequestRoutingKey) + ".delay"

func declareEventsExchange(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(
		EventsExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
}

func declareReviewDelayQueue(ch *amqp.Channel) error {
	_, err := ch.QueueDeclare(
		reviewDelayQueue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    EventsExchange,
			"x-dead-letter-routing-key": ReviewRequestRoutingKey,
		},
	)
	return err
}

// DeclareQueue declares a durable queue bound to routingKey on the events
// exchange. Rejected messages are dead-lettered into "<queue>.dlq".
func DeclareQueue(ch *amqp.Channel, queue, routingKey string) error {
	if err := declareEventsExchange(ch); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	dlq := deadLetterQueue(queue)
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", dlq, err)
	}

	_, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlq,
		},
	)
	if err != nil {
		return fmt.Errorf("declare %s: %w", queue, err)
	}

	if err := ch.QueueBind(queue, routingKey, EventsExchange, false, nil); err != nil {
		return fmt.Errorf("bind %s to %s: %w", queue, routingKey, err)
	}
	return nil
}

func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	return conn, nil
}
