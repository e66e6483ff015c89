package messaging

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// OrderEventsExchange is the shared fanout exchange every saga participant
// binds to. Every message published here is copied to every bound queue.
const OrderEventsExchange = "order_events"

const (
	dialAttempts    = 5
	dialBackoffBase = 2 * time.Second
)

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	log     *zap.SugaredLogger

	consumerTags []string
}

// NewRabbitMQ dials the broker and opens a channel. The broker may still be
// starting when a service comes up, so the dial is retried with a doubling
// backoff; exhausting the attempts is fatal to the caller.
func NewRabbitMQ(log *zap.SugaredLogger, host string, port int, user, password string) (*RabbitMQ, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d/", user, password, host, port)

	var conn *amqp.Connection
	var err error

	backoff := dialBackoffBase
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		if attempt == dialAttempts {
			return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", dialAttempts, err)
		}
		log.Warnf("⏳ RabbitMQ not ready (attempt %d/%d), retrying in %s: %v", attempt, dialAttempts, backoff, err)
		time.Sleep(backoff)
		backoff *= 2
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	log.Info("✅ Connected to RabbitMQ")

	return &RabbitMQ{
		conn:    conn,
		channel: channel,
		log:     log,
	}, nil
}

// DeclareFanoutExchange creates the durable fanout exchange if it doesn't
// exist. Redeclaring an existing exchange with the same properties is a no-op.
func (r *RabbitMQ) DeclareFanoutExchange(name string) error {
	err := r.channel.ExchangeDeclare(
		name,     // exchange name
		"fanout", // type: broadcast to every bound queue
		true,     // durable
		false,    // auto-delete
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	r.log.Infof("✅ Exchange declared: %s", name)
	return nil
}

// DeclareQueue creates a durable queue if it doesn't exist.
func (r *RabbitMQ) DeclareQueue(name string) error {
	_, err := r.channel.QueueDeclare(
		name,  // queue name
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	r.log.Infof("✅ Queue declared: %s", name)
	return nil
}

// BindQueue binds a queue to a fanout exchange. The routing key is empty:
// fanout delivery ignores it.
func (r *RabbitMQ) BindQueue(queue, exchange string) error {
	if err := r.channel.QueueBind(queue, "", exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s to %s: %w", queue, exchange, err)
	}

	r.log.Infof("✅ Queue %s bound to exchange %s", queue, exchange)
	return nil
}

// Publish sends a persistent message to a fanout exchange.
func (r *RabbitMQ) Publish(exchange string, body []byte) error {
	err := r.channel.Publish(
		exchange,
		"",    // routing key (ignored by fanout)
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	r.log.Infof("📤 Message published to exchange: %s", exchange)
	return nil
}

// Consume starts a manual-ack consumer on a queue. The consumer tag is
// recorded so Close can cancel delivery before tearing down the connection.
func (r *RabbitMQ) Consume(queue string) (<-chan amqp.Delivery, error) {
	tag := fmt.Sprintf("%s-consumer", queue)

	messages, err := r.channel.Consume(
		queue, // queue name
		tag,   // consumer tag
		false, // auto-ack (false = manual ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	r.consumerTags = append(r.consumerTags, tag)
	r.log.Infof("👂 Listening on queue: %s", queue)
	return messages, nil
}

// Close cancels all consumers first, so in-flight deliveries drain and
// unacked messages return to the queue, then closes the channel and
// connection.
func (r *RabbitMQ) Close() {
	if r.channel != nil {
		for _, tag := range r.consumerTags {
			if err := r.channel.Cancel(tag, false); err != nil {
				r.log.Warnf("⚠️ Failed to cancel consumer %s: %v", tag, err)
			}
		}
		r.channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}
}
