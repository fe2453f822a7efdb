package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"resume-critique/internal/shared/telemetry"
)

const publishTimeout = 5 * time.Second

// AMQPClient publishes and consumes submission jobs on a durable RabbitMQ queue.
type AMQPClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
}

// NewAMQPClient dials url and declares the durable queue.
func NewAMQPClient(url, queueName string) (*AMQPClient, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("AMQP_URL is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	q, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp declare queue %s: %w", queueName, err)
	}
	return &AMQPClient{conn: conn, channel: ch, queue: q}, nil
}

// Send publishes a persistent JSON message.
func (c *AMQPClient) Send(ctx context.Context, msg Message) error {
	body, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode amqp message: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = c.channel.PublishWithContext(ctx,
		"",           // exchange
		c.queue.Name, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

// Delivery is one consumed message and its settlement callbacks.
type Delivery struct {
	Body        string
	Redelivered bool
	Ack         func() error
	Nack        func(requeue bool) error
}

// Consume delivers messages to handle until ctx is done or the channel closes. prefetch
// bounds unacknowledged deliveries.
func (c *AMQPClient) Consume(ctx context.Context, prefetch int, handle func(context.Context, Delivery)) error {
	if prefetch > 0 {
		if err := c.channel.Qos(prefetch, 0, false); err != nil {
			return fmt.Errorf("amqp qos: %w", err)
		}
	}
	msgs, err := c.channel.Consume(
		c.queue.Name,
		"",
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				telemetry.Warn("amqp.channel_closed", map[string]any{"queue": c.queue.Name})
				return fmt.Errorf("amqp delivery channel closed")
			}
			handle(ctx, toDelivery(d))
		}
	}
}

// toDelivery binds settlement to this one delivery tag.
func toDelivery(d amqp.Delivery) Delivery {
	return Delivery{
		Body:        string(d.Body),
		Redelivered: d.Redelivered,
		Ack:         func() error { return d.Ack(false) },
		Nack:        func(requeue bool) error { return d.Nack(false, requeue) },
	}
}

// Close closes the channel and connection.
func (c *AMQPClient) Close() error {
	if c == nil {
		return nil
	}
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

var _ Client = (*AMQPClient)(nil)

// Ping reports whether the broker connection is still open.
func (c *AMQPClient) Ping(context.Context) error {
	if c == nil || c.conn == nil || c.conn.IsClosed() {
		return fmt.Errorf("amqp connection closed")
	}
	return nil
}
