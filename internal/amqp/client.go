package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"fintrack/internal/core"
	"fintrack/internal/ports"
)

var (
	_ ports.MaterializeRequester  = (*Client)(nil)
	_ ports.NotificationPublisher = (*Client)(nil)
)

// channel is the subset of *amqp091.Channel the client uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	Close() error
}

type Client struct {
	conn              *amqp091.Connection
	channel           channel
	exchangeName      string
	materializeQueue  string
	notificationQueue string
}

func NewClient(url, exchangeName, materializeQueue, notificationQueue string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:              conn,
		channel:           ch,
		exchangeName:      exchangeName,
		materializeQueue:  materializeQueue,
		notificationQueue: notificationQueue,
	}

	if err := client.setup(ch); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queues: %w", err)
	}

	return client, nil
}

func (c *Client) setup(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, queue := range []string{c.materializeQueue, c.notificationQueue} {
		_, err = ch.QueueDeclare(
			queue, // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}

		// Routing key equals the queue name on a direct exchange.
		if err := ch.QueueBind(queue, queue, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}

	return nil
}

// RequestMaterialize publishes a MaterializeRequest for userID.
func (c *Client) RequestMaterialize(ctx context.Context, userID string, at time.Time) error {
	body, err := NewMaterializeRequest(userID, at).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.materializeQueue, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published materialize request",
		"user_id", userID,
		"exchange", c.exchangeName,
		"queue", c.materializeQueue)
	return nil
}

// PublishNotification publishes a NotificationEvent for n.
func (c *Client) PublishNotification(ctx context.Context, n core.Notification) error {
	body, err := NewNotificationEvent(n).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.notificationQueue, body); err != nil {
		return err
	}

	slog.DebugContext(ctx, "Published notification event",
		"user_id", n.UserID,
		"notification_id", n.ID,
		"queue", c.notificationQueue)
	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// ConsumeMaterializeRequests hands every request to handler until ctx is
// done. Failed and malformed messages are dropped; the next scheduled pass
// covers the user again.
func (c *Client) ConsumeMaterializeRequests(ctx context.Context, handler func(context.Context, *MaterializeRequest) error) error {
	msgs, err := c.channel.Consume(
		c.materializeQueue, // queue
		"",                 // consumer
		false,              // auto-ack (we want manual ack)
		false,              // exclusive
		false,              // no-local
		false,              // no-wait
		nil,                // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming materialize requests", "queue", c.materializeQueue)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			msg, err := MaterializeRequestFromJSON(delivery.Body)
			if err != nil || msg.UserID == "" {
				slog.ErrorContext(ctx, "Failed to unmarshal message", "error", err)
				delivery.Nack(false, false)
				continue
			}

			if err := handler(ctx, msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle materialize request",
					"error", err,
					"user_id", msg.UserID)
				delivery.Nack(false, false)
				continue
			}

			delivery.Ack(false)
			slog.InfoContext(ctx, "Processed materialize request", "user_id", msg.UserID)
		}
	}
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
