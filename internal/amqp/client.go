package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Message kinds carried on the sync queue.
const (
	TypeContributionSync   = "contribution.sync"
	TypeContributionDelete = "contribution.delete"
)

// envelope wraps every queue message so one queue can carry both kinds.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
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

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = c.channel.QueueBind(
		c.queueName,    // queue name
		c.queueName,    // routing key (same as queue name for direct exchange)
		c.exchangeName, // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

func (c *Client) publish(ctx context.Context, msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	body, err := json.Marshal(envelope{Type: msgType, Payload: raw})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
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

// PublishContributionSync publishes a sync request for one ledger row.
func (c *Client) PublishContributionSync(ctx context.Context, id int64) error {
	if err := c.publish(ctx, TypeContributionSync, NewContributionSyncMessage(id)); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Published contribution sync message",
		"id", id,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

// PublishContributionDelete publishes a removal request for an exported row.
func (c *Client) PublishContributionDelete(ctx context.Context, id int64, memberName string, year, month int) error {
	msg := NewContributionDeleteMessage(id, memberName, year, month)
	if err := c.publish(ctx, TypeContributionDelete, msg); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Published contribution delete message",
		"id", id,
		"year", year,
		"month", month,
		"queue", c.queueName)
	return nil
}

// ConsumeMessages consumes the sync queue until ctx is cancelled, dispatching
// by message kind. Handler errors nack with requeue; malformed messages are
// dropped.
func (c *Client) ConsumeMessages(
	ctx context.Context,
	syncHandler func(context.Context, *ContributionSyncMessage) error,
	deleteHandler func(context.Context, *ContributionDeleteMessage) error,
) error {
	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming contribution messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			var env envelope
			if err := json.Unmarshal(delivery.Body, &env); err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal envelope", "error", err)
				delivery.Nack(false, false) // reject and don't requeue
				continue
			}

			if err := c.dispatch(ctx, env, syncHandler, deleteHandler); err != nil {
				slog.ErrorContext(ctx, "Failed to handle message",
					"error", err,
					"type", env.Type)
				delivery.Nack(false, true) // reject and requeue
				continue
			}

			delivery.Ack(false)
		}
	}
}

func (c *Client) dispatch(
	ctx context.Context,
	env envelope,
	syncHandler func(context.Context, *ContributionSyncMessage) error,
	deleteHandler func(context.Context, *ContributionDeleteMessage) error,
) error {
	switch env.Type {
	case TypeContributionSync:
		msg, err := ContributionSyncMessageFromJSON(env.Payload)
		if err != nil {
			return fmt.Errorf("unmarshal sync message: %w", err)
		}
		return syncHandler(ctx, msg)
	case TypeContributionDelete:
		msg, err := ContributionDeleteMessageFromJSON(env.Payload)
		if err != nil {
			return fmt.Errorf("unmarshal delete message: %w", err)
		}
		return deleteHandler(ctx, msg)
	default:
		return fmt.Errorf("unknown message type %q", env.Type)
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
