package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// errPoison marks deliveries that can never succeed.
var errPoison = errors.New("poison message")

// Consumer drains the mail queue and hands each event to a Sender.
type Consumer struct {
	URL    string
	Queue  string
	Sender Sender
	Logger *zap.Logger
}

func NewConsumer(url, queue string, sender Sender, logger *zap.Logger) *Consumer {
	return &Consumer{URL: url, Queue: queue, Sender: sender, Logger: logger}
}

// Run connects to the broker and consumes until ctx is cancelled, redialling
// with exponential backoff (capped at 30s) whenever the connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.DialConfig(c.URL, amqp.Config{Dial: amqp.DefaultDial(DefaultDialTimeout)})
		if err != nil {
			c.Logger.Warn("mail consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Logger.Warn("mail consumer: consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Logger.Warn("mail consumer: set QoS failed", zap.Error(err))
	}
	if err := declareQueue(ch, c.Queue); err != nil {
		return err
	}

	msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleMessage(ctx, d.Body); err != nil {
				c.Logger.Error("mail consumer: handle message failed", zap.Error(err))
				// Undecodable events are dropped; delivery failures go back once.
				_ = d.Nack(false, !errors.Is(err, errPoison) && !d.Redelivered)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, body []byte) error {
	var ev MailEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: unmarshal: %v", errPoison, err)
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errPoison, err)
	}
	if err := c.Sender.Send(ctx, ev); err != nil {
		return fmt.Errorf("send %s: %w", ev.Type, err)
	}
	c.Logger.Info("mail sent", zap.String("type", string(ev.Type)), zap.Uint64("user_id", ev.UserID))
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
