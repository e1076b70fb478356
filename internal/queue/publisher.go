package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DefaultDialTimeout bounds the TCP connect and AMQP handshake of a publish.
const DefaultDialTimeout = 2 * time.Second

// Publisher sends MailEvents to a durable RabbitMQ queue.  A connection is
// dialled per publish: mail triggers are rare and this keeps the publisher
// free of reconnect state.  The dial is bounded by DialTimeout and by the
// caller's deadline, whichever is sooner.
type Publisher struct {
	URL         string
	Queue       string
	DialTimeout time.Duration
	Logger      *zap.Logger
}

func NewPublisher(url, queue string, logger *zap.Logger) *Publisher {
	return &Publisher{URL: url, Queue: queue, DialTimeout: DefaultDialTimeout, Logger: logger}
}

// dialTimeout is DialTimeout (or the default) shortened to ctx's deadline.
func (p *Publisher) dialTimeout(ctx context.Context) time.Duration {
	timeout := p.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	return timeout
}

// Publish marshals ev and publishes it as a persistent message.  Errors are
// logged and returned; callers decide whether to ignore them.
func (p *Publisher) Publish(ctx context.Context, ev MailEvent) error {
	if err := p.publish(ctx, ev); err != nil {
		p.Logger.Warn("mail publish failed",
			zap.String("type", string(ev.Type)), zap.Uint64("user_id", ev.UserID), zap.Error(err))
		return err
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, ev MailEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal mail event: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := amqp.DialConfig(p.URL, amqp.Config{Dial: amqp.DefaultDial(p.dialTimeout(ctx))})
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := declareQueue(ch, p.Queue); err != nil {
		return err
	}

	return ch.PublishWithContext(ctx,
		"",      // default exchange
		p.Queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Type:         string(ev.Type),
			Body:         body,
		})
}

func declareQueue(ch *amqp.Channel, name string) error {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	return nil
}

// DirectPublisher hands events straight to a Sender without a broker.  Used
// when no RabbitMQ URL is configured.
type DirectPublisher struct {
	Sender Sender
}

func (d DirectPublisher) Publish(ctx context.Context, ev MailEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	return d.Sender.Send(ctx, ev)
}
