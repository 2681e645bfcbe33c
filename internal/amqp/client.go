package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	apperrors "cashflow/internal/errors"
	"cashflow/internal/ledger"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures           = 5
	openTimeout           = 30 * time.Second
	maxBackoff            = 30 * time.Second
	defaultPublishTimeout = 5 * time.Second
)

var (
	errCircuitOpen     = errors.New("circuit breaker is open")
	errMissingPosition = errors.New("message has no ledger id or sequence number")
)

// Client publishes ledger events to a direct exchange with publisher confirms
// and consumes them from a durable queue whose rejected messages are
// dead-lettered to "<queue>.dead" through "<exchange>.dlx".
type Client struct {
	url            string
	exchangeName   string
	queueName      string
	publishTimeout time.Duration

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	failureMu    sync.Mutex
	lastFailure  time.Time
}

// Options tunes a client. Zero values take defaults.
type Options struct {
	PublishTimeout time.Duration
}

func NewClient(url, exchangeName, queueName string, opts Options) (*Client, error) {
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishTimeout
	}
	client := &Client{
		url:            url,
		exchangeName:   exchangeName,
		queueName:      queueName,
		publishTimeout: opts.PublishTimeout,
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if err := client.connectLocked(); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) deadLetterExchange() string { return c.exchangeName + ".dlx" }
func (c *Client) deadLetterQueue() string    { return c.queueName + ".dead" }

// connectLocked dials the broker and declares the topology. c.mu must be held.
func (c *Client) connectLocked() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := channel.Confirm(false); err != nil {
		conn.Close()
		return fmt.Errorf("enable publisher confirms: %w", err)
	}

	c.conn = conn
	c.channel = channel
	if err := c.setup(); err != nil {
		c.closeLocked()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}
	return nil
}

func (c *Client) setup() error {
	// Dead-letter side first so the main queue can point at it.
	if err := c.channel.ExchangeDeclare(c.deadLetterExchange(), "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter exchange: %w", err)
	}
	if _, err := c.channel.QueueDeclare(c.deadLetterQueue(), true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter queue: %w", err)
	}
	if err := c.channel.QueueBind(c.deadLetterQueue(), c.deadLetterQueue(), c.deadLetterExchange(), false, nil); err != nil {
		return fmt.Errorf("bind dead-letter queue: %w", err)
	}

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
		amqp091.Table{
			"x-dead-letter-exchange":    c.deadLetterExchange(),
			"x-dead-letter-routing-key": c.deadLetterQueue(),
		},
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

// ensureChannelLocked reconnects when the channel was lost. c.mu must be held.
func (c *Client) ensureChannelLocked() error {
	if c.channel != nil && !c.channel.IsClosed() {
		return nil
	}
	c.closeLocked()
	return c.connectLocked()
}

// PublishEvent publishes one event and waits for the broker to confirm it
// within the publish timeout. Any failure is ErrPublishFailed: the event may
// or may not have reached the broker.
func (c *Client) PublishEvent(ctx context.Context, env ledger.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return apperrors.Wrap(apperrors.ErrPublishFailed, errCircuitOpen)
	}

	body, err := NewEventMessage(env).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := c.publish(ctx, env, body); err != nil {
		c.recordFailure()
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"ledger_id", env.LedgerID,
			"seq", env.Seq,
			"event_type", env.Type,
			"error", err)
		return apperrors.Wrap(apperrors.ErrPublishFailed, err)
	}
	c.recordSuccess()

	slog.DebugContext(ctx, "Published ledger event",
		"ledger_id", env.LedgerID,
		"seq", env.Seq,
		"event_type", env.Type,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

func (c *Client) publish(ctx context.Context, env ledger.Envelope, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.publishTimeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureChannelLocked(); err != nil {
		return err
	}

	confirm, err := c.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    env.EventID,
			Type:         string(env.Type),
			Timestamp:    time.Now(),
			Headers: amqp091.Table{
				"ledger_id": string(env.LedgerID),
				"seq":       int64(env.Seq),
			},
			Body: body,
		},
	)
	if err != nil {
		if isConnectionError(err) {
			c.closeLocked()
		}
		return fmt.Errorf("publish message: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("wait for confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("broker nacked %s seq %d", env.LedgerID, env.Seq)
	}
	return nil
}

// Delivery is one consumed message. Exactly one of Ack, Reject or Requeue
// must be called.
type Delivery struct {
	Message *EventMessage
	ack     func() error
	nack    func(requeue bool) error
}

// NewDelivery builds a delivery from acknowledgement callbacks.
func NewDelivery(msg *EventMessage, ack func() error, nack func(requeue bool) error) Delivery {
	return Delivery{Message: msg, ack: ack, nack: nack}
}

func (d Delivery) Ack() error { return d.ack() }

// Reject dead-letters the message.
func (d Delivery) Reject() error { return d.nack(false) }

// Requeue puts the message back on the queue.
func (d Delivery) Requeue() error { return d.nack(true) }

// ConsumeEvents delivers messages to handler until ctx is done or the channel
// closes. Malformed messages are dead-lettered without reaching handler.
func (c *Client) ConsumeEvents(ctx context.Context, prefetch int, handler func(Delivery)) error {
	c.mu.Lock()
	if err := c.ensureChannelLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	channel := c.channel
	c.mu.Unlock()

	if err := channel.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	msgs, err := channel.ConsumeWithContext(
		ctx,
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

	slog.InfoContext(ctx, "Started consuming ledger events", "queue", c.queueName, "prefetch", prefetch)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			msg, err := EventMessageFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal message, dead-lettering",
					"message_id", delivery.MessageId,
					"error", err)
				delivery.Nack(false, false)
				continue
			}

			d := delivery
			handler(NewDelivery(msg,
				func() error { return d.Ack(false) },
				func(requeue bool) error { return d.Nack(false, requeue) },
			))
		}
	}
}

// Run keeps ConsumeEvents going across connection losses, backing off
// exponentially between attempts. It returns when ctx is done.
func (c *Client) Run(ctx context.Context, prefetch int, handler func(Delivery)) error {
	for attempt := 0; ; attempt++ {
		started := time.Now()
		err := c.ConsumeEvents(ctx, prefetch, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A consumer that ran for a while earned a fresh backoff.
		if time.Since(started) > maxBackoff {
			attempt = 0
		}
		wait := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "Consumer stopped, reconnecting",
			"error", err,
			"attempt", attempt+1,
			"backoff", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		c.mu.Lock()
		c.closeLocked()
		c.mu.Unlock()
	}
}

// Ping reports whether the connection is usable.
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return fmt.Errorf("AMQP connection closed")
	}
	return nil
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) isCircuitOpen() bool {
	switch atomic.LoadInt32(&c.state) {
	case StateOpen:
		c.failureMu.Lock()
		last := c.lastFailure
		c.failureMu.Unlock()
		if time.Since(last) > openTimeout {
			atomic.StoreInt32(&c.state, StateHalfOpen)
			return false
		}
		return true
	default:
		return false
	}
}

func (c *Client) recordFailure() {
	c.failureMu.Lock()
	c.lastFailure = time.Now()
	c.failureMu.Unlock()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) closeLocked() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}
