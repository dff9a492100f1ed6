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

// DefaultQueue is the durable queue admission events are routed to.
const DefaultQueue = "admission.events"

// ErrBufferFull is returned by Publish when the outbound buffer is full,
// typically because the broker has been unreachable for a while.
var ErrBufferFull = errors.New("event buffer full")

// Publisher sends AdmissionEvents to a durable RabbitMQ queue through the
// default exchange.  Publish only enqueues into a bounded buffer; Run owns
// the broker connection and drains the buffer, so a slow or dead broker
// never holds up the caller.
type Publisher struct {
	url     string
	queue   string
	log     *zap.Logger
	timeout time.Duration
	events  chan AdmissionEvent

	conn *amqp.Connection
	ch   *amqp.Channel
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithDialTimeout bounds each connection attempt.
func WithDialTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) { p.timeout = d }
}

// WithBufferSize sets how many events may wait for the broker.
func WithBufferSize(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.events = make(chan AdmissionEvent, n)
		}
	}
}

// NewPublisher returns a Publisher for url.  Nothing is sent until Run is
// started.
func NewPublisher(url, queue string, log *zap.Logger, opts ...PublisherOption) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &Publisher{
		url:     url,
		queue:   queue,
		log:     log.Named("publisher"),
		timeout: DefaultDialTimeout,
		events:  make(chan AdmissionEvent, 1024),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish enqueues ev without blocking.
func (p *Publisher) Publish(ctx context.Context, ev AdmissionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.events <- ev:
		return nil
	default:
		return fmt.Errorf("%w: dropping %s for admission %d", ErrBufferFull, ev.Type, ev.AdmissionID)
	}
}

// Run delivers buffered events until ctx is cancelled.  An event that fails
// to send is retried with backoff; events queued behind it wait.
func (p *Publisher) Run(ctx context.Context) error {
	defer p.reset()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-p.events:
			backoff := 500 * time.Millisecond
			for {
				err := p.send(ctx, ev)
				if err == nil {
					break
				}
				p.log.Warn("publish failed", zap.String("event_id", ev.ID), zap.Error(err), zap.Duration("retry_in", backoff))
				p.reset()
				if !sleep(ctx, backoff) {
					return nil
				}
				if backoff < 30*time.Second {
					backoff *= 2
				}
			}
		}
	}
}

// send publishes ev as a persistent message.  The event id becomes the AMQP
// message id so consumers can drop redeliveries.
func (p *Publisher) send(ctx context.Context, ev AdmissionEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err = ch.PublishWithContext(pctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         string(ev.Type),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	p.log.Debug("event published", zap.String("event", string(ev.Type)), zap.String("event_id", ev.ID))
	return nil
}

// channel returns an open channel, dialing when needed.  Only Run calls it.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := dial(ctx, p.url, p.timeout)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", p.queue, err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}
