package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AuditFile is the file name the consumer appends to inside its directory.
const AuditFile = "admission.log"

// AuditLog appends one line per admission event to dir/admission.log.
type AuditLog struct {
	dir string
	mu  sync.Mutex
}

// NewAuditLog returns an AuditLog writing under dir.
func NewAuditLog(dir string) *AuditLog { return &AuditLog{dir: dir} }

// Append writes ev as a single line.
func (a *AuditLog) Append(ev AdmissionEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", a.dir, err)
	}
	f, err := os.OpenFile(filepath.Join(a.dir, AuditFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(ev.Line() + "\n"); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// ErrMalformedEvent marks a message that can never be processed.
var ErrMalformedEvent = errors.New("malformed admission event")

// shouldRequeue reports whether a failed message may succeed later.  Bodies
// that do not decode are dropped; audit write failures are retried.
func shouldRequeue(err error) bool {
	return !errors.Is(err, ErrMalformedEvent)
}

// Consumer drains the admission events queue into an AuditLog.
type Consumer struct {
	url   string
	queue string
	audit *AuditLog
	log   *zap.Logger
}

// NewConsumer returns a consumer for queue on the broker at url.
func NewConsumer(url, queue string, audit *AuditLog, log *zap.Logger) *Consumer {
	if queue == "" {
		queue = DefaultQueue
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{url: url, queue: queue, audit: audit, log: log.Named("consumer")}
}

// Run connects, consumes and reconnects with exponential backoff until ctx
// is cancelled.  It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := dial(ctx, c.url, DefaultDialTimeout)
		if err != nil {
			c.log.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set qos failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	c.log.Info("consuming admission events", zap.String("queue", c.queue))
	for d := range msgs {
		if err := c.Handle(d.Body); err != nil {
			retry := shouldRequeue(err)
			c.log.Error("handle message failed",
				zap.String("message_id", d.MessageId), zap.Bool("requeue", retry), zap.Error(err))
			if retry && !sleep(ctx, time.Second) {
				_ = d.Nack(false, true)
				return ctx.Err()
			}
			_ = d.Nack(false, retry)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// Handle decodes one message body and appends it to the audit log.
func (c *Consumer) Handle(body []byte) error {
	var ev AdmissionEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if ev.Type == "" || ev.AdmissionID == 0 {
		return fmt.Errorf("%w: incomplete event %q", ErrMalformedEvent, ev.ID)
	}
	return c.audit.Append(ev)
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
