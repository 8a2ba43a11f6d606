// Package ingest bridges ISAR events published on NATS onto the in-process
// event bus.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mattjoyce/plantdata-gw/internal/inspection"
	"github.com/mattjoyce/plantdata-gw/internal/log"
	"github.com/mattjoyce/plantdata-gw/internal/metrics"
)

const (
	// publishTimeout bounds how long one NATS message may wait for the dispatcher.
	publishTimeout = 10 * time.Second
	// drainTimeout bounds Close; nats closes the connection itself once it passes.
	drainTimeout = 30 * time.Second
)

// Publisher is the bus side of the bridge.
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte) (int64, error)
}

type Config struct {
	URL           string
	Name          string
	Token         string
	ResultSubject string
	ValueSubject  string
	MaxReconnects int
	ReconnectWait time.Duration
}

// Subscriber holds the NATS connection and both subject subscriptions.
type Subscriber struct {
	pub     Publisher
	logger  *slog.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	closed     chan struct{}
	closedOnce sync.Once

	mu   sync.Mutex
	conn *nats.Conn
	subs []*nats.Subscription
}

func newSubscriber(pub Publisher, m *metrics.Metrics) *Subscriber {
	ctx, cancel := context.WithCancel(context.Background())
	return &Subscriber{
		pub:     pub,
		logger:  log.WithComponent("ingest"),
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		closed:  make(chan struct{}),
	}
}

func (s *Subscriber) markClosed() {
	s.closedOnce.Do(func() { close(s.closed) })
}

// Connect dials NATS and subscribes the result and value subjects.
func Connect(cfg Config, pub Publisher, m *metrics.Metrics) (*Subscriber, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url is empty")
	}
	s := newSubscriber(pub, m)

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DrainTimeout(drainTimeout),
		nats.ClosedHandler(func(*nats.Conn) { s.markClosed() }),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			s.logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			s.logger.Error("nats async error", "subject", subject, "error", err)
		}),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		s.cancel()
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	s.conn = conn

	bindings := []struct {
		subject string
		topic   string
	}{
		{cfg.ResultSubject, inspection.TopicResult},
		{cfg.ValueSubject, inspection.TopicValue},
	}
	for _, b := range bindings {
		if b.subject == "" {
			continue
		}
		topic := b.topic
		sub, err := conn.Subscribe(b.subject, func(msg *nats.Msg) {
			s.route(topic, msg.Subject, msg.Data)
		})
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("subscribe %s: %w", b.subject, err)
		}
		s.subs = append(s.subs, sub)
		s.logger.Info("nats subject bound", "subject", b.subject, "topic", topic)
	}
	return s, nil
}

// route validates one NATS payload and republishes it on topic.
func (s *Subscriber) route(topic, subject string, data []byte) {
	inspectionID, err := inspection.ValidateTopicPayload(topic, data)
	if err != nil {
		s.metrics.Failure(metrics.StageIngest)
		s.logger.Error("dropping invalid nats payload", "subject", subject, "topic", topic, "error", err)
		return
	}

	logger := log.WithInspection(s.logger, inspectionID)
	ctx, cancel := context.WithTimeout(s.ctx, publishTimeout)
	defer cancel()
	id, err := s.pub.Publish(ctx, topic, data)
	if err != nil {
		s.metrics.Failure(metrics.StageIngest)
		logger.Error("failed to publish nats payload", "subject", subject, "topic", topic, "error", err)
		return
	}
	logger.Debug("nats payload routed", "subject", subject, "topic", topic, "event_id", id)
}

// Close drains the subscriptions and closes the connection. Messages already
// received are routed onto the bus before Close returns.
func (s *Subscriber) Close() error {
	// Cancel last: draining messages still publish with s.ctx.
	defer s.cancel()

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.subs = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Drain(); err != nil {
		conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}

	select {
	case <-s.closed:
		return nil
	case <-time.After(drainTimeout + time.Second):
		conn.Close()
		return fmt.Errorf("drain nats: not closed after %s", drainTimeout)
	}
}
