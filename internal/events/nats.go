package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSConfig configures the JetStream publisher.
type NATSConfig struct {
	URL             string
	StreamName      string
	AsyncBufferSize int
	ConnectTimeout  time.Duration
	MaxReconnects   int
	ReconnectWait   time.Duration
	CredsFile       string
	Token           string
	User            string
	Password        string
}

// DefaultNATSConfig returns sensible defaults for call signaling loads.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:             nats.DefaultURL,
		StreamName:      "SCCPD_EVENTS",
		AsyncBufferSize: 10000,
		ConnectTimeout:  5 * time.Second,
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
	}
}

// NATSPublisher publishes events to a NATS JetStream stream covering
// sccpd.> subjects.
type NATSPublisher struct {
	js     jetstream.JetStream
	conn   *nats.Conn
	logger *slog.Logger

	asyncCh chan Event
	asyncWg sync.WaitGroup

	mu           sync.Mutex
	closed       bool
	published    int64
	errors       int64
	asyncDropped int64
}

// NewNATSPublisher connects, ensures the stream exists and starts the
// async worker.
func NewNATSPublisher(cfg NATSConfig, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []nats.Option{
		nats.Name("sccpd-events"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("[Events] NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("[Events] NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}
	switch {
	case cfg.CredsFile != "":
		opts = append(opts, nats.UserCredentials(cfg.CredsFile))
	case cfg.Token != "":
		opts = append(opts, nats.Token(cfg.Token))
	case cfg.User != "":
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:            cfg.StreamName,
		Subjects:        []string{SubjectPrefix + ".>"},
		Retention:       jetstream.LimitsPolicy,
		MaxAge:          7 * 24 * time.Hour,
		Storage:         jetstream.FileStorage,
		Replicas:   1,
		Duplicates: 5 * time.Minute,
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create stream %s: %w", cfg.StreamName, err)
	}

	bufSize := cfg.AsyncBufferSize
	if bufSize <= 0 {
		bufSize = 10000
	}
	p := &NATSPublisher{
		js:      js,
		conn:    conn,
		logger:  logger,
		asyncCh: make(chan Event, bufSize),
	}
	p.asyncWg.Add(1)
	go p.asyncWorker()

	logger.Info("[Events] NATS publisher ready", "url", cfg.URL, "stream", cfg.StreamName)
	return p, nil
}

func (p *NATSPublisher) asyncWorker() {
	defer p.asyncWg.Done()
	for event := range p.asyncCh {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.Publish(ctx, event); err != nil {
			p.logger.Warn("[Events] async publish failed",
				"error", err, "type", event.Type(), "device", event.Device())
		}
		cancel()
	}
}

func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := event.Subject()

	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		p.mu.Lock()
		p.errors++
		p.mu.Unlock()
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	p.mu.Lock()
	p.published++
	p.mu.Unlock()
	return nil
}

// PublishAsync never blocks; the send happens under the mutex so Flush
// cannot close the channel between the closed check and the send.
func (p *NATSPublisher) PublishAsync(event Event) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	select {
	case p.asyncCh <- event:
		p.mu.Unlock()
	default:
		p.asyncDropped++
		p.mu.Unlock()
		p.logger.Warn("[Events] async buffer full, event dropped",
			"type", event.Type(), "device", event.Device())
	}
}

// Flush drains the async channel and flushes the connection. The
// publisher accepts no more async events afterwards.
func (p *NATSPublisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.asyncCh)
	p.asyncWg.Wait()
	return p.conn.FlushWithContext(ctx)
}

func (p *NATSPublisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Flush(ctx); err != nil {
		p.logger.Warn("[Events] flush failed during close", "error", err)
	}
	p.conn.Close()
	return nil
}

// Stats returns publish counters for the admin API.
func (p *NATSPublisher) Stats() (published, errors, asyncDropped int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published, p.errors, p.asyncDropped
}
