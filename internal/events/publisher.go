package events

import (
	"context"
	"log/slog"
	"sync"
)

// Publisher delivers events to external consumers. Publish returns errors
// only for transport failures; invalid events are caught at construction.
type Publisher interface {
	Publish(ctx context.Context, event Event) error

	// PublishAsync sends without waiting for confirmation. Loss under
	// pressure is acceptable for async events.
	PublishAsync(event Event)

	// Flush drains pending async events. Call before shutdown.
	Flush(ctx context.Context) error

	Close() error
}

// NoopPublisher discards all events. Used when no broker is configured.
type NoopPublisher struct{}

func NewNoopPublisher() *NoopPublisher { return &NoopPublisher{} }

func (*NoopPublisher) Publish(context.Context, Event) error { return nil }
func (*NoopPublisher) PublishAsync(Event)                   {}
func (*NoopPublisher) Flush(context.Context) error          { return nil }
func (*NoopPublisher) Close() error                         { return nil }

// LoggingPublisher logs events at debug level.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(_ context.Context, event Event) error {
	p.logger.Debug("[Events] published",
		"subject", event.Subject(),
		"type", event.Type(),
		"device", event.Device(),
	)
	return nil
}

func (p *LoggingPublisher) PublishAsync(event Event) {
	_ = p.Publish(context.Background(), event)
}

func (p *LoggingPublisher) Flush(context.Context) error { return nil }
func (p *LoggingPublisher) Close() error                { return nil }

// ChannelPublisher publishes to an in-memory channel, for tests and local
// consumers. Events are dropped when the buffer is full.
type ChannelPublisher struct {
	mu      sync.Mutex
	ch      chan Event
	closed  bool
	dropped int64
}

func NewChannelPublisher(bufferSize int) *ChannelPublisher {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelPublisher{ch: make(chan Event, bufferSize)}
}

func (p *ChannelPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	select {
	case p.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		return nil
	}
}

func (p *ChannelPublisher) PublishAsync(event Event) {
	_ = p.Publish(context.Background(), event)
}

func (p *ChannelPublisher) Flush(context.Context) error { return nil }

func (p *ChannelPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	return nil
}

// Events returns the consuming side of the channel.
func (p *ChannelPublisher) Events() <-chan Event { return p.ch }

// Dropped returns the number of events lost to a full buffer.
func (p *ChannelPublisher) Dropped() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// MultiPublisher fans out to several publishers.
type MultiPublisher struct {
	publishers []Publisher
}

func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers}
}

func (p *MultiPublisher) Publish(ctx context.Context, event Event) error {
	var lastErr error
	for _, pub := range p.publishers {
		if err := pub.Publish(ctx, event); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (p *MultiPublisher) PublishAsync(event Event) {
	for _, pub := range p.publishers {
		pub.PublishAsync(event)
	}
}

func (p *MultiPublisher) Flush(ctx context.Context) error {
	var lastErr error
	for _, pub := range p.publishers {
		if err := pub.Flush(ctx); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (p *MultiPublisher) Close() error {
	var lastErr error
	for _, pub := range p.publishers {
		if err := pub.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
