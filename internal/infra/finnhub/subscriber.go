package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"trade_ingest/internal/domain"
	"trade_ingest/internal/infra"
)

// DirectiveWriter is the outbound half as seen by the subscriber.
type DirectiveWriter interface {
	Write(ctx context.Context, payload []byte) error
}

// Subscriber re-sends one subscribe directive per instrument on a fixed cadence.
// Re-subscribing is a no-op upstream, so every tick also acts as a keep-alive.
type Subscriber struct {
	directives []domain.SubscriptionDirective
	payloads   [][]byte
	interval   time.Duration
	logger     *slog.Logger
	metrics    *infra.Metrics
}

// NewSubscriber pre-encodes the directives for symbols.
func NewSubscriber(symbols []string, interval time.Duration, logger *slog.Logger, metrics *infra.Metrics) (*Subscriber, error) {
	if interval <= 0 {
		interval = DefaultSubscribeInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}

	s := &Subscriber{
		directives: make([]domain.SubscriptionDirective, 0, len(symbols)),
		payloads:   make([][]byte, 0, len(symbols)),
		interval:   interval,
		logger:     logger,
		metrics:    metrics,
	}
	for _, symbol := range symbols {
		b, err := EncodeDirective(domain.SubscriptionDirective{Symbol: symbol})
		if err != nil {
			return nil, fmt.Errorf("encode directive %q: %w", symbol, err)
		}
		s.directives = append(s.directives, domain.SubscriptionDirective{Symbol: symbol})
		s.payloads = append(s.payloads, b)
	}
	return s, nil
}

// EncodeDirective renders {"type":"subscribe","symbol":"<id>"}.
func EncodeDirective(d domain.SubscriptionDirective) ([]byte, error) {
	return json.Marshal(subscribeRequest{Type: directiveAction, Symbol: d.Symbol})
}

// Directives returns the configured instruments.
func (s *Subscriber) Directives() []domain.SubscriptionDirective {
	out := make([]domain.SubscriptionDirective, len(s.directives))
	copy(out, s.directives)
	return out
}

// Run sends all directives immediately and then on every tick until ctx is done.
func (s *Subscriber) Run(ctx context.Context, w DirectiveWriter) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SendAll(ctx, w)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SendAll(ctx, w)
		}
	}
}

// SendAll writes one directive per instrument and returns how many succeeded.
// Failures are logged and left to the next tick.
func (s *Subscriber) SendAll(ctx context.Context, w DirectiveWriter) int {
	sent := 0
	for i, d := range s.directives {
		if ctx.Err() != nil {
			return sent
		}
		if err := w.Write(ctx, s.payloads[i]); err != nil {
			if ctx.Err() != nil {
				return sent
			}
			s.metrics.RecordWriteError()
			s.logger.Warn("Subscribe directive write failed",
				slog.Any("error", &domain.WriteError{Symbol: d.Symbol, Err: err}),
				slog.Bool("session_closed", IsClosed(err)),
			)
			continue
		}
		sent++
		s.metrics.RecordDirective()
		s.logger.Debug("Subscribe directive sent", slog.String("symbol", d.Symbol))
	}
	return sent
}
