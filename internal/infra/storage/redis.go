package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/redis/go-redis/v9"

	"trade_ingest/internal/domain"
)

const (
	defaultStream    = "trades"
	defaultStreamLen = 100000
	channelPrefix    = "trades."
)

var _ Sink = (*RedisSink)(nil)

// RedisSink appends each trade to a capped stream and publishes it on trades.<symbol>.
type RedisSink struct {
	rdb    redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisSink connects to dsn (redis://host:port/db). A "stream" query
// parameter overrides the default stream name.
func NewRedisSink(ctx context.Context, dsn string) (*RedisSink, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse redis dsn: %w", err)
	}
	q := u.Query()
	stream := q.Get("stream")
	if stream == "" {
		stream = defaultStream
	}
	q.Del("stream")
	u.RawQuery = q.Encode()

	opts, err := redis.ParseURL(u.String())
	if err != nil {
		return nil, fmt.Errorf("parse redis dsn: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return NewRedisSinkFromClient(rdb, stream), nil
}

// NewRedisSinkFromClient wraps an existing client.
func NewRedisSinkFromClient(rdb redis.UniversalClient, stream string) *RedisSink {
	if stream == "" {
		stream = defaultStream
	}
	return &RedisSink{rdb: rdb, stream: stream, maxLen: defaultStreamLen}
}

// Insert runs XADD and PUBLISH in one pipeline.
func (s *RedisSink) Insert(ctx context.Context, ev domain.TradeEvent) error {
	payload, err := json.Marshal(newTradeMessage(ev))
	if err != nil {
		return fmt.Errorf("encode trade: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Values: tradeFields(ev),
	})
	pipe.Publish(ctx, channelPrefix+ev.Symbol, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *RedisSink) Close() error {
	return s.rdb.Close()
}

// tradeFields renders a trade as stream fields using the trades table column names.
func tradeFields(ev domain.TradeEvent) map[string]any {
	m := newTradeMessage(ev)
	return map[string]any{
		"price":     m.Price,
		"security":  m.Security,
		"timestamp": m.Timestamp,
		"value":     m.Value,
	}
}
