package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_ingest/internal/domain"
)

type mockWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func TestParseKafkaDSN(t *testing.T) {
	tests := []struct {
		dsn       string
		brokers   []string
		topic     string
		wantError bool
	}{
		{"kafka://localhost:9092/trades", []string{"localhost:9092"}, "trades", false},
		{"kafka://b1:9092, b2:9092/market.trades/", []string{"b1:9092", "b2:9092"}, "market.trades", false},
		{"kafka://localhost:9092", nil, "", true},
		{"kafka:///trades", nil, "", true},
		{"redis://localhost/trades", nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			brokers, topic, err := parseKafkaDSN(tt.dsn)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.brokers, brokers)
			assert.Equal(t, tt.topic, topic)
		})
	}
}

func TestKafkaSink_Insert(t *testing.T) {
	w := &mockWriter{}
	sink := &KafkaSink{writer: w, topic: "trades"}

	events := []domain.TradeEvent{
		{Price: 42000.5, Symbol: "BINANCE:BTCUSDT", TimestampSeconds: 1700000000.25, Volume: 0.01},
		{Price: 1.1, Symbol: "IC MARKETS:1", TimestampSeconds: 1700000001.5, Volume: 1000},
	}
	for _, ev := range events {
		require.NoError(t, sink.Insert(context.Background(), ev))
	}

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "BINANCE:BTCUSDT", string(w.msgs[0].Key))
	assert.Equal(t, "IC MARKETS:1", string(w.msgs[1].Key))
	assert.True(t, w.msgs[0].Time.Equal(time.Unix(1700000000, 250*int64(time.Millisecond))))

	var got tradeMessage
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &got))
	assert.Equal(t, tradeMessage{Price: "1.1", Security: "IC MARKETS:1", Timestamp: "1700000001.5", Value: "1000"}, got)

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestKafkaSink_InsertError(t *testing.T) {
	w := &mockWriter{err: errors.New("leader not available")}
	sink := &KafkaSink{writer: w, topic: "trades"}

	err := sink.Insert(context.Background(), domain.TradeEvent{Symbol: "A"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka write trades")
	assert.ErrorIs(t, err, w.err)
}

func TestOpen_Kafka(t *testing.T) {
	sink, err := Open(context.Background(), "kafka://localhost:9092/trades")
	require.NoError(t, err)
	defer sink.Close()

	ks, ok := sink.(*KafkaSink)
	require.True(t, ok)
	assert.Equal(t, "trades", ks.topic)
}
