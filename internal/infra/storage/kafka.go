package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"trade_ingest/internal/domain"
)

var _ Sink = (*KafkaSink)(nil)

// messageWriter abstracts kafka.Writer
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink produces one message per trade, keyed by symbol so a partition
// keeps each instrument's trades in order.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

// NewKafkaSink builds a writer from kafka://broker[,broker]/topic.
func NewKafkaSink(dsn string) (*KafkaSink, error) {
	brokers, topic, err := parseKafkaDSN(dsn)
	if err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &KafkaSink{writer: writer, topic: topic}, nil
}

func parseKafkaDSN(dsn string) ([]string, string, error) {
	rest, ok := strings.CutPrefix(dsn, "kafka://")
	if !ok {
		return nil, "", fmt.Errorf("%w: kafka dsn must start with kafka://", domain.ErrUnsupportedSink)
	}
	hosts, topic, _ := strings.Cut(rest, "/")
	topic = strings.Trim(topic, "/")
	if topic == "" {
		return nil, "", errors.New("kafka dsn: missing topic")
	}

	var brokers []string
	for _, h := range strings.Split(hosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			brokers = append(brokers, h)
		}
	}
	if len(brokers) == 0 {
		return nil, "", errors.New("kafka dsn: missing brokers")
	}
	return brokers, topic, nil
}

// Insert writes one message and waits for the broker acknowledgement.
func (s *KafkaSink) Insert(ctx context.Context, ev domain.TradeEvent) error {
	value, err := json.Marshal(newTradeMessage(ev))
	if err != nil {
		return fmt.Errorf("encode trade: %w", err)
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Symbol),
		Value: value,
		Time:  ev.Time(),
	})
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", s.topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// tradeMessage is the JSON value shared by the redis and kafka sinks.
// Numbers are rendered as exact decimal strings.
type tradeMessage struct {
	Price     string `json:"price"`
	Security  string `json:"security"`
	Timestamp string `json:"timestamp"`
	Value     string `json:"value"`
}

func newTradeMessage(ev domain.TradeEvent) tradeMessage {
	return tradeMessage{
		Price:     decimal.NewFromFloat(ev.Price).String(),
		Security:  ev.Symbol,
		Timestamp: decimal.NewFromFloat(ev.TimestampSeconds).String(),
		Value:     decimal.NewFromFloat(ev.Volume).String(),
	}
}
