package finnhub

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"trade_ingest/internal/domain"
)

// Message is the result of decoding one frame.
type Message struct {
	Type   string
	Trades []domain.TradeEvent
}

// IsTrade reports whether the envelope carried trades.
func (m Message) IsTrade() bool {
	return m.Type == envelopeTrade
}

// rawObject keeps the exact key spelling of a JSON object.
type rawObject map[string]json.RawMessage

// Decode turns one text payload into trade events.
// Non-trade envelopes decode to a Message with no trades and no error.
func Decode(payload []byte) (Message, error) {
	if !utf8.Valid(payload) {
		return Message{}, &domain.DecodeError{Kind: domain.KindEncoding, Err: errors.New("payload is not valid utf-8")}
	}

	env, err := decodeObject(payload, envelopeKeys)
	if err != nil {
		return Message{}, malformed(err)
	}

	var msgType string
	if err := env.field("type", &msgType); err != nil {
		return Message{}, malformed(err)
	}

	// "data" is optional, but any records present must be well formed.
	var records []json.RawMessage
	rawData, hasData := env["data"]
	if hasData && !isNull(rawData) {
		if err := json.Unmarshal(rawData, &records); err != nil {
			return Message{}, malformed(fmt.Errorf(`"data": %w`, err))
		}
	} else {
		hasData = false
	}

	trades := make([]domain.TradeEvent, 0, len(records))
	for i, raw := range records {
		ev, err := decodeRecord(raw)
		if err != nil {
			return Message{}, malformed(fmt.Errorf("data[%d]: %w", i, err))
		}
		trades = append(trades, ev)
	}

	msg := Message{Type: msgType}
	if !msg.IsTrade() {
		return msg, nil
	}
	if !hasData {
		return Message{}, malformed(errors.New(`trade envelope without "data" array`))
	}
	msg.Trades = trades
	return msg, nil
}

func decodeRecord(raw json.RawMessage) (domain.TradeEvent, error) {
	rec, err := decodeObject(raw, recordKeys)
	if err != nil {
		return domain.TradeEvent{}, err
	}

	var (
		ev   domain.TradeEvent
		tsMs float64
	)
	if err := rec.field("p", &ev.Price); err != nil {
		return domain.TradeEvent{}, err
	}
	if err := rec.field("s", &ev.Symbol); err != nil {
		return domain.TradeEvent{}, err
	}
	if err := rec.field("t", &tsMs); err != nil {
		return domain.TradeEvent{}, err
	}
	if err := rec.field("v", &ev.Volume); err != nil {
		return domain.TradeEvent{}, err
	}
	ev.TimestampSeconds = tsMs / 1000
	return ev, nil
}

// decodeObject parses a JSON object and rejects keys that differ from a known
// key only by case. Unrelated extra keys are ignored.
func decodeObject(data []byte, known []string) (rawObject, error) {
	if isNull(data) {
		return nil, errors.New("expected object, got null")
	}
	var obj rawObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	for key := range obj {
		for _, k := range known {
			if key != k && strings.EqualFold(key, k) {
				return nil, fmt.Errorf("unexpected key %q (want %q)", key, k)
			}
		}
	}
	return obj, nil
}

// field decodes a required, non-null key into v.
func (o rawObject) field(key string, v any) error {
	raw, ok := o[key]
	if !ok || isNull(raw) {
		return fmt.Errorf("missing %q", key)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%q: %w", key, err)
	}
	return nil
}

func isNull(raw []byte) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func malformed(err error) error {
	return &domain.DecodeError{Kind: domain.KindMalformed, Err: err}
}
