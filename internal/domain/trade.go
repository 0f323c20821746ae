package domain

import (
	"math"
	"time"
)

// TradeEvent is one executed trade decoded from the feed.
type TradeEvent struct {
	Price            float64
	Symbol           string
	TimestampSeconds float64 // Unix seconds; the wire carries milliseconds
	Volume           float64
}

// Time converts TimestampSeconds to a time.Time with millisecond precision.
func (e TradeEvent) Time() time.Time {
	sec, frac := math.Modf(e.TimestampSeconds)
	return time.Unix(int64(sec), int64(math.Round(frac*1e3))*int64(time.Millisecond))
}

// SubscriptionDirective asks the feed to stream one instrument.
type SubscriptionDirective struct {
	Symbol string
}
