package finnhub

import (
	"time"
)

const (
	DefaultSubscribeInterval = 60 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultSinkTimeout       = 5 * time.Second
	DefaultDrainTimeout      = 5 * time.Second

	maxFrameBytes   = 1 << 20
	inboundBuffer   = 64
	closeGrace      = time.Second
	envelopeTrade   = "trade"
	directiveAction = "subscribe"
)

// Wire keys are matched exactly; encoding/json alone would accept "TYPE" or "P".
var (
	// {"type":"trade","data":[...]}
	envelopeKeys = []string{"type", "data"}
	// {"p":<price>,"s":<symbol>,"t":<unix ms>,"v":<volume>}
	recordKeys = []string{"p", "s", "t", "v"}
)

// subscribeRequest is the outbound directive: {"type":"subscribe","symbol":"..."}
type subscribeRequest struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}
