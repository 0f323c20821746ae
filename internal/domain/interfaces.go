package domain

import (
	"context"
)

// FeedWorker defines the interface for market-data WebSocket connectors
type FeedWorker interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
}

// TradeSink durably stores single trades. Append-only; no read path.
type TradeSink interface {
	Insert(ctx context.Context, ev TradeEvent) error
}
