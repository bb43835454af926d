package domain

import (
	"context"
	"time"
)

// SnapshotCache holds the latest market snapshot per symbol so the tick loop
// can detect stale data and collaborators can share one feed.
type SnapshotCache interface {
	Set(ctx context.Context, snap MarketSnapshot) error
	Get(ctx context.Context, symbol string) (MarketSnapshot, error)
	SetSentiment(ctx context.Context, s SentimentReading) error
	GetSentiment(ctx context.Context) (SentimentReading, error)
}

// StreamMessage is a single entry read back from a durable event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// EventBus publishes engine events (trades, rejections, metrics, cycle
// records) for downstream collaborators. Publish is fire-and-forget pub/sub;
// StreamAppend is durable and ordered.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock.
type RealClock struct{}

// Now returns the current UTC time.
func (RealClock) Now() time.Time { return time.Now().UTC() }
