package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evoquant/evobot/internal/domain"
)

// snapshotTTL bounds how long a cached snapshot survives without a refresh,
// so a dead feed cannot serve stale quotes forever.
const snapshotTTL = 5 * time.Minute

// SnapshotCache implements domain.SnapshotCache using Redis string keys with
// JSON payloads. Snapshots live at "snapshot:{symbol}"; the market-wide
// sentiment reading lives at "sentiment:latest".
type SnapshotCache struct {
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.rdb}
}

func snapshotKey(symbol string) string {
	return "snapshot:" + symbol
}

// Set stores the latest snapshot for a symbol.
func (sc *SnapshotCache) Set(ctx context.Context, snap domain.MarketSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.Symbol, err)
	}
	if err := sc.rdb.Set(ctx, snapshotKey(snap.Symbol), payload, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.Symbol, err)
	}
	return nil
}

// Get retrieves the latest snapshot for a symbol. It returns
// domain.ErrNotFound when no snapshot is cached.
func (sc *SnapshotCache) Get(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	data, err := sc.rdb.Get(ctx, snapshotKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.MarketSnapshot{}, fmt.Errorf("redis: snapshot %s: %w", symbol, domain.ErrNotFound)
	}
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", symbol, err)
	}

	var snap domain.MarketSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("redis: unmarshal snapshot %s: %w", symbol, err)
	}
	return snap, nil
}

// SetSentiment stores the latest market-wide sentiment reading.
func (sc *SnapshotCache) SetSentiment(ctx context.Context, s domain.SentimentReading) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("redis: marshal sentiment: %w", err)
	}
	if err := sc.rdb.Set(ctx, "sentiment:latest", payload, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set sentiment: %w", err)
	}
	return nil
}

// GetSentiment retrieves the latest sentiment reading. It returns
// domain.ErrNotFound when no reading is cached.
func (sc *SnapshotCache) GetSentiment(ctx context.Context) (domain.SentimentReading, error) {
	data, err := sc.rdb.Get(ctx, "sentiment:latest").Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.SentimentReading{}, fmt.Errorf("redis: sentiment: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.SentimentReading{}, fmt.Errorf("redis: get sentiment: %w", err)
	}

	var s domain.SentimentReading
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.SentimentReading{}, fmt.Errorf("redis: unmarshal sentiment: %w", err)
	}
	return s, nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
