package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/evoquant/evobot/internal/domain"
)

// Feed connects the WebSocket quote stream to the Aggregator and keeps the
// connection alive, reconnecting with a fixed delay on disconnect.
type Feed struct {
	wsURL          string
	symbols        []string
	agg            *Aggregator
	logger         *slog.Logger
	closeOnce      sync.Once
	done           chan struct{}
	reconnectDelay time.Duration
}

// New creates a Feed for the given endpoint and symbol set.
func New(wsURL string, symbols []string, agg *Aggregator, logger *slog.Logger) *Feed {
	return &Feed{
		wsURL:          wsURL,
		symbols:        symbols,
		agg:            agg,
		logger:         logger.With(slog.String("component", "feed")),
		done:           make(chan struct{}),
		reconnectDelay: 2 * time.Second,
	}
}

// Run connects, subscribes to quotes, bars, and sentiment for the configured
// symbols, and runs until ctx is cancelled. Reconnects on disconnect.
func (f *Feed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to subscribe, exiting")
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("feed disconnected, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(f.reconnectDelay):
		}
	}
}

func (f *Feed) runConnection(ctx context.Context) error {
	client := NewWSClient(f.wsURL, f.logger)
	defer client.Close()

	client.OnQuote(func(snap domain.MarketSnapshot) {
		f.agg.ApplyQuote(context.Background(), snap)
	})
	client.OnBar(func(bar domain.Bar) {
		f.agg.ApplyBar(bar)
	})
	client.OnSentiment(func(r domain.SentimentReading) {
		f.agg.ApplySentiment(context.Background(), r)
	})

	if err := client.Connect(ctx); err != nil {
		return err
	}
	if err := client.Subscribe(ctx, []string{"quote", "bar", "sentiment"}, f.symbols); err != nil {
		return err
	}
	f.logger.Info("feed subscribed", slog.Int("symbols", len(f.symbols)))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-client.Done():
		// The read loop exited without a shutdown request, so the
		// connection dropped. Returning an error drives a reconnect.
		return fmt.Errorf("feed: stream closed")
	}
}

// Close stops the feed.
func (f *Feed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
