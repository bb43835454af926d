// Package feed ingests the real-time quote stream and assembles the
// per-tick snapshot batches the executor consumes. Missing data stays
// missing: a symbol without a fresh quote is reported unavailable, never
// defaulted.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evoquant/evobot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// QuoteHandler is called for each top-of-book quote update.
type QuoteHandler func(domain.MarketSnapshot)

// BarHandler is called for each completed OHLCV bar.
type BarHandler func(domain.Bar)

// SentimentHandler is called for each market-wide sentiment update.
type SentimentHandler func(domain.SentimentReading)

// wsCommand is the subscription envelope sent to the quote stream.
type wsCommand struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
	Symbols  []string `json:"symbols"`
}

// wsMessage is the inbound envelope. Type selects which fields are set.
type wsMessage struct {
	Type      string   `json:"type"`
	Symbol    string   `json:"symbol"`
	Last      float64  `json:"last"`
	Bid       float64  `json:"bid"`
	Ask       float64  `json:"ask"`
	Open      float64  `json:"open"`
	High      float64  `json:"high"`
	Low       float64  `json:"low"`
	Close     float64  `json:"close"`
	Volume    float64  `json:"volume"`
	Score     float64  `json:"score"`
	FearGreed *float64 `json:"fear_greed,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// WSClient is a WebSocket client for the market data stream. It manages the
// connection lifecycle, subscriptions, and dispatches messages to registered
// handlers.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Subscriptions to restore on reconnect.
	subscriptions []wsCommand

	handlerMu         sync.RWMutex
	quoteHandlers     []QuoteHandler
	barHandlers       []BarHandler
	sentimentHandlers []SentimentHandler

	logger *slog.Logger
	done   chan struct{}

	// readExited is closed exactly once when the read loop stops, whether
	// from Close or from a connection failure.
	readExited chan struct{}
	exitOnce   sync.Once
}

// NewWSClient creates a client for the given WebSocket endpoint.
func NewWSClient(wsURL string, logger *slog.Logger) *WSClient {
	return &WSClient{
		wsURL:      wsURL,
		logger:     logger.With(slog.String("component", "feed_ws")),
		done:       make(chan struct{}),
		readExited: make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("feed: client closed")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	w.conn = conn

	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	// Restore any previous subscriptions after reconnect.
	for _, cmd := range w.subscriptions {
		if err := w.sendCommand(cmd); err != nil {
			return fmt.Errorf("feed: restore subscription: %w", err)
		}
	}
	return nil
}

// Subscribe subscribes to the given channels for the specified symbols.
// Valid channels are "quote", "bar", "sentiment".
func (w *WSClient) Subscribe(ctx context.Context, channels, symbols []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("feed: not connected")
	}
	cmd := wsCommand{Type: "subscribe", Channels: channels, Symbols: symbols}
	if err := w.sendCommand(cmd); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	w.subscriptions = append(w.subscriptions, cmd)
	return nil
}

// OnQuote registers a quote handler.
func (w *WSClient) OnQuote(h QuoteHandler) {
	w.handlerMu.Lock()
	w.quoteHandlers = append(w.quoteHandlers, h)
	w.handlerMu.Unlock()
}

// OnBar registers a completed-bar handler.
func (w *WSClient) OnBar(h BarHandler) {
	w.handlerMu.Lock()
	w.barHandlers = append(w.barHandlers, h)
	w.handlerMu.Unlock()
}

// OnSentiment registers a sentiment handler.
func (w *WSClient) OnSentiment(h SentimentHandler) {
	w.handlerMu.Lock()
	w.sentimentHandlers = append(w.sentimentHandlers, h)
	w.handlerMu.Unlock()
}

// Close shuts the client down. The connection is closed and the read loop
// exits.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)
	if w.conn != nil {
		return w.conn.Close()
	}
	// No connection means no read loop to fire the exit signal.
	w.exitOnce.Do(func() { close(w.readExited) })
	return nil
}

// Done is closed when the read loop exits. Callers select on it to detect a
// dropped stream; Close also fires it.
func (w *WSClient) Done() <-chan struct{} {
	return w.readExited
}

func (w *WSClient) sendCommand(cmd wsCommand) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(cmd)
}

func (w *WSClient) readLoop() {
	defer w.exitOnce.Do(func() { close(w.readExited) })
	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			w.logger.Debug("read loop exit", slog.String("error", err.Error()))
			return
		}
		w.dispatch(data)
	}
}

func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (w *WSClient) dispatch(data []byte) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		w.logger.Debug("unparseable message", slog.Int("payload_len", len(data)))
		return
	}
	ts := time.Now().UTC()
	if msg.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, msg.Timestamp); err == nil {
			ts = t
		}
	}

	w.handlerMu.RLock()
	defer w.handlerMu.RUnlock()

	switch msg.Type {
	case "quote":
		if msg.Symbol == "" {
			return
		}
		snap := domain.MarketSnapshot{
			Symbol:    msg.Symbol,
			Timestamp: ts,
			Last:      msg.Last,
			Bid:       msg.Bid,
			Ask:       msg.Ask,
			Volume:    msg.Volume,
		}
		for _, h := range w.quoteHandlers {
			h(snap)
		}
	case "bar":
		if msg.Symbol == "" {
			return
		}
		bar := domain.Bar{
			Symbol:    msg.Symbol,
			Timestamp: ts,
			Open:      msg.Open,
			High:      msg.High,
			Low:       msg.Low,
			Close:     msg.Close,
			Volume:    msg.Volume,
		}
		for _, h := range w.barHandlers {
			h(bar)
		}
	case "sentiment":
		reading := domain.SentimentReading{
			Timestamp: ts,
			Score:     msg.Score,
			FearGreed: msg.FearGreed,
		}
		for _, h := range w.sentimentHandlers {
			h(reading)
		}
	}
}
