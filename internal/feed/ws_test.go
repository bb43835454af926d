package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoquant/evobot/internal/domain"
)

// newWSServer runs handler once per accepted WebSocket connection.
func newWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(conn)
	}))
}

func wsEndpoint(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func wsTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDoneFiresOnServerDisconnect(t *testing.T) {
	conns := make(chan *websocket.Conn, 1)
	srv := newWSServer(t, func(c *websocket.Conn) { conns <- c })
	defer srv.Close()

	client := NewWSClient(wsEndpoint(srv), wsTestLogger())
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	server := <-conns
	require.NoError(t, server.Close())

	select {
	case <-client.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("read loop exit not surfaced after disconnect")
	}
}

func TestDoneFiresOnClose(t *testing.T) {
	srv := newWSServer(t, func(c *websocket.Conn) {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	client := NewWSClient(wsEndpoint(srv), wsTestLogger())
	require.NoError(t, client.Connect(context.Background()))
	require.NoError(t, client.Close())

	select {
	case <-client.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("read loop exit not surfaced after close")
	}
}

func TestQuoteDispatch(t *testing.T) {
	conns := make(chan *websocket.Conn, 1)
	srv := newWSServer(t, func(c *websocket.Conn) {
		conns <- c
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	client := NewWSClient(wsEndpoint(srv), wsTestLogger())
	quotes := make(chan domain.MarketSnapshot, 1)
	client.OnQuote(func(snap domain.MarketSnapshot) { quotes <- snap })
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	server := <-conns
	require.NoError(t, server.WriteJSON(map[string]any{
		"type":   "quote",
		"symbol": "BTC-USD",
		"last":   50000.0,
		"bid":    49999.5,
		"ask":    50000.5,
	}))

	select {
	case q := <-quotes:
		assert.Equal(t, "BTC-USD", q.Symbol)
		assert.InDelta(t, 50000.0, q.Last, 1e-9)
		assert.InDelta(t, 49999.5, q.Bid, 1e-9)
	case <-time.After(3 * time.Second):
		t.Fatal("quote not dispatched")
	}
}

func TestFeedReconnectsAfterDisconnect(t *testing.T) {
	var dials atomic.Int32
	srv := newWSServer(t, func(c *websocket.Conn) {
		if dials.Add(1) == 1 {
			// Drop the first connection immediately.
			c.Close()
			return
		}
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	f := New(wsEndpoint(srv), []string{"BTC-USD"}, testAggregator("BTC-USD"), wsTestLogger())
	f.reconnectDelay = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	require.Eventually(t, func() bool { return dials.Load() >= 2 },
		3*time.Second, 20*time.Millisecond, "feed never redialed")
}
