package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_engine/internal/core"
	apperrors "trade_engine/pkg/errors"
)

func TestWSFeed_HandleMessage(t *testing.T) {
	f := NewWSFeed("ws://unused", nil)

	f.handleMessage([]byte(`{"feed_id":"ray-sol-usdc","venue":"raydium","price":"100.5","confidence":"0.3","publish_time":1000}`))

	quote, err := f.GetQuote(context.Background(), "ray-sol-usdc")
	require.NoError(t, err)
	assert.Equal(t, core.PriceQuote{
		Venue:       core.VenueRaydium,
		Price:       100_500_000,
		Confidence:  300_000,
		PublishTime: 1000,
	}, quote)
}

func TestWSFeed_DiscardsBadUpdates(t *testing.T) {
	f := NewWSFeed("ws://unused", nil)

	f.handleMessage([]byte(`not json`))
	f.handleMessage([]byte(`{"feed_id":"x","venue":"binance","price":"1","confidence":"1","publish_time":1}`))
	f.handleMessage([]byte(`{"feed_id":"x","venue":"raydium","price":"-1","confidence":"1","publish_time":1}`))

	_, err := f.GetQuote(context.Background(), "x")
	assert.ErrorIs(t, err, apperrors.ErrPriceUnavailable)
}

func TestWSFeed_LatestWins(t *testing.T) {
	f := NewWSFeed("ws://unused", nil)

	f.handleMessage([]byte(`{"feed_id":"x","venue":"raydium","price":"100","confidence":"1","publish_time":1000}`))
	f.handleMessage([]byte(`{"feed_id":"x","venue":"raydium","price":"101","confidence":"1","publish_time":1001}`))

	quote, err := f.GetQuote(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, uint64(101_000_000), quote.Price)
}

func TestWSFeed_HistoryWindow(t *testing.T) {
	f := NewWSFeed("ws://unused", nil)
	now := time.Now().Unix()

	fresh := core.PriceQuote{Venue: core.VenueRaydium, Price: 100_000_000, Confidence: 1_000_000, PublishTime: now}
	old := fresh
	old.PublishTime = now - 3600
	f.mu.Lock()
	f.history["x"] = []core.PriceQuote{old, fresh}
	f.mu.Unlock()

	quotes, err := f.GetHistory(context.Background(), "x", 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, now, quotes[0].PublishTime)

	_, err = f.GetHistory(context.Background(), "x", time.Nanosecond)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPriceData)

	_, err = f.GetHistory(context.Background(), "unknown", 5*time.Minute)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPriceData)
}

func TestWSFeed_HistoryBufferCapped(t *testing.T) {
	f := NewWSFeed("ws://unused", nil)
	now := time.Now().Unix()

	q := core.PriceQuote{Venue: core.VenueRaydium, Price: 1, Confidence: 1, PublishTime: now}
	f.mu.Lock()
	for i := 0; i < historyLimit; i++ {
		f.history["x"] = append(f.history["x"], q)
	}
	f.mu.Unlock()

	f.handleMessage([]byte(`{"feed_id":"x","venue":"raydium","price":"100","confidence":"1","publish_time":9999999999}`))

	f.mu.RLock()
	defer f.mu.RUnlock()
	assert.Len(t, f.history["x"], historyLimit)
}

func TestWSFeed_StreamsFromServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"feed_id":"live","venue":"serum","price":"42","confidence":"0.1","publish_time":2000}`))
		// Hold the connection open so the client does not cycle into
		// its reconnect backoff mid-test.
		time.Sleep(time.Second)
	}))
	defer server.Close()

	f := NewWSFeed("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	f.reconnectWait = 10 * time.Millisecond
	f.Start()
	defer f.Stop()

	require.Eventually(t, func() bool {
		_, err := f.GetQuote(context.Background(), "live")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	quote, err := f.GetQuote(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, core.VenueSerum, quote.Venue)
	assert.Equal(t, uint64(42_000_000), quote.Price)
}
