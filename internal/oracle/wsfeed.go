package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trade_engine/internal/core"
	apperrors "trade_engine/pkg/errors"
)

// historyLimit caps the per-feed sample buffer.
const historyLimit = 512

// WSFeed consumes a streaming price feed over WebSocket and serves quotes
// from its in-memory cache. The read loop reconnects on failure; cached
// quotes age out naturally through the validator's staleness check, so a
// dropped connection degrades into StalePrice errors rather than serving
// frozen prices silently.
type WSFeed struct {
	url           string
	reconnectWait time.Duration
	logger        core.ILogger

	mu      sync.RWMutex
	conn    *websocket.Conn
	latest  map[string]core.PriceQuote
	history map[string][]core.PriceQuote

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// wsMessage is one streamed feed update.
type wsMessage struct {
	FeedID string `json:"feed_id"`
	quotePayload
}

// NewWSFeed creates a feed client for url. The logger may be nil.
func NewWSFeed(url string, logger core.ILogger) *WSFeed {
	ctx, cancel := context.WithCancel(context.Background())
	return &WSFeed{
		url:           url,
		reconnectWait: 5 * time.Second,
		logger:        logger,
		latest:        make(map[string]core.PriceQuote),
		history:       make(map[string][]core.PriceQuote),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start connects and begins consuming updates.
func (f *WSFeed) Start() {
	f.wg.Add(1)
	go f.runLoop()
}

// Stop closes the connection and stops the loop. The connection is closed
// before waiting so a blocked read unblocks immediately.
func (f *WSFeed) Stop() {
	f.cancel()
	f.closeConn()
	f.wg.Wait()
}

func (f *WSFeed) runLoop() {
	defer f.wg.Done()

	for {
		select {
		case <-f.ctx.Done():
			return
		default:
			if err := f.connect(); err != nil {
				if f.logger != nil {
					f.logger.Error("price feed connection failed", "error", err, "url", f.url)
				}
				if !f.waitReconnect() {
					return
				}
				continue
			}

			f.readLoop()

			// Connection lost; back off before redialing.
			if !f.waitReconnect() {
				return
			}
		}
	}
}

// waitReconnect sleeps the backoff period, returning false when the feed
// is stopping.
func (f *WSFeed) waitReconnect() bool {
	select {
	case <-f.ctx.Done():
		return false
	case <-time.After(f.reconnectWait):
		return true
	}
}

func (f *WSFeed) connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	if err != nil {
		return err
	}
	f.conn = conn
	return nil
}

func (f *WSFeed) closeConn() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
}

func (f *WSFeed) readLoop() {
	defer f.closeConn()

	for {
		select {
		case <-f.ctx.Done():
			return
		default:
			f.mu.RLock()
			conn := f.conn
			f.mu.RUnlock()
			if conn == nil {
				return
			}

			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			f.handleMessage(message)
		}
	}
}

func (f *WSFeed) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		if f.logger != nil {
			f.logger.Warn("discarding malformed feed update", "error", err)
		}
		return
	}
	quote, err := msg.toQuote()
	if err != nil {
		if f.logger != nil {
			f.logger.Warn("discarding invalid feed update", "feed", msg.FeedID, "error", err)
		}
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest[msg.FeedID] = quote
	buf := append(f.history[msg.FeedID], quote)
	if len(buf) > historyLimit {
		buf = buf[len(buf)-historyLimit:]
	}
	f.history[msg.FeedID] = buf
}

// GetQuote returns the most recent cached quote for a feed.
func (f *WSFeed) GetQuote(ctx context.Context, feedID string) (core.PriceQuote, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	quote, ok := f.latest[feedID]
	if !ok {
		return core.PriceQuote{}, fmt.Errorf("%w: no update received for %s", apperrors.ErrPriceUnavailable, feedID)
	}
	return quote, nil
}

// GetHistory returns cached samples published within the trailing window.
func (f *WSFeed) GetHistory(ctx context.Context, feedID string, window time.Duration) ([]core.PriceQuote, error) {
	cutoff := time.Now().Add(-window).Unix()

	f.mu.RLock()
	defer f.mu.RUnlock()
	buf := f.history[feedID]
	quotes := make([]core.PriceQuote, 0, len(buf))
	for _, q := range buf {
		if q.PublishTime >= cutoff {
			quotes = append(quotes, q)
		}
	}
	if len(quotes) == 0 {
		return nil, apperrors.ErrInsufficientPriceData
	}
	return quotes, nil
}
