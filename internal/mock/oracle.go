// Package mock provides deterministic in-memory fakes for tests and local
// runs.
package mock

import (
	"context"
	"sync"
	"time"

	"trade_engine/internal/core"
	apperrors "trade_engine/pkg/errors"
)

// Oracle serves scripted quotes. Feeds without a scripted quote fail
// ErrPriceUnavailable; a scripted error takes precedence over a quote.
type Oracle struct {
	mu      sync.RWMutex
	quotes  map[string]core.PriceQuote
	history map[string][]core.PriceQuote
	errs    map[string]error
}

// NewOracle creates an empty mock oracle.
func NewOracle() *Oracle {
	return &Oracle{
		quotes:  make(map[string]core.PriceQuote),
		history: make(map[string][]core.PriceQuote),
		errs:    make(map[string]error),
	}
}

// SetQuote scripts the quote a feed returns.
func (o *Oracle) SetQuote(feedID string, quote core.PriceQuote) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.quotes[feedID] = quote
	delete(o.errs, feedID)
}

// SetHistory scripts the history a feed returns.
func (o *Oracle) SetHistory(feedID string, quotes []core.PriceQuote) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history[feedID] = quotes
}

// FailWith scripts an error for a feed.
func (o *Oracle) FailWith(feedID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs[feedID] = err
}

func (o *Oracle) GetQuote(ctx context.Context, feedID string) (core.PriceQuote, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if err, ok := o.errs[feedID]; ok {
		return core.PriceQuote{}, err
	}
	quote, ok := o.quotes[feedID]
	if !ok {
		return core.PriceQuote{}, apperrors.ErrPriceUnavailable
	}
	return quote, nil
}

func (o *Oracle) GetHistory(ctx context.Context, feedID string, window time.Duration) ([]core.PriceQuote, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if err, ok := o.errs[feedID]; ok {
		return nil, err
	}
	return o.history[feedID], nil
}
