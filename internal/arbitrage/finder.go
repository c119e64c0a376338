// Package arbitrage discovers and executes cross-venue cyclic trading
// routes. A route buys the base token on the venue quoting the lower
// price and sells it on the venue quoting the higher one; the spread,
// expressed in basis points of the entry price, is the expected profit
// before slippage and fees.
package arbitrage

import (
	"time"

	"github.com/google/uuid"

	"trade_engine/internal/amm"
	"trade_engine/internal/core"
	apperrors "trade_engine/pkg/errors"
)

const (
	// DefaultMaxSlippageBps caps per-leg slippage on discovered routes.
	DefaultMaxSlippageBps uint16 = 100

	// DefaultDeadlineWindow is how long a discovered route stays executable.
	DefaultDeadlineWindow = 60 * time.Second
)

// routeTable enumerates the legs of the three-venue cycle in a fixed
// order so repeated scans over the same quotes produce the same route
// ordering.
var routeTable = []core.RouteKind{
	core.RouteRaydiumJupiter,
	core.RouteJupiterSerum,
	core.RouteSerumRaydium,
}

// Finder turns validated per-venue quotes into executable routes.
type Finder struct {
	logger core.ILogger
}

// NewFinder creates a Finder. The logger may be nil.
func NewFinder(logger core.ILogger) *Finder {
	return &Finder{logger: logger}
}

// FindRoutes evaluates every leg of the cycle against the supplied
// quotes and returns the legs whose spread meets minProfitBps. Legs
// for which either venue is missing a quote are skipped rather than
// failing the scan; a venue with no fresh price simply contributes no
// opportunities this tick.
func (f *Finder) FindRoutes(
	quotes map[core.VenueKind]core.ValidatedPrice,
	now time.Time,
	pair core.TokenPair,
	minProfitBps uint64,
) ([]core.ArbitrageRoute, error) {
	routes := make([]core.ArbitrageRoute, 0, len(routeTable))

	for _, kind := range routeTable {
		entry, ok := quotes[kind.EntryVenue()]
		if !ok {
			continue
		}
		exit, ok := quotes[kind.ExitVenue()]
		if !ok {
			continue
		}
		if exit.Price <= entry.Price {
			continue
		}
		if entry.Price == 0 {
			return nil, apperrors.ErrPriceUnavailable
		}

		diff := exit.Price - entry.Price
		profit, err := amm.MulDiv(diff, core.BpsDenominator, entry.Price)
		if err != nil {
			return nil, err
		}
		if profit < minProfitBps {
			continue
		}

		route := core.ArbitrageRoute{
			ID:                uuid.NewString(),
			Kind:              kind,
			Pair:              pair,
			EntryVenue:        kind.EntryVenue(),
			ExitVenue:         kind.ExitVenue(),
			ExpectedProfitBps: profit,
			MinProfitBps:      minProfitBps,
			MaxSlippageBps:    DefaultMaxSlippageBps,
			Deadline:          now.Add(DefaultDeadlineWindow).Unix(),
		}
		routes = append(routes, route)

		if f.logger != nil {
			f.logger.WithFields(map[string]interface{}{
				"route":      kind.String(),
				"pair":       pair.String(),
				"profit_bps": profit,
			}).Debug("arbitrage route found")
		}
	}

	return routes, nil
}

// FilterProfitable drops routes whose expected profit has fallen below
// their own minimum. Applying it to the output of FindRoutes with the
// same threshold is a no-op; it exists so callers can re-check routes
// that were discovered earlier and held.
func FilterProfitable(routes []core.ArbitrageRoute) []core.ArbitrageRoute {
	kept := make([]core.ArbitrageRoute, 0, len(routes))
	for _, r := range routes {
		if r.ExpectedProfitBps >= r.MinProfitBps {
			kept = append(kept, r)
		}
	}
	return kept
}
