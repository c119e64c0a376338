package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"trade_engine/internal/core"
	apphttp "trade_engine/pkg/http"
)

// quotePayload is the wire shape of one feed quote. Price and confidence
// arrive as decimal strings and are converted to fixed-point on receipt.
type quotePayload struct {
	Venue       string `json:"venue"`
	Price       string `json:"price"`
	Confidence  string `json:"confidence"`
	PublishTime int64  `json:"publish_time"`
}

func (p quotePayload) toQuote() (core.PriceQuote, error) {
	venue, err := core.ParseVenueKind(p.Venue)
	if err != nil {
		return core.PriceQuote{}, err
	}
	price, err := parseFixed(p.Price)
	if err != nil {
		return core.PriceQuote{}, fmt.Errorf("price: %w", err)
	}
	confidence, err := parseFixed(p.Confidence)
	if err != nil {
		return core.PriceQuote{}, fmt.Errorf("confidence: %w", err)
	}
	return core.PriceQuote{
		Venue:       venue,
		Price:       price,
		Confidence:  confidence,
		PublishTime: p.PublishTime,
	}, nil
}

// parseFixed converts a non-negative decimal string to 6-decimal
// fixed-point, truncating nothing: excess precision is an error.
func parseFixed(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative value %s", s)
	}
	scaled := d.Shift(6)
	if !scaled.IsInteger() || !scaled.BigInt().IsUint64() {
		return 0, fmt.Errorf("value %s out of fixed-point range", s)
	}
	return scaled.BigInt().Uint64(), nil
}

// RESTOracle polls a price feed REST API. Retries and circuit breaking
// live in the shared HTTP client; a quote that cannot be fetched after
// the pipeline gives up surfaces as an error for this poll only.
type RESTOracle struct {
	client *apphttp.Client
	logger core.ILogger
}

// NewRESTOracle creates an oracle against baseURL. The logger may be nil.
func NewRESTOracle(baseURL string, timeout time.Duration, logger core.ILogger) *RESTOracle {
	return &RESTOracle{
		client: apphttp.NewClient(baseURL, timeout),
		logger: logger,
	}
}

// GetQuote fetches the latest quote for a feed.
func (o *RESTOracle) GetQuote(ctx context.Context, feedID string) (core.PriceQuote, error) {
	body, err := o.client.Get(ctx, "/v1/price/"+feedID, nil)
	if err != nil {
		return core.PriceQuote{}, fmt.Errorf("fetch quote for %s: %w", feedID, err)
	}
	var payload quotePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return core.PriceQuote{}, fmt.Errorf("decode quote for %s: %w", feedID, err)
	}
	return payload.toQuote()
}

// GetHistory fetches the trailing quote history for a feed.
func (o *RESTOracle) GetHistory(ctx context.Context, feedID string, window time.Duration) ([]core.PriceQuote, error) {
	params := map[string]string{
		"window_s": fmt.Sprintf("%d", int64(window/time.Second)),
	}
	body, err := o.client.Get(ctx, "/v1/price/"+feedID+"/history", params)
	if err != nil {
		return nil, fmt.Errorf("fetch history for %s: %w", feedID, err)
	}
	var payloads []quotePayload
	if err := json.Unmarshal(body, &payloads); err != nil {
		return nil, fmt.Errorf("decode history for %s: %w", feedID, err)
	}
	quotes := make([]core.PriceQuote, 0, len(payloads))
	for _, p := range payloads {
		q, err := p.toQuote()
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}
