package sources

import (
	"context"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Armin-kho/crypto-spread-bot/internal/market"
)

// Coinbase reads /products/{pair}/ticker. The pair is a path segment.
type Coinbase struct{ endpoint }

func (a *Coinbase) Fetch(ctx context.Context, symbol string) (market.Quote, bool) {
	start := time.Now()
	var body struct {
		Price *decimal.Decimal `json:"price"`
	}
	if err := a.getJSON(ctx, "/products/"+url.PathEscape(symbol)+"/ticker", nil, &body); err != nil {
		return a.finish(ctx, symbol, start, market.Quote{}, err)
	}
	q, err := quoteOf(symbol, body.Price)
	return a.finish(ctx, symbol, start, q, err)
}
