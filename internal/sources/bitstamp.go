package sources

import (
	"context"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Armin-kho/crypto-spread-bot/internal/market"
)

// Bitstamp reads /api/v2/ticker/{pair}; pairs are lowercase, e.g. "btcusd".
type Bitstamp struct{ endpoint }

func (a *Bitstamp) Fetch(ctx context.Context, symbol string) (market.Quote, bool) {
	start := time.Now()
	var body struct {
		Last *decimal.Decimal `json:"last"`
	}
	if err := a.getJSON(ctx, "/api/v2/ticker/"+url.PathEscape(symbol), nil, &body); err != nil {
		return a.finish(ctx, symbol, start, market.Quote{}, err)
	}
	q, err := quoteOf(symbol, body.Last)
	return a.finish(ctx, symbol, start, q, err)
}
