package sources

import (
	"context"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Armin-kho/crypto-spread-bot/internal/market"
)

// Binance reads /api/v3/ticker/price, a flat {"symbol":..,"price":".."} object.
type Binance struct{ endpoint }

func (a *Binance) Fetch(ctx context.Context, symbol string) (market.Quote, bool) {
	start := time.Now()
	var body struct {
		Price *decimal.Decimal `json:"price"`
	}
	if err := a.getJSON(ctx, "/api/v3/ticker/price", url.Values{"symbol": {symbol}}, &body); err != nil {
		return a.finish(ctx, symbol, start, market.Quote{}, err)
	}
	q, err := quoteOf(symbol, body.Price)
	return a.finish(ctx, symbol, start, q, err)
}
