package sources

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Armin-kho/crypto-spread-bot/internal/market"
)

// KuCoin reads /api/v1/market/orderbook/level1, price nested under "data".
type KuCoin struct{ endpoint }

func (a *KuCoin) Fetch(ctx context.Context, symbol string) (market.Quote, bool) {
	start := time.Now()
	var body struct {
		Code string `json:"code"`
		Data *struct {
			Price *decimal.Decimal `json:"price"`
		} `json:"data"`
	}
	if err := a.getJSON(ctx, "/api/v1/market/orderbook/level1", url.Values{"symbol": {symbol}}, &body); err != nil {
		return a.finish(ctx, symbol, start, market.Quote{}, err)
	}
	if body.Data == nil {
		return a.finish(ctx, symbol, start, market.Quote{}, fmt.Errorf("%w: no data (code %s)", errPayload, body.Code))
	}
	q, err := quoteOf(symbol, body.Data.Price)
	return a.finish(ctx, symbol, start, q, err)
}
