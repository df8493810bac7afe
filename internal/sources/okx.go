package sources

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Armin-kho/crypto-spread-bot/internal/market"
)

// OKX reads /api/v5/market/ticker; "data" is a one-element list.
type OKX struct{ endpoint }

func (a *OKX) Fetch(ctx context.Context, symbol string) (market.Quote, bool) {
	start := time.Now()
	var body struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			Last *decimal.Decimal `json:"last"`
		} `json:"data"`
	}
	if err := a.getJSON(ctx, "/api/v5/market/ticker", url.Values{"instId": {symbol}}, &body); err != nil {
		return a.finish(ctx, symbol, start, market.Quote{}, err)
	}
	if len(body.Data) == 0 {
		return a.finish(ctx, symbol, start, market.Quote{}, fmt.Errorf("%w: no data (code %s %s)", errPayload, body.Code, body.Msg))
	}
	q, err := quoteOf(symbol, body.Data[0].Last)
	return a.finish(ctx, symbol, start, q, err)
}
