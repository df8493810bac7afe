package sources

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Armin-kho/crypto-spread-bot/internal/market"
)

// Bybit reads the v5 spot tickers, a list under result.list.
type Bybit struct{ endpoint }

func (a *Bybit) Fetch(ctx context.Context, symbol string) (market.Quote, bool) {
	start := time.Now()
	var body struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List []struct {
				LastPrice *decimal.Decimal `json:"lastPrice"`
			} `json:"list"`
		} `json:"result"`
	}
	q := url.Values{"category": {"spot"}, "symbol": {symbol}}
	if err := a.getJSON(ctx, "/v5/market/tickers", q, &body); err != nil {
		return a.finish(ctx, symbol, start, market.Quote{}, err)
	}
	if body.RetCode != 0 || len(body.Result.List) == 0 {
		return a.finish(ctx, symbol, start, market.Quote{}, fmt.Errorf("%w: retCode %d %s", errPayload, body.RetCode, body.RetMsg))
	}
	quote, err := quoteOf(symbol, body.Result.List[0].LastPrice)
	return a.finish(ctx, symbol, start, quote, err)
}
