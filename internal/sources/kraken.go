package sources

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Armin-kho/crypto-spread-bot/internal/market"
)

// Kraken reads /0/public/Ticker. The result object is keyed by Kraken's own
// pair name (XBTUSD comes back as XXBTZUSD), so the key is not predictable;
// "c" is [last trade price, lot volume].
type Kraken struct{ endpoint }

type krakenTicker struct {
	Error  []string `json:"error"`
	Result map[string]struct {
		C []decimal.Decimal `json:"c"`
	} `json:"result"`
}

func (a *Kraken) Fetch(ctx context.Context, symbol string) (market.Quote, bool) {
	start := time.Now()
	var body krakenTicker
	if err := a.getJSON(ctx, "/0/public/Ticker", url.Values{"pair": {symbol}}, &body); err != nil {
		return a.finish(ctx, symbol, start, market.Quote{}, err)
	}
	q, err := body.quote(symbol)
	return a.finish(ctx, symbol, start, q, err)
}

func (t krakenTicker) quote(symbol string) (market.Quote, error) {
	if len(t.Error) > 0 {
		return market.Quote{}, fmt.Errorf("%w: %s", errPayload, strings.Join(t.Error, "; "))
	}
	if len(t.Result) == 0 {
		return market.Quote{}, fmt.Errorf("%w: empty result", errPayload)
	}
	keys := make([]string, 0, len(t.Result))
	for k := range t.Result {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	last := t.Result[keys[0]].C
	if len(last) == 0 {
		return market.Quote{}, fmt.Errorf("%w: no last trade", errPayload)
	}
	return quoteOf(symbol, &last[0])
}
