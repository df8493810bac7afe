package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Armin-kho/crypto-spread-bot/internal/market"
)

const userAgent = "Mozilla/5.0 (compatible; CryptoSpreadBot/1.0; +https://github.com/Armin-kho/crypto-spread-bot)"

// endpoint is the shared plumbing every adapter embeds: one exchange, one base
// URL, the shared client and a per-request timeout.
type endpoint struct {
	exchange market.Exchange
	baseURL  string
	client   *http.Client
	timeout  time.Duration
	log      zerolog.Logger
	obs      Observer
}

func (e *endpoint) Exchange() market.Exchange { return e.exchange }

func (e *endpoint) getJSON(ctx context.Context, path string, query url.Values, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	u := strings.TrimSuffix(e.baseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", errTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: http %d: %s", errStatus, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", errTransport, err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		snip := string(body)
		if len(snip) > 200 {
			snip = snip[:200]
		}
		return fmt.Errorf("%w: %v (%s)", errPayload, err, snip)
	}
	return nil
}

// finish reduces the result of one request to (quote, ok), logging and counting
// the reason on failure. A logger carried by ctx (the aggregation round's)
// takes precedence over the adapter's own.
func (e *endpoint) finish(ctx context.Context, symbol string, start time.Time, q market.Quote, err error) (market.Quote, bool) {
	took := time.Since(start)
	if e.obs != nil {
		e.obs.ObserveFetch(e.exchange, outcomeOf(err), took)
	}
	if err != nil {
		log := &e.log
		if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
			log = l
		}
		log.Debug().
			Str("exchange", string(e.exchange)).
			Str("symbol", symbol).
			Dur("took", took).
			Err(err).
			Msg("no price")
		return market.Quote{}, false
	}
	return q, true
}

// quoteOf turns a decoded price into a Quote. A nil price means the field was
// missing from the payload.
func quoteOf(symbol string, price *decimal.Decimal) (market.Quote, error) {
	if price == nil {
		return market.Quote{}, fmt.Errorf("%w: missing price", errPayload)
	}
	if !price.IsPositive() {
		return market.Quote{}, fmt.Errorf("%w: %s", errBadPrice, price.String())
	}
	f, _ := price.Float64()
	q := market.Quote{Price: f, Currency: CurrencyOf(symbol)}
	if !q.Valid() {
		return market.Quote{}, fmt.Errorf("%w: %s", errBadPrice, price.String())
	}
	return q, nil
}
