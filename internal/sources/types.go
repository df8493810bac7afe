package sources

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Armin-kho/crypto-spread-bot/internal/market"
)

// Adapter fetches one ticker price from one exchange.
//
// Fetch never returns an error: network failures, timeouts, non-2xx replies,
// malformed payloads and non-positive prices all come back as ok == false.
type Adapter interface {
	Exchange() market.Exchange
	Fetch(ctx context.Context, symbol string) (market.Quote, bool)
}

// Observer receives per-request outcomes. metrics.Recorder implements it.
type Observer interface {
	ObserveFetch(ex market.Exchange, outcome string, took time.Duration)
	ObserveRateFallback()
}

const (
	OutcomeOK         = "ok"
	OutcomeTransport  = "transport"
	OutcomeStatus     = "status"
	OutcomePayload    = "payload"
	OutcomeBadPrice   = "bad_price"
	OutcomeUnexpected = "unexpected"
)

var (
	errTransport = errors.New("transport")
	errStatus    = errors.New("unexpected status")
	errPayload   = errors.New("malformed payload")
	errBadPrice  = errors.New("price is not positive")
)

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, errTransport):
		return OutcomeTransport
	case errors.Is(err, errStatus):
		return OutcomeStatus
	case errors.Is(err, errPayload):
		return OutcomePayload
	case errors.Is(err, errBadPrice):
		return OutcomeBadPrice
	}
	return OutcomeUnexpected
}

// CurrencyOf infers the quote currency from the instrument id: USDT when it
// ends in "USDT" (any case), USD otherwise.
func CurrencyOf(symbol string) market.QuoteCurrency {
	if strings.HasSuffix(strings.ToUpper(symbol), "USDT") {
		return market.USDT
	}
	return market.USD
}
