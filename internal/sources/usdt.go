package sources

import (
	"context"

	"github.com/Armin-kho/crypto-spread-bot/internal/market"
)

// RateSymbol is the reference pair quoted on Coinbase.
const RateSymbol = "USDT-USD"

// RateSource reads the USDT/USD reference rate from Coinbase.
type RateSource struct {
	coinbase Adapter
	obs      Observer
}

func NewRateSource(opts Options) *RateSource {
	opts = opts.withDefaults()
	return &RateSource{coinbase: &Coinbase{opts.endpoint(market.Coinbase)}, obs: opts.Observer}
}

// USDTRate returns the USDT price in USD, or 1.0 when it cannot be obtained.
func (r *RateSource) USDTRate(ctx context.Context) float64 {
	q, ok := r.coinbase.Fetch(ctx, RateSymbol)
	if !ok {
		if r.obs != nil {
			r.obs.ObserveRateFallback()
		}
		return 1.0
	}
	return q.Price
}

// Normalize converts a quote to USD using the USDT/USD rate.
func Normalize(q market.Quote, usdtRate float64) float64 {
	if q.Currency == market.USDT {
		return q.Price * usdtRate
	}
	return q.Price
}
