package symbols

import (
	"github.com/Armin-kho/crypto-spread-bot/internal/market"
)

// Listing is one token's native instrument ids per exchange. An exchange missing
// from Venues does not list the token.
type Listing struct {
	Token  market.Token
	Venues map[market.Exchange]string
}

var All = []Listing{
	{Token: "BTC", Venues: map[market.Exchange]string{
		market.Binance:  "BTCUSDT",
		market.Coinbase: "BTC-USD",
		market.Kraken:   "XBTUSD",
		market.KuCoin:   "BTC-USDT",
		market.Bybit:    "BTCUSDT",
		market.OKX:      "BTC-USDT",
		market.Bitstamp: "btcusd",
	}},
	{Token: "ETH", Venues: map[market.Exchange]string{
		market.Binance:  "ETHUSDT",
		market.Coinbase: "ETH-USD",
		market.Kraken:   "ETHUSD",
		market.KuCoin:   "ETH-USDT",
		market.Bybit:    "ETHUSDT",
		market.OKX:      "ETH-USDT",
		market.Bitstamp: "ethusd",
	}},
	{Token: "SOL", Venues: map[market.Exchange]string{
		market.Binance:  "SOLUSDT",
		market.Coinbase: "SOL-USD",
		market.Kraken:   "SOLUSD",
		market.KuCoin:   "SOL-USDT",
		market.Bybit:    "SOLUSDT",
		market.OKX:      "SOL-USDT",
		market.Bitstamp: "solusd",
	}},
	// Not on coinbase, kraken or bitstamp.
	{Token: "BNB", Venues: map[market.Exchange]string{
		market.Binance: "BNBUSDT",
		market.KuCoin:  "BNB-USDT",
		market.Bybit:   "BNBUSDT",
		market.OKX:     "BNB-USDT",
	}},
}

// Registry resolves (token, exchange) to the exchange's instrument id.
// It is never mutated after construction and is safe for concurrent reads.
type Registry struct {
	byToken map[market.Token]map[market.Exchange]string
}

func New(listings []Listing) *Registry {
	r := &Registry{byToken: map[market.Token]map[market.Exchange]string{}}
	for _, l := range listings {
		r.add(l.Token, l.Venues)
	}
	return r
}

// Default returns the built-in table.
func Default() *Registry {
	return New(All)
}

func (r *Registry) add(token market.Token, venues map[market.Exchange]string) {
	token = market.NormalizeToken(string(token))
	if token == "" {
		return
	}
	m, ok := r.byToken[token]
	if !ok {
		m = map[market.Exchange]string{}
		r.byToken[token] = m
	}
	for ex, sym := range venues {
		ex = market.NormalizeExchange(string(ex))
		if ex == "" || sym == "" {
			continue
		}
		m[ex] = sym
	}
}

// Extend returns a copy of r with extra listings layered on top, token -> exchange -> symbol.
func (r *Registry) Extend(overrides map[string]map[string]string) *Registry {
	out := &Registry{byToken: make(map[market.Token]map[market.Exchange]string, len(r.byToken))}
	for tok, venues := range r.byToken {
		out.add(tok, venues)
	}
	for tok, venues := range overrides {
		m := make(map[market.Exchange]string, len(venues))
		for ex, sym := range venues {
			m[market.Exchange(ex)] = sym
		}
		out.add(market.Token(tok), m)
	}
	return out
}

// Lookup returns the instrument id and true, or false when the token is not
// listed on that exchange.
func (r *Registry) Lookup(token market.Token, ex market.Exchange) (string, bool) {
	venues, ok := r.byToken[market.NormalizeToken(string(token))]
	if !ok {
		return "", false
	}
	sym, ok := venues[market.NormalizeExchange(string(ex))]
	return sym, ok
}

// Has reports whether any exchange lists token.
func (r *Registry) Has(token market.Token) bool {
	return len(r.byToken[market.NormalizeToken(string(token))]) > 0
}

// Instrument is a resolved (exchange, instrument id) pair.
type Instrument struct {
	Exchange market.Exchange
	Symbol   string
}

// Listed keeps the exchanges that list token, in the given order. Exchanges
// that do not list it are dropped here so they never reach the network.
func (r *Registry) Listed(token market.Token, exchanges []market.Exchange) []Instrument {
	out := make([]Instrument, 0, len(exchanges))
	for _, ex := range exchanges {
		if sym, ok := r.Lookup(token, ex); ok {
			out = append(out, Instrument{Exchange: market.NormalizeExchange(string(ex)), Symbol: sym})
		}
	}
	return out
}
