package sources

import (
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Armin-kho/crypto-spread-bot/internal/market"
)

const DefaultTimeout = 8 * time.Second

// DefaultBaseURLs are the public REST roots of each supported exchange.
var DefaultBaseURLs = map[market.Exchange]string{
	market.Binance:  "https://api.binance.com",
	market.Coinbase: "https://api.exchange.coinbase.com",
	market.Kraken:   "https://api.kraken.com",
	market.KuCoin:   "https://api.kucoin.com",
	market.Bybit:    "https://api.bybit.com",
	market.OKX:      "https://www.okx.com",
	market.Bitstamp: "https://www.bitstamp.net",
}

// Order is the display and default order of supported exchanges.
var Order = []market.Exchange{
	market.Binance, market.Coinbase, market.Kraken, market.KuCoin,
	market.Bybit, market.OKX, market.Bitstamp,
}

var constructors = map[market.Exchange]func(endpoint) Adapter{
	market.Binance:  func(e endpoint) Adapter { return &Binance{e} },
	market.Coinbase: func(e endpoint) Adapter { return &Coinbase{e} },
	market.Kraken:   func(e endpoint) Adapter { return &Kraken{e} },
	market.KuCoin:   func(e endpoint) Adapter { return &KuCoin{e} },
	market.Bybit:    func(e endpoint) Adapter { return &Bybit{e} },
	market.OKX:      func(e endpoint) Adapter { return &OKX{e} },
	market.Bitstamp: func(e endpoint) Adapter { return &Bitstamp{e} },
}

type Options struct {
	// Client is shared by every adapter. Nil means NewClient().
	Client *http.Client
	// Timeout bounds each request on its own. Zero means DefaultTimeout.
	Timeout time.Duration
	// Endpoints overrides base URLs by exchange id.
	Endpoints map[string]string
	Logger    zerolog.Logger
	Observer  Observer
}

// NewClient returns the pooled client used for all exchange calls. It has no
// overall timeout; each request carries its own deadline from Options.Timeout.
func NewClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        50,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
		},
	}
}

func (o Options) endpoint(ex market.Exchange) endpoint {
	base := DefaultBaseURLs[ex]
	if v, ok := o.Endpoints[string(ex)]; ok && v != "" {
		base = v
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return endpoint{
		exchange: ex,
		baseURL:  base,
		client:   o.Client,
		timeout:  timeout,
		log:      o.Logger.With().Str("component", "sources").Logger(),
		obs:      o.Observer,
	}
}

func (o Options) withDefaults() Options {
	if o.Client == nil {
		o.Client = NewClient()
	}
	return o
}

// Set maps an exchange id to its adapter.
type Set map[market.Exchange]Adapter

// NewSet builds one adapter per supported exchange, all sharing one client.
func NewSet(opts Options) Set {
	opts = opts.withDefaults()
	s := make(Set, len(constructors))
	for ex, mk := range constructors {
		s[ex] = mk(opts.endpoint(ex))
	}
	return s
}

func (s Set) Get(ex market.Exchange) (Adapter, bool) {
	a, ok := s[market.NormalizeExchange(string(ex))]
	return a, ok
}

// Supported keeps the exchanges that have an adapter, in the given order.
func (s Set) Supported(exchanges []market.Exchange) []market.Exchange {
	out := make([]market.Exchange, 0, len(exchanges))
	for _, ex := range exchanges {
		if _, ok := s.Get(ex); ok {
			out = append(out, market.NormalizeExchange(string(ex)))
		}
	}
	return out
}

// Supported reports whether ex is one of the built-in exchanges.
func Supported(ex market.Exchange) bool {
	_, ok := constructors[market.NormalizeExchange(string(ex))]
	return ok
}
