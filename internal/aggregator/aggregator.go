package aggregator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Armin-kho/crypto-spread-bot/internal/market"
	"github.com/Armin-kho/crypto-spread-bot/internal/sources"
	"github.com/Armin-kho/crypto-spread-bot/internal/symbols"
)

// RateFetcher supplies the USDT/USD reference rate. It must not fail; 1.0 is
// the expected answer when the reference venue is unreachable.
type RateFetcher interface {
	USDTRate(ctx context.Context) float64
}

// RoundObserver is told how long each aggregation round took.
type RoundObserver interface {
	ObserveRound(took time.Duration, tokens int)
}

// Aggregator fans out ticker requests for a token to every exchange that lists
// it, tolerating any subset of failures, and returns USD prices by exchange.
type Aggregator struct {
	registry *symbols.Registry
	adapters sources.Set
	rates    RateFetcher
	cache    Cache
	obs      RoundObserver
	log      zerolog.Logger
}

type Option func(*Aggregator)

func WithCache(c Cache) Option {
	return func(a *Aggregator) { a.cache = c }
}

func WithObserver(o RoundObserver) Option {
	return func(a *Aggregator) { a.obs = o }
}

func WithLogger(l zerolog.Logger) Option {
	return func(a *Aggregator) { a.log = l.With().Str("component", "aggregator").Logger() }
}

func New(registry *symbols.Registry, adapters sources.Set, rates RateFetcher, opts ...Option) *Aggregator {
	a := &Aggregator{
		registry: registry,
		adapters: adapters,
		rates:    rates,
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Aggregator) Registry() *symbols.Registry { return a.registry }

// FetchToken returns the USD price map for one token. The map is empty when no
// requested exchange lists the token or every request failed.
func (a *Aggregator) FetchToken(ctx context.Context, token market.Token, exchanges []market.Exchange) market.PriceMap {
	token = market.NormalizeToken(string(token))
	return a.FetchPrices(ctx, []market.Token{token}, exchanges)[token]
}

// FetchPrices returns a price map per token. Tokens run concurrently and share
// one USDT/USD rate fetched once for the whole call.
func (a *Aggregator) FetchPrices(ctx context.Context, tokens []market.Token, exchanges []market.Exchange) map[market.Token]market.PriceMap {
	start := time.Now()
	// Adapter failures and panics below log through the round's logger.
	log := a.log.With().Str("round", uuid.NewString()).Logger()
	ctx = log.WithContext(ctx)
	tokens = market.TokensOf(market.TokenStrings(tokens))
	exchanges = a.adapters.Supported(market.ExchangesOf(market.ExchangeStrings(exchanges)))

	out := make(map[market.Token]market.PriceMap, len(tokens))
	type job struct {
		token       market.Token
		instruments []symbols.Instrument
		key         string
	}
	var jobs []job
	for _, tok := range tokens {
		instruments := a.registry.Listed(tok, exchanges)
		if len(instruments) == 0 {
			out[tok] = market.PriceMap{}
			continue
		}
		key := cacheKey(tok, instruments)
		if a.cache != nil {
			if pm, ok := a.cache.Get(ctx, key); ok {
				out[tok] = pm
				continue
			}
		}
		jobs = append(jobs, job{token: tok, instruments: instruments, key: key})
	}

	if len(jobs) > 0 {
		rate := a.startRate(ctx)
		results := make([]market.PriceMap, len(jobs))
		var g errgroup.Group
		for i, j := range jobs {
			g.Go(func() error {
				results[i] = a.gather(ctx, j.token, j.instruments, rate)
				return nil
			})
		}
		_ = g.Wait()

		for i, j := range jobs {
			out[j.token] = results[i]
			// an all-failed round is not cached so the next caller retries
			if a.cache != nil && len(results[i]) > 0 {
				a.cache.Set(ctx, j.key, results[i])
			}
		}
	}

	took := time.Since(start)
	if a.obs != nil {
		a.obs.ObserveRound(took, len(tokens))
	}
	log.Debug().
		Int("tokens", len(tokens)).
		Int("fetched", len(jobs)).
		Dur("took", took).
		Msg("round complete")
	return out
}

type fetchResult struct {
	quote market.Quote
	ok    bool
}

// gather calls every adapter for one token at once and waits for all of them.
// Tasks never return an error, so no failure cancels a sibling.
func (a *Aggregator) gather(ctx context.Context, token market.Token, instruments []symbols.Instrument, rate *pendingRate) market.PriceMap {
	results := make([]fetchResult, len(instruments))
	var g errgroup.Group
	for i, in := range instruments {
		adapter := a.adapters[in.Exchange]
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					zerolog.Ctx(ctx).Error().
						Str("token", string(token)).
						Str("exchange", string(in.Exchange)).
						Str("panic", fmt.Sprint(r)).
						Msg("adapter panicked")
					results[i] = fetchResult{}
				}
			}()
			q, ok := adapter.Fetch(ctx, in.Symbol)
			results[i] = fetchResult{quote: q, ok: ok}
			return nil
		})
	}
	_ = g.Wait()
	usdt := rate.wait()

	pm := make(market.PriceMap, len(instruments))
	for i, in := range instruments {
		r := results[i]
		if !r.ok || !r.quote.Valid() {
			continue
		}
		usd := sources.Normalize(r.quote, usdt)
		if usd <= 0 || math.IsInf(usd, 0) || math.IsNaN(usd) {
			continue
		}
		pm[in.Exchange] = usd
	}
	return pm
}

type pendingRate struct {
	done  chan struct{}
	value float64
}

func (a *Aggregator) startRate(ctx context.Context) *pendingRate {
	p := &pendingRate{done: make(chan struct{}), value: 1.0}
	go func() {
		defer close(p.done)
		defer func() {
			if r := recover(); r != nil {
				zerolog.Ctx(ctx).Error().Str("panic", fmt.Sprint(r)).Msg("usdt rate panicked")
			}
		}()
		if v := a.rates.USDTRate(ctx); v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v) {
			p.value = v
		}
	}()
	return p
}

func (p *pendingRate) wait() float64 {
	<-p.done
	return p.value
}

func cacheKey(token market.Token, instruments []symbols.Instrument) string {
	ex := make([]string, len(instruments))
	for i, in := range instruments {
		ex[i] = string(in.Exchange)
	}
	sort.Strings(ex)
	return "prices:" + string(token) + ":" + strings.Join(ex, ",")
}
