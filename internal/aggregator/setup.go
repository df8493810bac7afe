package aggregator

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Armin-kho/crypto-spread-bot/internal/config"
	"github.com/Armin-kho/crypto-spread-bot/internal/sources"
	"github.com/Armin-kho/crypto-spread-bot/internal/symbols"
)

// Observer receives request and round measurements. *metrics.Recorder
// implements it; nil disables them.
type Observer interface {
	sources.Observer
	RoundObserver
}

// FromConfig wires adapters, the USDT rate source, the symbol registry and the
// price cache from cfg. The returned func releases the cache connection.
func FromConfig(ctx context.Context, cfg config.Config, log zerolog.Logger, obs Observer) (*Aggregator, func()) {
	opts := sources.Options{
		Client:    sources.NewClient(),
		Timeout:   cfg.RequestTimeout,
		Endpoints: cfg.Endpoints,
		Logger:    log,
	}
	if obs != nil {
		opts.Observer = obs
	}
	registry := symbols.Default().Extend(cfg.Symbols)

	aggOpts := []Option{WithLogger(log)}
	if obs != nil {
		aggOpts = append(aggOpts, WithObserver(obs))
	}
	closeFn := func() {}
	switch {
	case cfg.CacheTTL <= 0:
	case cfg.RedisAddr != "":
		rc, err := NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL, log)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, using in-memory price cache")
			aggOpts = append(aggOpts, WithCache(NewMemoryCache(cfg.CacheTTL)))
			break
		}
		aggOpts = append(aggOpts, WithCache(rc))
		closeFn = func() { _ = rc.Close() }
	default:
		aggOpts = append(aggOpts, WithCache(NewMemoryCache(cfg.CacheTTL)))
	}

	agg := New(registry, sources.NewSet(opts), sources.NewRateSource(opts), aggOpts...)
	return agg, closeFn
}
