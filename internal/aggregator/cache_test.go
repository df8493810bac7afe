package aggregator

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Armin-kho/crypto-spread-bot/internal/market"
)

func TestMemoryCache_Expires(t *testing.T) {
	c := NewMemoryCache(10 * time.Second)
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "k", market.PriceMap{market.Binance: 1})
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Fatal("want hit")
	}

	now = now.Add(9 * time.Second)
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Fatal("want hit before ttl")
	}

	now = now.Add(time.Second)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("want miss at ttl")
	}
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()
	in := market.PriceMap{market.Binance: 1}
	c.Set(ctx, "k", in)
	in[market.Binance] = 2

	got, _ := c.Get(ctx, "k")
	got[market.OKX] = 3

	again, _ := c.Get(ctx, "k")
	if again[market.Binance] != 1 || len(again) != 1 {
		t.Errorf("cache entry was mutated: %v", again)
	}
}

// Needs a reachable server, e.g. CSB_TEST_REDIS=localhost:6379.
func TestRedisCache_RoundTrip(t *testing.T) {
	addr := os.Getenv("CSB_TEST_REDIS")
	if addr == "" {
		t.Skip("CSB_TEST_REDIS not set")
	}
	ctx := context.Background()
	c, err := NewRedisCache(ctx, addr, "", 0, 2*time.Second, zerolog.Nop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	key := "prices:TEST:binance," + time.Now().Format("150405.000")
	c.Set(ctx, key, market.PriceMap{market.Binance: 123.45})

	got, ok := c.Get(ctx, key)
	if !ok || got[market.Binance] != 123.45 {
		t.Fatalf("got %v %v", got, ok)
	}
	if _, ok := c.Get(ctx, key+"-missing"); ok {
		t.Error("want miss for unknown key")
	}
}
