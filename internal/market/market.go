package market

import (
	"math"
	"strings"
)

// Token is an uppercase asset symbol, e.g. "BTC".
type Token string

// Exchange is a lowercase venue identifier, e.g. "binance".
type Exchange string

type QuoteCurrency string

const (
	USD  QuoteCurrency = "USD"
	USDT QuoteCurrency = "USDT"
)

const (
	Binance  Exchange = "binance"
	Coinbase Exchange = "coinbase"
	Kraken   Exchange = "kraken"
	KuCoin   Exchange = "kucoin"
	Bybit    Exchange = "bybit"
	OKX      Exchange = "okx"
	Bitstamp Exchange = "bitstamp"
)

// Quote is a single ticker price as returned by a venue, before USD normalization.
type Quote struct {
	Price    float64
	Currency QuoteCurrency
}

// Valid reports whether the price is finite and strictly positive.
func (q Quote) Valid() bool {
	return q.Price > 0 && !math.IsInf(q.Price, 0) && !math.IsNaN(q.Price)
}

// PriceMap maps an exchange to its USD price for one token. Exchanges without a
// usable price are absent, never stored as zero.
type PriceMap map[Exchange]float64

func NormalizeToken(s string) Token {
	return Token(strings.ToUpper(strings.TrimSpace(s)))
}

func NormalizeExchange(s string) Exchange {
	return Exchange(strings.ToLower(strings.TrimSpace(s)))
}

// ParseTokens splits a comma separated list, normalizes each entry and drops
// empties and duplicates while keeping the first-seen order.
func ParseTokens(s string) []Token {
	return TokensOf(strings.Split(s, ","))
}

func TokensOf(in []string) []Token {
	out := make([]Token, 0, len(in))
	seen := map[Token]struct{}{}
	for _, s := range in {
		t := NormalizeToken(s)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func ParseExchanges(s string) []Exchange {
	return ExchangesOf(strings.Split(s, ","))
}

func ExchangesOf(in []string) []Exchange {
	out := make([]Exchange, 0, len(in))
	seen := map[Exchange]struct{}{}
	for _, s := range in {
		e := NormalizeExchange(s)
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

func TokenStrings(in []Token) []string {
	out := make([]string, len(in))
	for i, t := range in {
		out[i] = string(t)
	}
	return out
}

func ExchangeStrings(in []Exchange) []string {
	out := make([]string, len(in))
	for i, e := range in {
		out[i] = string(e)
	}
	return out
}
