package bot

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/Armin-kho/crypto-spread-bot/internal/config"
	"github.com/Armin-kho/crypto-spread-bot/internal/market"
	"github.com/Armin-kho/crypto-spread-bot/internal/sources"
)

var errUsage = errors.New("usage")

func firstArg(args string) string {
	f := strings.Fields(args)
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

// parseThreshold accepts a non-negative percentage; a comma decimal separator is allowed.
func parseThreshold(args string) (float64, error) {
	s := strings.ReplaceAll(strings.TrimSuffix(firstArg(args), "%"), ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errUsage
	}
	return v, nil
}

func parseInterval(args string) (int, error) {
	v, err := strconv.Atoi(firstArg(args))
	if err != nil || v < config.MinIntervalSec {
		return 0, errUsage
	}
	return v, nil
}

// parseTokens reads "BTC,ETH" or "BTC, ETH" or "BTC ETH".
func parseTokens(args string) []string {
	return market.TokenStrings(market.ParseTokens(splitList(args)))
}

// parseExchanges returns the supported exchanges and the rejected names.
func parseExchanges(args string) (ok, unknown []string) {
	for _, ex := range market.ParseExchanges(splitList(args)) {
		if sources.Supported(ex) {
			ok = append(ok, string(ex))
		} else {
			unknown = append(unknown, string(ex))
		}
	}
	return ok, unknown
}

func splitList(args string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(args, ",", " ")), ",")
}
