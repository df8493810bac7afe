// Command snapshot fetches one round of prices and prints the spread per token.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Armin-kho/crypto-spread-bot/internal/aggregator"
	"github.com/Armin-kho/crypto-spread-bot/internal/config"
	"github.com/Armin-kho/crypto-spread-bot/internal/logging"
	"github.com/Armin-kho/crypto-spread-bot/internal/market"
	"github.com/Armin-kho/crypto-spread-bot/internal/render"
	"github.com/Armin-kho/crypto-spread-bot/internal/spread"
)

var (
	colorAccent = lipgloss.Color("#7C3AED")
	colorGood   = lipgloss.Color("#10B981")
	colorAlert  = lipgloss.Color("#EF4444")
	colorMuted  = lipgloss.Color("#6B7280")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	buyStyle    = cellStyle.Foreground(colorGood)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	alertStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorAlert)
)

func main() {
	cfgPath := flag.String("config", config.DefaultConfigPath(), "path to config.json")
	tokensFlag := flag.String("tokens", "", "comma-separated tokens (default from config)")
	exchangesFlag := flag.String("exchanges", "", "comma-separated exchanges (default from config)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logging.Setup(false)
		log.Fatal().Err(err).Msg("config error")
	}
	logger := logging.Setup(cfg.Debug)

	tokens := market.TokensOf(cfg.Tokens)
	if *tokensFlag != "" {
		tokens = market.ParseTokens(*tokensFlag)
	}
	exchanges := market.ExchangesOf(cfg.Exchanges)
	if *exchangesFlag != "" {
		exchanges = market.ParseExchanges(*exchangesFlag)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	agg, closeEngine := aggregator.FromConfig(ctx, cfg, logger, nil)
	defer closeEngine()

	reports := spread.ComputeAll(agg.FetchPrices(ctx, tokens, exchanges))
	for _, tok := range tokens {
		fmt.Println(renderToken(tok, reports[tok], cfg.ThresholdPct))
	}
}

func renderToken(tok market.Token, r spread.Report, thresholdPct float64) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(string(tok)))
	b.WriteString("\n")
	if r.NoData {
		b.WriteString(mutedStyle.Render("no data"))
		return b.String()
	}

	rows := make([][]string, 0, len(r.Table))
	for _, e := range r.Table {
		rows = append(rows, []string{string(e.Exchange), render.Money(e.Price)})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers("EXCHANGE", "PRICE").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row == 0:
				return buyStyle
			default:
				return cellStyle
			}
		})
	b.WriteString(t.Render())
	b.WriteString("\n")

	summary := fmt.Sprintf("buy %s @ %s  sell %s @ %s  spread %s (%s%%)",
		r.BestBuy().Exchange, render.Money(r.BestBuy().Price),
		r.BestSell().Exchange, render.Money(r.BestSell().Price),
		render.Money(r.SpreadAbs), render.Pct(r.SpreadPct))
	if r.Exceeds(thresholdPct) {
		b.WriteString(alertStyle.Render(summary))
	} else {
		b.WriteString(summary)
	}
	return b.String()
}
