package render

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Armin-kho/crypto-spread-bot/internal/db"
	"github.com/Armin-kho/crypto-spread-bot/internal/market"
	"github.com/Armin-kho/crypto-spread-bot/internal/spread"
)

// Markdown renders one report message in Telegram's legacy Markdown. Tokens are
// rendered in the given order; a token without a report or without prices gets
// a "no data" line.
func Markdown(tokens []market.Token, reports map[market.Token]spread.Report, thresholdPct float64) string {
	var b strings.Builder
	b.WriteString("📊 *Сравнение цен по биржам* (USD)")
	for _, tok := range tokens {
		b.WriteString("\n\n*")
		b.WriteString(escape(string(tok)))
		b.WriteString("* — лучший бид/оффер и спред:\n")

		r, ok := reports[tok]
		if !ok || r.NoData {
			b.WriteString("_нет данных_")
			continue
		}
		buy, sell := r.BestBuy(), r.BestSell()
		fmt.Fprintf(&b, "• Лучшее место купить: *%s* — `%s`\n", escape(string(buy.Exchange)), Money(buy.Price))
		fmt.Fprintf(&b, "• Лучшее место продать: *%s* — `%s`\n", escape(string(sell.Exchange)), Money(sell.Price))
		fmt.Fprintf(&b, "• Разница: `%s` (%s%%)", Money(r.SpreadAbs), Pct(r.SpreadPct))
		if r.Exceeds(thresholdPct) {
			fmt.Fprintf(&b, "\n🚨 *СПРЕД* превышает порог %s%%", Pct(thresholdPct))
		}
		b.WriteString("\nБиржи:")
		for _, e := range r.Table {
			fmt.Fprintf(&b, "\n  - `%s` — `%s`", e.Exchange, Money(e.Price))
		}
	}
	return b.String()
}

// Money formats a USD amount with thousands separators and two decimals.
func Money(v float64) string {
	return "$" + humanize.FormatFloat("#,###.##", v)
}

// Pct formats a percentage with three decimals.
func Pct(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// Status renders the /status reply.
func Status(s db.ChatSettings, enabled bool) string {
	state := "остановлены"
	if enabled {
		state = "включены"
	}
	var b strings.Builder
	b.WriteString("Текущие настройки:\n")
	fmt.Fprintf(&b, "- tokens: %s\n", strings.Join(s.Tokens, ", "))
	fmt.Fprintf(&b, "- exchanges: %s\n", strings.Join(s.Exchanges, ", "))
	fmt.Fprintf(&b, "- threshold: %s%%\n", strconv.FormatFloat(s.ThresholdPct, 'f', -1, 64))
	fmt.Fprintf(&b, "- interval: %d сек.\n", s.IntervalSec)
	fmt.Fprintf(&b, "- автообновления: %s", state)
	if s.LastPostTime.Valid {
		fmt.Fprintf(&b, "\n- последний снимок: %s", time.Unix(s.LastPostTime.Int64, 0).UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	if s.LastError.Valid && s.LastError.String != "" {
		fmt.Fprintf(&b, "\n- последняя ошибка: %s", s.LastError.String)
	}
	return b.String()
}

// Help lists the commands.
func Help() string {
	return "Команды:\n" +
		"/start — запустить автообновления\n" +
		"/stop — остановить автообновления\n" +
		"/once — прислать разовый снимок цен\n" +
		"/set_threshold <pct> — установить порог спреда в %\n" +
		"/set_interval <sec> — интервал автообновления в секундах\n" +
		"/set_tokens BTC,ETH,SOL,BNB — токены для мониторинга\n" +
		"/set_exchanges binance,coinbase,... — список бирж\n" +
		"/status — показать текущие настройки"
}

var mdEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escape(s string) string { return mdEscaper.Replace(s) }
