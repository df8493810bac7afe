package bot

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/Armin-kho/crypto-spread-bot/internal/config"
	"github.com/Armin-kho/crypto-spread-bot/internal/db"
	"github.com/Armin-kho/crypto-spread-bot/internal/market"
	"github.com/Armin-kho/crypto-spread-bot/internal/scheduler"
	"github.com/Armin-kho/crypto-spread-bot/internal/symbols"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("nothing sent")
	}
	return f.sent[len(f.sent)-1]
}

type fakePrices struct{}

func (fakePrices) FetchPrices(_ context.Context, tokens []market.Token, _ []market.Exchange) map[market.Token]market.PriceMap {
	out := map[market.Token]market.PriceMap{}
	for _, t := range tokens {
		out[t] = market.PriceMap{market.Binance: 100, market.Kraken: 102}
	}
	return out
}

func newTestApp(t *testing.T) (*App, *fakeSender) {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = d.Close() })

	sender := &fakeSender{}
	cfg := config.Config{
		Tokens:       []string{"BTC", "ETH"},
		Exchanges:    []string{"binance", "kraken"},
		ThresholdPct: 0.5,
		IntervalSec:  60,
	}
	return &App{
		cfg:      cfg,
		db:       d,
		log:      zerolog.Nop(),
		sender:   sender,
		registry: symbols.Default(),
		sched:    scheduler.New(d, fakePrices{}, sender, nil, zerolog.Nop()),
	}, sender
}

func command(chatID int64, text string) tgbotapi.Message {
	name := strings.SplitN(text, " ", 2)[0]
	return tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID, Type: "group", Title: "traders"},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}
}

func TestStartStop(t *testing.T) {
	app, sender := newTestApp(t)
	ctx := context.Background()

	app.handleMessage(ctx, command(7, "/start"))
	chat, err := app.db.GetChat(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if !chat.Enabled || chat.Title != "traders" {
		t.Errorf("chat after /start = %+v", chat)
	}
	if got := sender.last(t).Text; !strings.Contains(got, "Интервал обновления: 60s") || !strings.Contains(got, "BTC, ETH") {
		t.Errorf("start reply = %q", got)
	}

	app.handleMessage(ctx, command(7, "/stop"))
	chat, _ = app.db.GetChat(ctx, 7)
	if chat.Enabled {
		t.Error("chat still enabled after /stop")
	}
}

func TestSettingsCommands(t *testing.T) {
	app, sender := newTestApp(t)
	ctx := context.Background()

	app.handleMessage(ctx, command(1, "/set_threshold 0,8"))
	app.handleMessage(ctx, command(1, "/set_interval 120"))
	app.handleMessage(ctx, command(1, "/set_tokens sol, btc"))
	app.handleMessage(ctx, command(1, "/set_exchanges okx,mtgox"))

	s, err := app.db.GetChatSettings(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if s.ThresholdPct != 0.8 || s.IntervalSec != 120 {
		t.Errorf("threshold/interval = %v/%d", s.ThresholdPct, s.IntervalSec)
	}
	if !reflect.DeepEqual(s.Tokens, []string{"SOL", "BTC"}) {
		t.Errorf("tokens = %v", s.Tokens)
	}
	if !reflect.DeepEqual(s.Exchanges, []string{"okx"}) {
		t.Errorf("exchanges = %v", s.Exchanges)
	}
	if got := sender.last(t).Text; !strings.Contains(got, "mtgox") {
		t.Errorf("unknown exchange not reported: %q", got)
	}
}

func TestInvalidArgumentsKeepSettings(t *testing.T) {
	app, sender := newTestApp(t)
	ctx := context.Background()

	tests := []struct {
		text  string
		usage string
	}{
		{"/set_threshold", "/set_threshold 0.5"},
		{"/set_threshold -3", "/set_threshold 0.5"},
		{"/set_interval 5", "/set_interval 60"},
		{"/set_tokens", "/set_tokens BTC"},
		{"/set_exchanges mtgox", "/set_exchanges binance"},
	}
	for _, tt := range tests {
		app.handleMessage(ctx, command(3, tt.text))
		if got := sender.last(t).Text; !strings.Contains(got, tt.usage) {
			t.Errorf("%s reply = %q", tt.text, got)
		}
	}

	s, _ := app.db.GetChatSettings(ctx, 3)
	if s.ThresholdPct != 0.5 || s.IntervalSec != 60 || len(s.Tokens) != 2 || len(s.Exchanges) != 2 {
		t.Errorf("settings changed: %+v", s)
	}
}

func TestUnlistedTokenWarning(t *testing.T) {
	app, sender := newTestApp(t)
	app.handleMessage(context.Background(), command(4, "/set_tokens BTC,NOPE"))
	got := sender.last(t).Text
	if !strings.Contains(got, "NOPE") || strings.Contains(strings.SplitN(got, "\n", 2)[1], "BTC") {
		t.Errorf("reply = %q", got)
	}
}

func TestOncePostsReport(t *testing.T) {
	app, sender := newTestApp(t)
	ctx := context.Background()

	app.handleMessage(ctx, command(5, "/once"))
	app.wg.Wait()

	msg := sender.last(t)
	if msg.ParseMode != tgbotapi.ModeMarkdown || !strings.Contains(msg.Text, "BTC") {
		t.Errorf("once message = %+v", msg)
	}
	s, _ := app.db.GetChatSettings(ctx, 5)
	if !s.LastPostTime.Valid || s.LastFetchTime.Valid {
		t.Errorf("once should record the post without touching the schedule: %+v", s)
	}
	chat, _ := app.db.GetChat(ctx, 5)
	if chat.Enabled {
		t.Error("/once must not enable auto updates")
	}
}

func TestStatusAndHelp(t *testing.T) {
	app, sender := newTestApp(t)
	ctx := context.Background()

	app.handleMessage(ctx, command(6, "/status"))
	if got := sender.last(t).Text; !strings.Contains(got, "binance, kraken") || !strings.Contains(got, "остановлены") {
		t.Errorf("status = %q", got)
	}
	app.handleMessage(ctx, command(6, "/help"))
	if got := sender.last(t).Text; !strings.Contains(got, "/set_exchanges") {
		t.Errorf("help = %q", got)
	}
}

func TestIgnoresPlainText(t *testing.T) {
	app, sender := newTestApp(t)
	app.handleMessage(context.Background(), tgbotapi.Message{Text: "hello", Chat: &tgbotapi.Chat{ID: 9}})
	app.handleMessage(context.Background(), command(9, "/unknown"))
	if len(sender.sent) != 0 {
		t.Errorf("sent %d messages", len(sender.sent))
	}
}
