package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/Armin-kho/crypto-spread-bot/internal/aggregator"
	"github.com/Armin-kho/crypto-spread-bot/internal/config"
	"github.com/Armin-kho/crypto-spread-bot/internal/db"
	"github.com/Armin-kho/crypto-spread-bot/internal/market"
	"github.com/Armin-kho/crypto-spread-bot/internal/metrics"
	"github.com/Armin-kho/crypto-spread-bot/internal/render"
	"github.com/Armin-kho/crypto-spread-bot/internal/scheduler"
	"github.com/Armin-kho/crypto-spread-bot/internal/symbols"
)

type App struct {
	cfg config.Config
	db  *db.DB
	log zerolog.Logger

	bot    *tgbotapi.BotAPI
	sender scheduler.Sender

	registry *symbols.Registry
	sched    *scheduler.Scheduler

	closeEngine func()
	wg          sync.WaitGroup
}

// New opens the settings store, wires the price engine and logs in to Telegram.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger, rec *metrics.Recorder) (*App, error) {
	database, err := db.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	b, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	b.Debug = cfg.Debug

	var obs aggregator.Observer
	if rec != nil {
		obs = rec
	}
	agg, closeEngine := aggregator.FromConfig(ctx, cfg, log, obs)

	var reporter scheduler.Reporter
	if rec != nil {
		reporter = rec
	}
	app := &App{
		cfg:         cfg,
		db:          database,
		log:         log.With().Str("component", "bot").Logger(),
		bot:         b,
		sender:      b,
		registry:    agg.Registry(),
		sched:       scheduler.New(database, agg, b, reporter, log),
		closeEngine: closeEngine,
	}
	return app, nil
}

func (a *App) Close() {
	if a.sched != nil {
		a.sched.Stop()
	}
	a.wg.Wait()
	if a.closeEngine != nil {
		a.closeEngine()
	}
	_ = a.db.Close()
}

// Run polls Telegram until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.log.Info().Str("username", a.bot.Self.UserName).Msg("bot authorized")

	a.sched.Start()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}
	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			if upd.Message != nil {
				a.handleMessage(ctx, *upd.Message)
			}
		}
	}
}

func (a *App) defaults() db.Defaults {
	return db.Defaults{
		Tokens:       a.cfg.Tokens,
		Exchanges:    a.cfg.Exchanges,
		ThresholdPct: a.cfg.ThresholdPct,
		IntervalSec:  a.cfg.IntervalSec,
	}
}

func (a *App) ensureChat(ctx context.Context, chat *tgbotapi.Chat) error {
	title := chat.Title
	if title == "" {
		title = chat.UserName
	}
	if title == "" {
		title = strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	}
	return a.db.UpsertChat(ctx, db.Chat{ChatID: chat.ID, Title: title, Type: chat.Type}, a.defaults())
}

func (a *App) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := a.sender.Send(msg); err != nil {
		a.log.Warn().Err(err).Int64("chat", chatID).Msg("reply")
	}
}

func (a *App) handleMessage(ctx context.Context, msg tgbotapi.Message) {
	if msg.Chat == nil || !msg.IsCommand() {
		return
	}
	chatID := msg.Chat.ID
	args := msg.CommandArguments()

	if err := a.ensureChat(ctx, msg.Chat); err != nil {
		a.log.Error().Err(err).Int64("chat", chatID).Msg("register chat")
		a.reply(chatID, "Внутренняя ошибка, попробуй позже.")
		return
	}

	var err error
	switch msg.Command() {
	case "start":
		err = a.cmdStart(ctx, chatID)
	case "stop":
		err = a.cmdStop(ctx, chatID)
	case "once":
		a.cmdOnce(chatID)
	case "set_threshold":
		err = a.cmdSetThreshold(ctx, chatID, args)
	case "set_interval":
		err = a.cmdSetInterval(ctx, chatID, args)
	case "set_tokens":
		err = a.cmdSetTokens(ctx, chatID, args)
	case "set_exchanges":
		err = a.cmdSetExchanges(ctx, chatID, args)
	case "status":
		err = a.cmdStatus(ctx, chatID)
	case "help":
		a.reply(chatID, render.Help())
	default:
		return
	}
	if err != nil {
		a.log.Error().Err(err).Int64("chat", chatID).Str("command", msg.Command()).Msg("command failed")
		a.reply(chatID, "Внутренняя ошибка, попробуй позже.")
	}
}

func (a *App) cmdStart(ctx context.Context, chatID int64) error {
	if err := a.db.SetChatEnabled(ctx, chatID, true); err != nil {
		return err
	}
	if err := a.db.ResetSchedule(ctx, chatID); err != nil {
		return err
	}
	s, err := a.db.GetChatSettings(ctx, chatID)
	if err != nil {
		return err
	}
	a.reply(chatID, fmt.Sprintf(
		"Бот запущен. Интервал обновления: %ds, порог: %s%%, токены: %s.\n"+
			"Команды: /once, /set_threshold, /set_interval, /set_tokens, /set_exchanges, /status, /stop",
		s.IntervalSec, strconv.FormatFloat(s.ThresholdPct, 'f', -1, 64), strings.Join(s.Tokens, ", ")))
	return nil
}

func (a *App) cmdStop(ctx context.Context, chatID int64) error {
	if err := a.db.SetChatEnabled(ctx, chatID, false); err != nil {
		return err
	}
	a.reply(chatID, "Окей, автообновления остановлены. Используй /start для возобновления или /once для разового снимка.")
	return nil
}

// cmdOnce posts in the background so a slow exchange does not stall the update loop.
func (a *App) cmdOnce(chatID int64) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := a.sched.PostNow(context.Background(), chatID)
		if err != nil && !errors.Is(err, db.ErrChatNotFound) {
			a.reply(chatID, "Не удалось отправить снимок, попробуй позже.")
		}
	}()
}

func (a *App) cmdSetThreshold(ctx context.Context, chatID int64, args string) error {
	v, err := parseThreshold(args)
	if err != nil {
		a.reply(chatID, "Использование: /set_threshold 0.5  (в процентах)")
		return nil
	}
	if err := a.db.UpdateChatSetting(ctx, chatID, "threshold_pct", v); err != nil {
		return err
	}
	a.reply(chatID, fmt.Sprintf("Порог установлен на %s%%", strconv.FormatFloat(v, 'f', -1, 64)))
	return nil
}

func (a *App) cmdSetInterval(ctx context.Context, chatID int64, args string) error {
	sec, err := parseInterval(args)
	if err != nil {
		a.reply(chatID, fmt.Sprintf("Использование: /set_interval 60  (в секундах, не меньше %d)", config.MinIntervalSec))
		return nil
	}
	if err := a.db.UpdateChatSetting(ctx, chatID, "interval_sec", sec); err != nil {
		return err
	}
	a.reply(chatID, fmt.Sprintf("Интервал обновления установлен на %d сек.", sec))
	return nil
}

func (a *App) cmdSetTokens(ctx context.Context, chatID int64, args string) error {
	tokens := parseTokens(args)
	if len(tokens) == 0 {
		a.reply(chatID, "Использование: /set_tokens BTC,ETH,SOL,BNB")
		return nil
	}
	if err := a.db.UpdateChatSetting(ctx, chatID, "tokens", tokens); err != nil {
		return err
	}
	text := "Токены установлены: " + strings.Join(tokens, ", ")
	var unlisted []string
	for _, t := range tokens {
		if !a.registry.Has(market.Token(t)) {
			unlisted = append(unlisted, t)
		}
	}
	if len(unlisted) > 0 {
		text += "\nНет ни на одной бирже: " + strings.Join(unlisted, ", ")
	}
	a.reply(chatID, text)
	return nil
}

func (a *App) cmdSetExchanges(ctx context.Context, chatID int64, args string) error {
	exchanges, unknown := parseExchanges(args)
	if len(exchanges) == 0 {
		a.reply(chatID, "Использование: /set_exchanges binance,coinbase,kraken,kucoin,bybit,okx,bitstamp")
		return nil
	}
	if err := a.db.UpdateChatSetting(ctx, chatID, "exchanges", exchanges); err != nil {
		return err
	}
	text := "Биржи установлены: " + strings.Join(exchanges, ", ")
	if len(unknown) > 0 {
		text += "\nНе поддерживаются: " + strings.Join(unknown, ", ")
	}
	a.reply(chatID, text)
	return nil
}

func (a *App) cmdStatus(ctx context.Context, chatID int64) error {
	c, err := a.db.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	s, err := a.db.GetChatSettings(ctx, chatID)
	if err != nil {
		return err
	}
	a.reply(chatID, render.Status(s, c.Enabled))
	return nil
}
