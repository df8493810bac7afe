package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/Armin-kho/crypto-spread-bot/internal/db"
	"github.com/Armin-kho/crypto-spread-bot/internal/market"
	"github.com/Armin-kho/crypto-spread-bot/internal/render"
	"github.com/Armin-kho/crypto-spread-bot/internal/spread"
)

// Sender delivers a message. *tgbotapi.BotAPI implements it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// PriceSource is the aggregation engine.
type PriceSource interface {
	FetchPrices(ctx context.Context, tokens []market.Token, exchanges []market.Exchange) map[market.Token]market.PriceMap
}

// Reporter counts deliveries. *metrics.Recorder implements it.
type Reporter interface {
	ReportSent(ok bool)
}

const (
	defaultTick     = time.Second
	maxConcurrent   = 5
	postTimeout     = 40 * time.Second
	fallbackSeconds = 60
)

type Scheduler struct {
	db     *db.DB
	prices PriceSource
	bot    Sender
	report Reporter
	log    zerolog.Logger

	tick time.Duration
	now  func() time.Time
	sem  chan struct{}

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[int64]bool
}

func New(database *db.DB, prices PriceSource, bot Sender, report Reporter, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		db:       database,
		prices:   prices,
		bot:      bot,
		report:   report,
		log:      log.With().Str("component", "scheduler").Logger(),
		tick:     defaultTick,
		now:      time.Now,
		sem:      make(chan struct{}, maxConcurrent),
		stopCh:   make(chan struct{}),
		inflight: map[int64]bool{},
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
}

// Stop ends the loop and waits for posts already under way.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.runTick()
		case <-s.stopCh:
			return
		}
	}
}

// runTick starts a post for every enabled chat whose interval has elapsed. It
// does not wait for them.
func (s *Scheduler) runTick() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	chats, err := s.db.ListChats(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("list chats")
		return
	}
	now := s.now()
	for _, c := range chats {
		if !c.Enabled {
			continue
		}
		settings, err := s.db.GetChatSettings(ctx, c.ChatID)
		if err != nil {
			s.log.Warn().Err(err).Int64("chat", c.ChatID).Msg("load settings")
			continue
		}
		if !due(settings, now) || !s.claim(c.ChatID) {
			continue
		}
		s.wg.Add(1)
		go func(st db.ChatSettings) {
			defer s.wg.Done()
			defer s.release(st.ChatID)
			s.sem <- struct{}{}
			defer func() { <-s.sem }()

			pctx, cancel := context.WithTimeout(context.Background(), postTimeout)
			defer cancel()
			_ = s.postOnce(pctx, st, true)
		}(settings)
	}
}

// due reports whether a chat's interval has elapsed since its last scheduled
// run. A chat that never ran is due at once.
func due(s db.ChatSettings, now time.Time) bool {
	if !s.LastFetchTime.Valid {
		return true
	}
	interval := s.IntervalSec
	if interval <= 0 {
		interval = fallbackSeconds
	}
	return now.Unix()-s.LastFetchTime.Int64 >= int64(interval)
}

func (s *Scheduler) claim(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[chatID] {
		return false
	}
	s.inflight[chatID] = true
	return true
}

func (s *Scheduler) release(chatID int64) {
	s.mu.Lock()
	delete(s.inflight, chatID)
	s.mu.Unlock()
}

// PostNow builds and sends one report immediately without moving the chat's
// schedule.
func (s *Scheduler) PostNow(ctx context.Context, chatID int64) error {
	ctx, cancel := context.WithTimeout(ctx, postTimeout)
	defer cancel()

	settings, err := s.db.GetChatSettings(ctx, chatID)
	if err != nil {
		return err
	}
	return s.postOnce(ctx, settings, false)
}

// Build fetches prices for the chat's tokens and renders the report text.
func (s *Scheduler) Build(ctx context.Context, settings db.ChatSettings) string {
	tokens := market.TokensOf(settings.Tokens)
	exchanges := market.ExchangesOf(settings.Exchanges)
	prices := s.prices.FetchPrices(ctx, tokens, exchanges)
	return render.Markdown(tokens, spread.ComputeAll(prices), settings.ThresholdPct)
}

func (s *Scheduler) postOnce(ctx context.Context, settings db.ChatSettings, scheduled bool) error {
	chatID := settings.ChatID
	text := s.Build(ctx, settings)

	msgID, err := s.send(chatID, text)
	if s.report != nil {
		s.report.ReportSent(err == nil)
	}
	if scheduled {
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		if herr := s.db.UpdateFetchHealth(ctx, chatID, s.now(), errMsg); herr != nil {
			s.log.Error().Err(herr).Int64("chat", chatID).Msg("record run")
		}
	}
	if err != nil {
		s.log.Warn().Err(err).Int64("chat", chatID).Bool("scheduled", scheduled).Msg("send report")
		return fmt.Errorf("send report to %d: %w", chatID, err)
	}
	if err := s.db.UpdateLastPost(ctx, chatID, msgID, s.now()); err != nil {
		s.log.Error().Err(err).Int64("chat", chatID).Msg("record post")
	}
	s.log.Debug().Int64("chat", chatID).Int("message", msgID).Msg("report sent")
	return nil
}

// send posts with Markdown and retries as plain text when Telegram rejects
// the entities.
func (s *Scheduler) send(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	sent, err := s.bot.Send(msg)
	if err == nil {
		return sent.MessageID, nil
	}
	if !strings.Contains(err.Error(), "can't parse entities") {
		return 0, err
	}
	msg.ParseMode = ""
	sent, err = s.bot.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}
