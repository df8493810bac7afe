package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/Armin-kho/crypto-spread-bot/internal/db"
	"github.com/Armin-kho/crypto-spread-bot/internal/market"
)

type fakeSender struct {
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	failFor map[int64]error
	// rejectMarkdown fails any Markdown message like Telegram does on bad entities.
	rejectMarkdown bool
	block          chan struct{}
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.block != nil {
		<-f.block
	}
	m := c.(tgbotapi.MessageConfig)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[m.ChatID]; err != nil {
		return tgbotapi.Message{}, err
	}
	if f.rejectMarkdown && m.ParseMode != "" {
		return tgbotapi.Message{}, errors.New("Bad Request: can't parse entities: unclosed bold")
	}
	f.sent = append(f.sent, m)
	return tgbotapi.Message{MessageID: 100 + len(f.sent)}, nil
}

func (f *fakeSender) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), f.sent...)
}

type fakePrices struct{ calls atomic.Int32 }

func (f *fakePrices) FetchPrices(_ context.Context, tokens []market.Token, _ []market.Exchange) map[market.Token]market.PriceMap {
	f.calls.Add(1)
	out := map[market.Token]market.PriceMap{}
	for _, t := range tokens {
		out[t] = market.PriceMap{market.Binance: 100, market.OKX: 101}
	}
	return out
}

type countingReporter struct{ ok, failed atomic.Int32 }

func (r *countingReporter) ReportSent(ok bool) {
	if ok {
		r.ok.Add(1)
	} else {
		r.failed.Add(1)
	}
}

func setup(t *testing.T, sender *fakeSender) (*Scheduler, *db.DB, *countingReporter) {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = d.Close() })
	rep := &countingReporter{}
	return New(d, &fakePrices{}, sender, rep, zerolog.Nop()), d, rep
}

func addChat(t *testing.T, d *db.DB, id int64, enabled bool) {
	t.Helper()
	ctx := context.Background()
	err := d.UpsertChat(ctx, db.Chat{ChatID: id, Title: "t", Type: "group"}, db.Defaults{
		Tokens: []string{"BTC"}, Exchanges: []string{"binance", "okx"}, ThresholdPct: 0.5, IntervalSec: 60,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SetChatEnabled(ctx, id, enabled); err != nil {
		t.Fatal(err)
	}
}

func TestDue(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	tests := []struct {
		name     string
		last     sql.NullInt64
		interval int
		want     bool
	}{
		{"never_ran", sql.NullInt64{}, 60, true},
		{"just_ran", sql.NullInt64{Int64: now.Unix(), Valid: true}, 60, false},
		{"one_second_short", sql.NullInt64{Int64: now.Unix() - 59, Valid: true}, 60, false},
		{"exactly_elapsed", sql.NullInt64{Int64: now.Unix() - 60, Valid: true}, 60, true},
		{"bad_interval_uses_fallback", sql.NullInt64{Int64: now.Unix() - 30, Valid: true}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := due(db.ChatSettings{IntervalSec: tt.interval, LastFetchTime: tt.last}, now)
			if got != tt.want {
				t.Errorf("due = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunTick_PostsDueEnabledChats(t *testing.T) {
	sender := &fakeSender{}
	s, d, rep := setup(t, sender)
	addChat(t, d, 1, true)
	addChat(t, d, 2, false)

	s.runTick()
	s.wg.Wait()

	msgs := sender.messages()
	if len(msgs) != 1 || msgs[0].ChatID != 1 {
		t.Fatalf("sent = %+v", msgs)
	}
	if msgs[0].ParseMode != tgbotapi.ModeMarkdown {
		t.Errorf("parse mode = %q", msgs[0].ParseMode)
	}
	if !strings.Contains(msgs[0].Text, "*BTC*") || !strings.Contains(msgs[0].Text, "`binance`") {
		t.Errorf("unexpected text:\n%s", msgs[0].Text)
	}
	if rep.ok.Load() != 1 {
		t.Errorf("delivered = %d", rep.ok.Load())
	}

	st, _ := d.GetChatSettings(context.Background(), 1)
	if !st.LastFetchTime.Valid || !st.LastPostTime.Valid || st.LastPostMessageID.Int64 != 101 {
		t.Errorf("run not recorded: %+v", st)
	}

	// Not due again until the interval passes.
	s.runTick()
	s.wg.Wait()
	if n := len(sender.messages()); n != 1 {
		t.Errorf("sent %d messages, want 1", n)
	}

	s.now = func() time.Time { return time.Now().Add(61 * time.Second) }
	s.runTick()
	s.wg.Wait()
	if n := len(sender.messages()); n != 2 {
		t.Errorf("sent %d messages after interval, want 2", n)
	}
}

func TestRunTick_FailureIsRecordedAndNotRetriedEachTick(t *testing.T) {
	sender := &fakeSender{failFor: map[int64]error{1: errors.New("Forbidden: bot was kicked")}}
	s, d, rep := setup(t, sender)
	addChat(t, d, 1, true)

	s.runTick()
	s.wg.Wait()
	s.runTick()
	s.wg.Wait()

	if rep.failed.Load() != 1 {
		t.Errorf("failed = %d, want 1", rep.failed.Load())
	}
	st, _ := d.GetChatSettings(context.Background(), 1)
	if !strings.Contains(st.LastError.String, "kicked") {
		t.Errorf("last error = %+v", st.LastError)
	}
	if st.LastPostTime.Valid {
		t.Error("failed send recorded as post")
	}
}

func TestRunTick_SkipsChatStillPosting(t *testing.T) {
	sender := &fakeSender{block: make(chan struct{})}
	s, d, _ := setup(t, sender)
	addChat(t, d, 1, true)

	s.runTick()
	// First post is blocked in Send; the chat stays in flight.
	s.runTick()
	close(sender.block)
	s.wg.Wait()

	if n := len(sender.messages()); n != 1 {
		t.Errorf("sent %d messages, want 1", n)
	}
}

func TestSend_FallsBackToPlainText(t *testing.T) {
	sender := &fakeSender{rejectMarkdown: true}
	s, d, _ := setup(t, sender)
	addChat(t, d, 1, true)

	if err := s.PostNow(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	msgs := sender.messages()
	if len(msgs) != 1 || msgs[0].ParseMode != "" {
		t.Fatalf("sent = %+v", msgs)
	}
}

func TestPostNow_KeepsSchedule(t *testing.T) {
	sender := &fakeSender{}
	s, d, _ := setup(t, sender)
	addChat(t, d, 1, false)

	if err := s.PostNow(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	st, _ := d.GetChatSettings(context.Background(), 1)
	if st.LastFetchTime.Valid {
		t.Error("PostNow moved the schedule")
	}
	if !st.LastPostTime.Valid {
		t.Error("PostNow did not record the post")
	}

	if err := s.PostNow(context.Background(), 404); !errors.Is(err, db.ErrChatNotFound) {
		t.Errorf("unknown chat err = %v", err)
	}
}

func TestStartStop(t *testing.T) {
	sender := &fakeSender{}
	s, d, _ := setup(t, sender)
	addChat(t, d, 1, true)
	s.tick = 10 * time.Millisecond

	s.Start()
	deadline := time.Now().Add(2 * time.Second)
	for len(sender.messages()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	s.Stop()

	if len(sender.messages()) != 1 {
		t.Errorf("sent %d messages, want 1", len(sender.messages()))
	}
}
