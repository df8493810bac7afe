package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// ErrChatNotFound is returned when a chat has never been registered.
var ErrChatNotFound = errors.New("chat not found")

type DB struct {
	sql *sql.DB
}

func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", dbPath)
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1)
	sqldb.SetConnMaxLifetime(0)

	db := &DB{sql: sqldb}
	if err := db.migrate(context.Background()); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL);`,
		`CREATE TABLE IF NOT EXISTS chats (
			chat_id INTEGER PRIMARY KEY,
			title TEXT NOT NULL,
			type TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chat_settings (
			chat_id INTEGER PRIMARY KEY REFERENCES chats(chat_id) ON DELETE CASCADE,
			tokens TEXT NOT NULL DEFAULT '[]',
			exchanges TEXT NOT NULL DEFAULT '[]',
			threshold_pct REAL NOT NULL DEFAULT 0.5,
			interval_sec INTEGER NOT NULL DEFAULT 60,
			last_post_message_id INTEGER,
			last_post_time INTEGER,
			last_fetch_time INTEGER,
			last_error TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chats_enabled ON chats(enabled);`,
	}
	for _, s := range stmts {
		if _, err := d.sql.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO meta(key,value) VALUES('schema_version',?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		strconv.Itoa(schemaVersion))
	return err
}

// SchemaVersion reports the schema version recorded in meta.
func (d *DB) SchemaVersion(ctx context.Context) (int, error) {
	var v string
	if err := d.sql.QueryRowContext(ctx, `SELECT value FROM meta WHERE key='schema_version'`).Scan(&v); err != nil {
		return 0, err
	}
	return strconv.Atoi(v)
}

type Chat struct {
	ChatID  int64
	Title   string
	Type    string // private/group/supergroup/channel
	Enabled bool
}

// Defaults seed a chat's settings the first time it is seen.
type Defaults struct {
	Tokens       []string
	Exchanges    []string
	ThresholdPct float64
	IntervalSec  int
}

// UpsertChat registers a chat or refreshes its title and type. Settings are
// created from defaults only when the chat has none yet. New chats start disabled.
func (d *DB) UpsertChat(ctx context.Context, c Chat, defaults Defaults) error {
	now := time.Now().Unix()
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO chats(chat_id,title,type,enabled,created_at,updated_at)
		 VALUES(?,?,?,0,?,?)
		 ON CONFLICT(chat_id) DO UPDATE SET title=excluded.title, type=excluded.type, updated_at=excluded.updated_at`,
		c.ChatID, c.Title, c.Type, now, now)
	if err != nil {
		return err
	}
	tokens, err := json.Marshal(nonNil(defaults.Tokens))
	if err != nil {
		return err
	}
	exchanges, err := json.Marshal(nonNil(defaults.Exchanges))
	if err != nil {
		return err
	}
	_, err = d.sql.ExecContext(ctx,
		`INSERT OR IGNORE INTO chat_settings(chat_id,tokens,exchanges,threshold_pct,interval_sec) VALUES(?,?,?,?,?)`,
		c.ChatID, string(tokens), string(exchanges), defaults.ThresholdPct, defaults.IntervalSec)
	return err
}

func (d *DB) SetChatEnabled(ctx context.Context, chatID int64, enabled bool) error {
	val := 0
	if enabled {
		val = 1
	}
	res, err := d.sql.ExecContext(ctx, `UPDATE chats SET enabled=?, updated_at=? WHERE chat_id=?`, val, time.Now().Unix(), chatID)
	if err != nil {
		return err
	}
	return requireRow(res, chatID)
}

func (d *DB) GetChat(ctx context.Context, chatID int64) (Chat, error) {
	var c Chat
	var enabled int
	err := d.sql.QueryRowContext(ctx, `SELECT chat_id,title,type,enabled FROM chats WHERE chat_id=?`, chatID).
		Scan(&c.ChatID, &c.Title, &c.Type, &enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return Chat{}, fmt.Errorf("chat %d: %w", chatID, ErrChatNotFound)
	}
	if err != nil {
		return Chat{}, err
	}
	c.Enabled = enabled == 1
	return c, nil
}

func (d *DB) ListChats(ctx context.Context) ([]Chat, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT chat_id,title,type,enabled FROM chats ORDER BY chat_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Chat
	for rows.Next() {
		var c Chat
		var enabled int
		if err := rows.Scan(&c.ChatID, &c.Title, &c.Type, &enabled); err != nil {
			return nil, err
		}
		c.Enabled = enabled == 1
		out = append(out, c)
	}
	return out, rows.Err()
}

type ChatSettings struct {
	ChatID int64

	Tokens       []string
	Exchanges    []string
	ThresholdPct float64
	IntervalSec  int

	LastPostMessageID sql.NullInt64
	LastPostTime      sql.NullInt64
	LastFetchTime     sql.NullInt64
	LastError         sql.NullString
}

func (d *DB) GetChatSettings(ctx context.Context, chatID int64) (ChatSettings, error) {
	var s ChatSettings
	s.ChatID = chatID
	var tokensJSON, exchangesJSON string
	err := d.sql.QueryRowContext(ctx, `SELECT tokens,exchanges,threshold_pct,interval_sec,
		last_post_message_id,last_post_time,last_fetch_time,last_error
		FROM chat_settings WHERE chat_id=?`, chatID).
		Scan(&tokensJSON, &exchangesJSON, &s.ThresholdPct, &s.IntervalSec,
			&s.LastPostMessageID, &s.LastPostTime, &s.LastFetchTime, &s.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return ChatSettings{}, fmt.Errorf("chat %d settings: %w", chatID, ErrChatNotFound)
	}
	if err != nil {
		return ChatSettings{}, err
	}
	if err := json.Unmarshal([]byte(tokensJSON), &s.Tokens); err != nil {
		return ChatSettings{}, fmt.Errorf("chat %d tokens: %w", chatID, err)
	}
	if err := json.Unmarshal([]byte(exchangesJSON), &s.Exchanges); err != nil {
		return ChatSettings{}, fmt.Errorf("chat %d exchanges: %w", chatID, err)
	}
	return s, nil
}

// UpdateChatSetting writes one whitelisted setting. List settings take []string
// and are stored as JSON.
func (d *DB) UpdateChatSetting(ctx context.Context, chatID int64, key string, value any) error {
	switch key {
	case "tokens", "exchanges":
		list, ok := value.([]string)
		if !ok {
			return fmt.Errorf("setting %s wants []string, got %T", key, value)
		}
		b, err := json.Marshal(nonNil(list))
		if err != nil {
			return err
		}
		value = string(b)
	case "threshold_pct", "interval_sec":
	default:
		return fmt.Errorf("invalid setting key: %s", key)
	}
	res, err := d.sql.ExecContext(ctx, fmt.Sprintf(`UPDATE chat_settings SET %s=? WHERE chat_id=?`, key), value, chatID)
	if err != nil {
		return err
	}
	return requireRow(res, chatID)
}

// ResetSchedule forgets the last scheduled run so the chat is due on the next tick.
func (d *DB) ResetSchedule(ctx context.Context, chatID int64) error {
	res, err := d.sql.ExecContext(ctx, `UPDATE chat_settings SET last_fetch_time=NULL WHERE chat_id=?`, chatID)
	if err != nil {
		return err
	}
	return requireRow(res, chatID)
}

func (d *DB) UpdateLastPost(ctx context.Context, chatID int64, messageID int, at time.Time) error {
	_, err := d.sql.ExecContext(ctx, `UPDATE chat_settings SET last_post_message_id=?, last_post_time=? WHERE chat_id=?`, messageID, at.Unix(), chatID)
	return err
}

// UpdateFetchHealth records a scheduled run and its outcome. An empty errMsg
// clears the last error.
func (d *DB) UpdateFetchHealth(ctx context.Context, chatID int64, fetchedAt time.Time, errMsg string) error {
	var errVal any
	if errMsg != "" {
		errVal = errMsg
	}
	_, err := d.sql.ExecContext(ctx, `UPDATE chat_settings SET last_fetch_time=?, last_error=? WHERE chat_id=?`, fetchedAt.Unix(), errVal, chatID)
	return err
}

func requireRow(res sql.Result, chatID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("chat %d: %w", chatID, ErrChatNotFound)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
