package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/Armin-kho/crypto-spread-bot/internal/market"
	"github.com/Armin-kho/crypto-spread-bot/internal/sources"
)

// MinIntervalSec is the shortest reporting interval a chat may use.
const MinIntervalSec = 10

const (
	minRequestTimeout = 100 * time.Millisecond
	minCacheTTL       = time.Second
)

type Config struct {
	BotToken string `mapstructure:"bot_token"`
	DataDir  string `mapstructure:"data_dir"`
	Debug    bool   `mapstructure:"debug"`

	// Defaults for chats that have not changed their own settings.
	Tokens       []string `mapstructure:"tokens"`
	Exchanges    []string `mapstructure:"exchanges"`
	ThresholdPct float64  `mapstructure:"threshold_pct"`
	IntervalSec  int      `mapstructure:"interval_sec"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`

	// Optional shared price cache. Empty address means in-memory.
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	MetricsAddr string `mapstructure:"metrics_addr"`

	// Endpoints overrides exchange base URLs, exchange -> URL.
	Endpoints map[string]string `mapstructure:"endpoints"`
	// Symbols adds or overrides listings, token -> exchange -> instrument id.
	Symbols map[string]map[string]string `mapstructure:"symbols"`
}

func DefaultDataDir() string {
	if v := os.Getenv("CSB_DATA_DIR"); v != "" {
		return v
	}
	return "/var/lib/crypto-spread-bot"
}

func DefaultConfigPath() string {
	if v := os.Getenv("CSB_CONFIG"); v != "" {
		return v
	}
	return "/etc/crypto-spread-bot/config.json"
}

// DBPath is the settings database inside DataDir.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "bot.db")
}

// Load reads the JSON config at path (a missing file is fine), applies env
// overrides and defaults, and validates the result. The bot token is not
// required here; see ValidateBot.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("CSB")
	v.AutomaticEnv()
	bindEnvVars(v)
	setDefaults(v)

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

var decodeHook = mapstructure.ComposeDecodeHookFunc(
	secondsToDurationHook,
	mapstructure.StringToTimeDurationHookFunc(),
	mapstructure.StringToWeakSliceHookFunc(","),
)

var durationType = reflect.TypeOf(time.Duration(0))

// secondsToDurationHook reads a bare number ("request_timeout": 8 or
// CSB_CACHE_TTL=20) as seconds. Strings with a unit go to time.ParseDuration.
func secondsToDurationHook(from, to reflect.Type, data any) (any, error) {
	if to != durationType || from == durationType {
		return data, nil
	}
	var secs float64
	switch from.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		secs = float64(reflect.ValueOf(data).Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		secs = float64(reflect.ValueOf(data).Uint())
	case reflect.Float32, reflect.Float64:
		secs = reflect.ValueOf(data).Float()
	case reflect.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(data.(string)), 64)
		if err != nil {
			return data, nil
		}
		secs = f
	default:
		return data, nil
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// The original bot's names come second so CSB_* wins when both are set.
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("bot_token", "CSB_BOT_TOKEN", "TELEGRAM_BOT_TOKEN", "BOT_TOKEN")
	_ = v.BindEnv("data_dir", "CSB_DATA_DIR", "DATA_DIR")
	_ = v.BindEnv("debug", "CSB_DEBUG")
	_ = v.BindEnv("tokens", "CSB_TOKENS", "TOKENS")
	_ = v.BindEnv("exchanges", "CSB_EXCHANGES", "EXCHANGES")
	_ = v.BindEnv("threshold_pct", "CSB_THRESHOLD_PCT", "THRESHOLD_PCT")
	_ = v.BindEnv("interval_sec", "CSB_INTERVAL_SEC", "INTERVAL_SEC")
	_ = v.BindEnv("request_timeout", "CSB_REQUEST_TIMEOUT")
	_ = v.BindEnv("cache_ttl", "CSB_CACHE_TTL")
	_ = v.BindEnv("redis_addr", "CSB_REDIS_ADDR")
	_ = v.BindEnv("redis_password", "CSB_REDIS_PASSWORD")
	_ = v.BindEnv("redis_db", "CSB_REDIS_DB")
	_ = v.BindEnv("metrics_addr", "CSB_METRICS_ADDR")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("debug", false)
	v.SetDefault("tokens", []string{"BTC", "ETH", "SOL", "BNB"})
	v.SetDefault("exchanges", market.ExchangeStrings(sources.Order))
	v.SetDefault("threshold_pct", 0.5)
	v.SetDefault("interval_sec", 60)
	v.SetDefault("request_timeout", sources.DefaultTimeout)
	v.SetDefault("cache_ttl", 20*time.Second)
	v.SetDefault("redis_db", 0)
}

// Validate normalizes the token and exchange lists and checks ranges.
func (c *Config) Validate() error {
	c.DataDir = filepath.Clean(c.DataDir)

	// Env values arrive as one comma separated element.
	c.Tokens = market.TokenStrings(market.ParseTokens(strings.Join(c.Tokens, ",")))
	if len(c.Tokens) == 0 {
		return errors.New("tokens must not be empty")
	}

	exchanges := market.ParseExchanges(strings.Join(c.Exchanges, ","))
	if len(exchanges) == 0 {
		return errors.New("exchanges must not be empty")
	}
	for _, ex := range exchanges {
		if !sources.Supported(ex) {
			return fmt.Errorf("unsupported exchange %q", ex)
		}
	}
	c.Exchanges = market.ExchangeStrings(exchanges)

	if c.ThresholdPct < 0 {
		return fmt.Errorf("threshold_pct must be >= 0, got %v", c.ThresholdPct)
	}
	if c.IntervalSec < MinIntervalSec {
		return fmt.Errorf("interval_sec must be >= %d, got %d", MinIntervalSec, c.IntervalSec)
	}
	if c.RequestTimeout < minRequestTimeout {
		return fmt.Errorf("request_timeout must be at least %s, got %s", minRequestTimeout, c.RequestTimeout)
	}
	if c.CacheTTL < 0 || (c.CacheTTL > 0 && c.CacheTTL < minCacheTTL) {
		return fmt.Errorf("cache_ttl must be 0 (off) or at least %s, got %s", minCacheTTL, c.CacheTTL)
	}
	for ex := range c.Endpoints {
		if !sources.Supported(market.Exchange(ex)) {
			return fmt.Errorf("endpoint for unsupported exchange %q", ex)
		}
	}
	return nil
}

// ValidateBot additionally requires what the Telegram daemon needs.
func (c *Config) ValidateBot() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.BotToken) == "" {
		return errors.New("missing bot_token (set it in the config file or TELEGRAM_BOT_TOKEN)")
	}
	return nil
}
