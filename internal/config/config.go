package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/viper"
)

const (
	EnvPrefix = "BRIDGE"

	DefaultAssistantID = "asst_3M2ZQIU1n6kiRzLFrdKpCVTW"
)

type StorageBackend string

const (
	StorageMemory    StorageBackend = "memory"
	StorageFirestore StorageBackend = "firestore"
	StorageRedis     StorageBackend = "redis"
	StorageSQLite    StorageBackend = "sqlite"
)

type TelegramMode string

const (
	TelegramPolling TelegramMode = "polling"
	TelegramWebhook TelegramMode = "webhook"
)

var ErrMissingCredential = errors.New("missing required credential")

type Config struct {
	Log struct {
		Level  string
		Format string
	}

	Telegram struct {
		Token         string
		Mode          TelegramMode
		APIBase       string
		PollTimeout   time.Duration
		WebhookURL    string
		WebhookSecret string
	}

	Gateway struct {
		APIKey         string
		BaseURL        string
		AssistantID    string
		UseMock        bool
		MaxInFlight    int
		RPS            float64
		RequestTimeout time.Duration
	}

	// Tool names attached to every run, e.g. "code_interpreter".
	AssistantTools []string

	Poll struct {
		MaxAttempts int
		Interval    time.Duration
	}

	Storage struct {
		Backend          StorageBackend
		FirestoreProject string
		RedisAddr        string
		RedisPassword    string
		RedisDB          int
		RedisPrefix      string
		SQLiteDSN        string
	}

	HTTP struct {
		Enabled bool
		Addr    string
		// APIToken guards the /v1 API; the API is off while it is empty.
		APIToken string
	}
}

// SetDefaults registers defaults and environment bindings on v.
// The three credentials keep the plain names used by deployments of the bot.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("telegram.mode", string(TelegramPolling))
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.poll_timeout", 30*time.Second)

	v.SetDefault("gateway.assistant_id", DefaultAssistantID)
	v.SetDefault("gateway.max_inflight", 8)
	v.SetDefault("gateway.rps", 0.0)
	v.SetDefault("gateway.request_timeout", 60*time.Second)
	v.SetDefault("gateway.use_mock", false)

	v.SetDefault("assistant.tools", []string{})

	v.SetDefault("poll.max_attempts", 20)
	v.SetDefault("poll.interval", time.Second)

	v.SetDefault("storage.backend", string(StorageMemory))
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.prefix", "tg-assistant")
	v.SetDefault("sqlite.dsn", "file:sessions.db?_busy_timeout=5000")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8080")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("telegram.token", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("gateway.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("gateway.assistant_id", "ASSISTANT_ID")
}

// Load builds a Config from v. It does not validate; see Validate.
func Load(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Format = v.GetString("log.format")

	cfg.Telegram.Token = strings.TrimSpace(v.GetString("telegram.token"))
	cfg.Telegram.Mode = TelegramMode(strings.ToLower(strings.TrimSpace(v.GetString("telegram.mode"))))
	cfg.Telegram.APIBase = v.GetString("telegram.api_base")
	cfg.Telegram.PollTimeout = v.GetDuration("telegram.poll_timeout")
	cfg.Telegram.WebhookURL = v.GetString("telegram.webhook_url")
	cfg.Telegram.WebhookSecret = v.GetString("telegram.webhook_secret")

	cfg.Gateway.APIKey = strings.TrimSpace(v.GetString("gateway.api_key"))
	cfg.Gateway.BaseURL = v.GetString("gateway.base_url")
	cfg.Gateway.AssistantID = strings.TrimSpace(v.GetString("gateway.assistant_id"))
	if cfg.Gateway.AssistantID == "" {
		cfg.Gateway.AssistantID = DefaultAssistantID
	}
	cfg.Gateway.UseMock = v.GetBool("gateway.use_mock")
	cfg.Gateway.MaxInFlight = v.GetInt("gateway.max_inflight")
	cfg.Gateway.RPS = v.GetFloat64("gateway.rps")
	cfg.Gateway.RequestTimeout = v.GetDuration("gateway.request_timeout")

	cfg.AssistantTools = stringList(v.GetStringSlice("assistant.tools"))

	cfg.Poll.MaxAttempts = v.GetInt("poll.max_attempts")
	cfg.Poll.Interval = v.GetDuration("poll.interval")

	cfg.Storage.Backend = StorageBackend(strings.ToLower(strings.TrimSpace(v.GetString("storage.backend"))))
	cfg.Storage.FirestoreProject = v.GetString("firestore.project")
	cfg.Storage.RedisAddr = v.GetString("redis.addr")
	cfg.Storage.RedisPassword = v.GetString("redis.password")
	cfg.Storage.RedisDB = v.GetInt("redis.db")
	cfg.Storage.RedisPrefix = v.GetString("redis.prefix")
	cfg.Storage.SQLiteDSN = v.GetString("sqlite.dsn")

	cfg.HTTP.Enabled = v.GetBool("http.enabled")
	cfg.HTTP.Addr = v.GetString("http.addr")
	cfg.HTTP.APIToken = strings.TrimSpace(v.GetString("http.api_token"))

	return cfg
}

// stringList splits entries on commas as well, so that env values like
// "code_interpreter,file_search" yield one item per name.
func stringList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.FieldsFunc(s, func(r rune) bool {
			return r == ',' || unicode.IsSpace(r)
		})...)
	}
	return out
}

// Validate checks the settings needed to serve traffic.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("%w: TELEGRAM_BOT_TOKEN", ErrMissingCredential)
	}
	if c.Gateway.APIKey == "" && !c.Gateway.UseMock {
		return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingCredential)
	}
	return c.validateCommon()
}

// ValidateGateway checks only what the admin commands need.
func (c *Config) ValidateGateway() error {
	if c.Gateway.APIKey == "" && !c.Gateway.UseMock {
		return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingCredential)
	}
	return nil
}

func (c *Config) validateCommon() error {
	switch c.Telegram.Mode {
	case TelegramPolling:
	case TelegramWebhook:
		if !c.HTTP.Enabled {
			return errors.New("telegram webhook mode requires http.enabled")
		}
	default:
		return fmt.Errorf("unknown telegram.mode: %q", c.Telegram.Mode)
	}

	switch c.Storage.Backend {
	case StorageMemory, StorageRedis, StorageSQLite:
	case StorageFirestore:
		if c.Storage.FirestoreProject == "" {
			return errors.New("firestore.project is required for the firestore storage backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend: %q", c.Storage.Backend)
	}

	if c.Poll.MaxAttempts <= 0 {
		return errors.New("poll.max_attempts must be positive")
	}
	if c.Poll.Interval < 0 {
		return errors.New("poll.interval must not be negative")
	}
	if c.Gateway.MaxInFlight <= 0 {
		return errors.New("gateway.max_inflight must be positive")
	}
	return nil
}
