package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/raine/review-moderator/internal/llm"
	"github.com/raine/review-moderator/internal/moderation"
)

const (
	AppName     = "review-moderator"
	EnvFileName = "config.env"
)

// Provider names accepted in MODEL_PROVIDER.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Verdict cache backends accepted in VERDICT_CACHE.
const (
	CacheNone   = "none"
	CacheSQLite = "sqlite"
	CacheRedis  = "redis"
)

// Config is the runtime configuration, read from the environment.
type Config struct {
	Provider string

	GeminiAPIKey string
	GeminiModel  string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	OutputMode   llm.OutputMode
	ModelTimeout time.Duration
	Retries      int
	RetryDelay   time.Duration
	DraftMode    moderation.DraftMode

	HTTPAddr string
	DBPath   string

	VerdictCache    string
	VerdictCacheTTL time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	TelegramBotToken string
	TelegramChatID   int64
}

// ConfigPath returns the path of the env file in the user's config
// directory.
func ConfigPath() (string, error) {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configBase, AppName, EnvFileName), nil
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory. Errors are ignored since the file may not exist.
// A .env file in the working directory is loaded first. Variables already
// set in the environment take precedence.
func LoadEnvFile() {
	_ = godotenv.Load()
	configPath, err := ConfigPath()
	if err != nil {
		return
	}
	_ = godotenv.Load(configPath)
}

// Load reads and validates the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Provider:      strings.ToLower(getEnv("MODEL_PROVIDER", ProviderGemini)),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   getEnv("GEMINI_MODEL", llm.DefaultGeminiModel),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:   getEnv("OPENAI_MODEL", llm.DefaultOpenAIModel),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		DBPath:        getEnv("MODERATION_DB_PATH", "moderation.db"),
		VerdictCache:  strings.ToLower(getEnv("VERDICT_CACHE", CacheNone)),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	var errs []error
	var err error

	if cfg.OutputMode, err = llm.ParseOutputMode(os.Getenv("MODEL_OUTPUT_MODE")); err != nil {
		errs = append(errs, fmt.Errorf("MODEL_OUTPUT_MODE: %w", err))
	}
	if cfg.DraftMode, err = moderation.ParseDraftMode(os.Getenv("DRAFT_MODE")); err != nil {
		errs = append(errs, fmt.Errorf("DRAFT_MODE: %w", err))
	}
	if cfg.ModelTimeout, err = getDuration("MODEL_TIMEOUT", moderation.DefaultTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.RetryDelay, err = getDuration("MODEL_RETRY_DELAY", time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.VerdictCacheTTL, err = getDuration("VERDICT_CACHE_TTL", 24*time.Hour); err != nil {
		errs = append(errs, err)
	}
	if cfg.Retries, err = getInt("MODEL_RETRIES", 0); err != nil {
		errs = append(errs, err)
	} else if cfg.Retries < 0 {
		errs = append(errs, errors.New("MODEL_RETRIES must not be negative"))
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		errs = append(errs, err)
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		if cfg.TelegramChatID, err = strconv.ParseInt(chatID, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("TELEGRAM_CHAT_ID must be a valid integer: %w", err))
		}
	}
	if (cfg.TelegramBotToken == "") != (cfg.TelegramChatID == 0) {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together"))
	}

	switch cfg.Provider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini provider"))
		}
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("MODEL_PROVIDER: unknown provider %q, expected gemini or openai", cfg.Provider))
	}

	switch cfg.VerdictCache {
	case CacheNone, CacheSQLite:
	case CacheRedis:
		if cfg.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when VERDICT_CACHE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("VERDICT_CACHE: unknown backend %q, expected none, sqlite or redis", cfg.VerdictCache))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// MissingRequired returns the names of required variables that are unset,
// for the setup wizard.
func MissingRequired() []string {
	var missing []string
	switch strings.ToLower(getEnv("MODEL_PROVIDER", ProviderGemini)) {
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	default:
		if os.Getenv("GEMINI_API_KEY") == "" {
			missing = append(missing, "GEMINI_API_KEY")
		}
	}
	return missing
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 45s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}

// NewProvider creates the model provider selected by cfg.Provider.
func NewProvider(ctx context.Context, cfg *Config) (llm.Provider, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		p, err := llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case ProviderGemini:
		p, err := llm.NewGeminiProvider(ctx, llm.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// InvokerConfig returns the invoker settings from cfg.
func (c *Config) InvokerConfig() moderation.InvokerConfig {
	return moderation.InvokerConfig{
		Mode:       c.OutputMode,
		Timeout:    c.ModelTimeout,
		Retries:    c.Retries,
		RetryDelay: c.RetryDelay,
	}
}
