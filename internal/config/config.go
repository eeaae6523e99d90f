package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	APIPort     string
	MetricsPort string
	LogLevel    string

	LLMProvider   string
	OpenAIBaseURL string
	OpenAIAPIKey  string
	OpenAIModel   string
	OllamaURL     string
	OllamaModel   string

	StoreDriver         string
	StoreURL            string
	StoreToken          string
	StoreDSN            string
	StoreRateLimitRPS   float64
	StoreRateLimitBurst int
	StoreRetryAttempts  int
	StoreRetryInitial   time.Duration
	StoreRetryMax       time.Duration
	StoreRetryJitter    time.Duration

	RenderEnabled       bool
	ChromePath          string
	AcquireMaxChars     int
	AcquireProfilesFile string

	RedisAddr       string
	ContentCacheTTL time.Duration

	NATSURL     string
	NATSSubject string

	RunTimeout     time.Duration
	AcquireTimeout time.Duration
	RenderTimeout  time.Duration
	FetchTimeout   time.Duration
	ModelTimeout   time.Duration
	PersistTimeout time.Duration
	StoreTimeout   time.Duration

	APIRateLimitRPS   float64
	APIRateLimitBurst int
	MaxUploadBytes    int64
}

func Load() Config {
	return Config{
		APIPort:     mustEnv("API_PORT", "8080"),
		MetricsPort: mustEnv("METRICS_PORT", "9090"),
		LogLevel:    mustEnv("LOG_LEVEL", "info"),

		LLMProvider:   mustEnv("LLM_PROVIDER", "openai"),
		OpenAIBaseURL: mustEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIAPIKey:  mustEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   mustEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OllamaURL:     mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:   mustEnv("OLLAMA_MODEL", "llama3.2-vision"),

		StoreDriver:         mustEnv("STORE_DRIVER", "sqlite"),
		StoreURL:            mustEnv("STORE_URL", ""),
		StoreToken:          mustEnv("STORE_TOKEN", ""),
		StoreDSN:            mustEnv("STORE_DSN", "./data/listify.db"),
		StoreRateLimitRPS:   mustEnvFloat("STORE_RATE_LIMIT_RPS", 0),
		StoreRateLimitBurst: mustEnvInt("STORE_RATE_LIMIT_BURST", 1),
		StoreRetryAttempts:  mustEnvInt("STORE_RETRY_ATTEMPTS", 4),
		StoreRetryInitial:   mustEnvDuration("STORE_RETRY_INITIAL_BACKOFF", 200*time.Millisecond),
		StoreRetryMax:       mustEnvDuration("STORE_RETRY_MAX_BACKOFF", 2*time.Second),
		StoreRetryJitter:    mustEnvDuration("STORE_RETRY_JITTER", 100*time.Millisecond),

		RenderEnabled:       mustEnvBool("RENDER_ENABLED", true),
		ChromePath:          mustEnv("CHROME_PATH", ""),
		AcquireMaxChars:     mustEnvInt("ACQUIRE_MAX_CHARS", 20000),
		AcquireProfilesFile: mustEnv("ACQUIRE_PROFILES_FILE", ""),

		RedisAddr:       mustEnv("REDIS_ADDR", ""),
		ContentCacheTTL: mustEnvDuration("CONTENT_CACHE_TTL", time.Hour),

		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "listify.list.created"),

		RunTimeout:     mustEnvDuration("RUN_TIMEOUT", 3*time.Minute),
		AcquireTimeout: mustEnvDuration("ACQUIRE_TIMEOUT", 60*time.Second),
		RenderTimeout:  mustEnvDuration("RENDER_TIMEOUT", 30*time.Second),
		FetchTimeout:   mustEnvDuration("FETCH_TIMEOUT", 20*time.Second),
		ModelTimeout:   mustEnvDuration("MODEL_TIMEOUT", 90*time.Second),
		PersistTimeout: mustEnvDuration("PERSIST_TIMEOUT", 30*time.Second),
		StoreTimeout:   mustEnvDuration("STORE_TIMEOUT", 10*time.Second),

		APIRateLimitRPS:   mustEnvFloat("API_RATE_LIMIT_RPS", 5),
		APIRateLimitBurst: mustEnvInt("API_RATE_LIMIT_BURST", 10),
		MaxUploadBytes:    int64(mustEnvInt("MAX_UPLOAD_BYTES", 20<<20)),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// mustEnvDuration accepts Go durations ("1500ms") and bare integers as seconds.
func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}
