package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the GreenEye server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AI       AIConfig
	Batch    BatchConfig
	Storage  StorageConfig
}

// ServerConfig covers the HTTP surface. BootstrapAdminKey, when set, is stored
// as an admin key for the default tenant when it has no active keys.
type ServerConfig struct {
	Port              int
	Env               string
	RateLimitPerMin   int
	ShutdownDeadline  time.Duration
	BootstrapAdminKey string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	RequestsPerSec   float64
	Burst            int
	MaxRetries       int
	MaxTokens        int
	VLLM             VLLMConfig
	Ollama           OllamaConfig
	OpenAI           OpenAIConfig
	Anthropic        AnthropicConfig
}

type VLLMConfig struct {
	BaseURL string
	Model   string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// BatchConfig bounds the orchestrator.
type BatchConfig struct {
	MaxImages       int
	Workers         int
	FinalizeTimeout time.Duration
	StatusTTL       time.Duration
}

// StorageConfig is optional. With an empty Bucket only absolute image URLs are accepted.
type StorageConfig struct {
	Bucket     string
	Region     string
	PresignTTL time.Duration
}

var validProviders = map[string]bool{
	"vllm":      true,
	"ollama":    true,
	"openai":    true,
	"anthropic": true,
	"mock":      true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:              envInt("GREENEYE_PORT", 8080),
			Env:               envString("GREENEYE_ENV", "development"),
			RateLimitPerMin:   envInt("GREENEYE_RATE_LIMIT_PER_MIN", 60),
			ShutdownDeadline:  envDuration("GREENEYE_SHUTDOWN_DEADLINE", 30*time.Second),
			BootstrapAdminKey: os.Getenv("GREENEYE_BOOTSTRAP_ADMIN_KEY"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		AI: AIConfig{
			Provider:         os.Getenv("AI_PROVIDER"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			RequestsPerSec:   envFloat("AI_REQUESTS_PER_SEC", 5),
			Burst:            envInt("AI_BURST", 5),
			MaxRetries:       envInt("AI_MAX_RETRIES", 0),
			MaxTokens:        envInt("AI_MAX_TOKENS", 800),
			VLLM: VLLMConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000/v1"),
				Model:   envString("VLLM_MODEL", ""),
			},
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llava"),
			},
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o"),
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			},
			Anthropic: AnthropicConfig{
				APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
				Model:   envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
				BaseURL: envString("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
			},
		},
		Batch: BatchConfig{
			MaxImages:       envInt("BATCH_MAX_IMAGES", 10),
			Workers:         envInt("BATCH_WORKERS", 4),
			FinalizeTimeout: envDuration("BATCH_FINALIZE_TIMEOUT", 30*time.Second),
			StatusTTL:       envDuration("BATCH_STATUS_TTL", 30*time.Minute),
		},
		Storage: StorageConfig{
			Bucket:     os.Getenv("S3_BUCKET"),
			Region:     envString("S3_REGION", "us-east-1"),
			PresignTTL: envDuration("S3_PRESIGN_TTL", 15*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of openai, anthropic, vllm, ollama, mock; got %q", c.AI.Provider)
	}

	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.Provider == "vllm" {
		if c.AI.VLLM.Model == "" {
			return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
		}
		if !strings.HasPrefix(c.AI.VLLM.BaseURL, "http://") && !strings.HasPrefix(c.AI.VLLM.BaseURL, "https://") {
			return fmt.Errorf("VLLM_BASE_URL must start with http:// or https://, got %q", c.AI.VLLM.BaseURL)
		}
	}

	if c.AI.RequestsPerSec <= 0 {
		return fmt.Errorf("AI_REQUESTS_PER_SEC must be positive, got %v", c.AI.RequestsPerSec)
	}
	if c.AI.Burst < 1 {
		return fmt.Errorf("AI_BURST must be at least 1, got %d", c.AI.Burst)
	}
	if c.AI.MaxRetries < 0 {
		return fmt.Errorf("AI_MAX_RETRIES must not be negative, got %d", c.AI.MaxRetries)
	}

	if c.Batch.MaxImages < 1 {
		return fmt.Errorf("BATCH_MAX_IMAGES must be at least 1, got %d", c.Batch.MaxImages)
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("BATCH_WORKERS must be at least 1, got %d", c.Batch.Workers)
	}

	if k := c.Server.BootstrapAdminKey; k != "" && len(k) < 16 {
		return fmt.Errorf("GREENEYE_BOOTSTRAP_ADMIN_KEY must be at least 16 characters")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
