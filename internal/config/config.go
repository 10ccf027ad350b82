package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the full environment surface of the server and the CLI client.
type Config struct {
	Port          string `envconfig:"API_PORT" default:"3001"`
	Env           string `envconfig:"ENV" default:"development"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"*"`

	// Response generation. UseRules picks the canned topic table; otherwise
	// replies are delegated to the model backend at OllamaURL.
	UseRules    bool   `envconfig:"USE_RULES" default:"true"`
	OllamaURL   string `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	OllamaModel string `envconfig:"OLLAMA_MODEL" default:"llama3.1"`
	PromptsFile string `envconfig:"PROMPTS_FILE" default:"prompts/responder.yaml"`

	// Lead capture.
	WhatsAppPhone string `envconfig:"WHATSAPP_PHONE" default:"919998739029"`

	// Rate limiting. RedisURL switches the entry store to Redis so multiple
	// instances share quotas; empty keeps the in-memory store.
	RateLimitMax    int           `envconfig:"RATE_LIMIT_MAX" default:"20"`
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"10m"`
	SweepInterval   time.Duration `envconfig:"RATE_LIMIT_SWEEP_INTERVAL" default:"5m"`
	RedisURL        string        `envconfig:"REDIS_URL"`

	// CLI client.
	ChatAPIURL  string `envconfig:"CHAT_API_URL" default:"http://localhost:3001"`
	HistoryFile string `envconfig:"CHAT_HISTORY_FILE" default:"data/chat_history.json"`
}

// Load reads .env if present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// IsProduction reports whether the server runs in production mode.
func (c Config) IsProduction() bool { return c.Env == "production" }
