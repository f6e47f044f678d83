package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Config holds runtime configuration for both front ends.
type Config struct {
	// Server
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Required credentials; startup fails without them.
	OpenAIKey    string `env:"OPENAI_API_KEY"`
	TavilyKey    string `env:"TAVILY_API_KEY"`
	LLMModel     string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	TavilyURL    string `env:"TAVILY_URL" envDefault:"https://api.tavily.com/search"`

	// Workflow limits
	SearchMaxResults int `env:"SEARCH_MAX_RESULTS" envDefault:"5"`
	MaxQuizQuestions int `env:"MAX_QUIZ_QUESTIONS" envDefault:"5"`

	// Sessions
	SessionStore string `env:"SESSION_STORE" envDefault:"memory"` // "memory", "redis" or "postgres"
	SessionTTL   int    `env:"SESSION_TTL" envDefault:"3600"`     // seconds of inactivity before eviction
	RedisAddr    string `env:"REDIS_ADDR"`
	RedisPass    string `env:"REDIS_PASSWORD"`
	DBURL        string `env:"DB_URL"`

	// Events
	EventsProvider string `env:"EVENTS_PROVIDER" envDefault:"noop"` // "nats" or "noop"
	NATSURL        string `env:"NATS_URL"`
}

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the values a running instance cannot do without.
func (c Config) Validate() error {
	if c.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.TavilyKey == "" {
		return fmt.Errorf("TAVILY_API_KEY is required")
	}
	if c.SearchMaxResults <= 0 {
		return fmt.Errorf("SEARCH_MAX_RESULTS must be positive, got %d", c.SearchMaxResults)
	}
	if c.MaxQuizQuestions <= 0 {
		return fmt.Errorf("MAX_QUIZ_QUESTIONS must be positive, got %d", c.MaxQuizQuestions)
	}
	return nil
}
