package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/openai/openai-go/v3"

	"healthbot/internal/config"
	"healthbot/internal/events"
	"healthbot/internal/llm"
	"healthbot/internal/logger"
	"healthbot/internal/search"
	"healthbot/internal/session"
	"healthbot/internal/workflow"
)

// Deps bundles runtime dependencies for the web front end.
type Deps struct {
	Config   config.Config
	Log      *slog.Logger
	Sessions session.Store
	Workflow *workflow.Controller
}

// CLIDeps bundles what the terminal front end needs; it drives a single
// local session and never touches a session store.
type CLIDeps struct {
	Config   config.Config
	Log      *slog.Logger
	Workflow *workflow.Controller
}

// Build loads env, config, and shared components for the web server.
func Build() (Deps, error) {
	cfg, log, ctrl, err := buildCommon()
	if err != nil {
		return Deps{}, err
	}
	sessions, err := buildSessions(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize session store: %w", err)
	}
	return Deps{
		Config:   cfg,
		Log:      log,
		Sessions: sessions,
		Workflow: ctrl,
	}, nil
}

// BuildCLI loads env, config, and shared components for the terminal REPL.
func BuildCLI() (CLIDeps, error) {
	cfg, log, ctrl, err := buildCommon()
	if err != nil {
		return CLIDeps{}, err
	}
	return CLIDeps{
		Config:   cfg,
		Log:      log,
		Workflow: ctrl,
	}, nil
}

func buildCommon() (config.Config, *slog.Logger, *workflow.Controller, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log := logger.New(cfg.LogLevel)

	searchClient, err := search.NewTavilyClient(cfg.TavilyKey, cfg.TavilyURL, cfg.SearchMaxResults)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("failed to initialize search client: %w", err)
	}
	llmClient, err := llm.NewOpenAIClient(cfg.OpenAIKey, openai.ChatModel(cfg.LLMModel))
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	log.Info("using OpenAI LLM client", "model", cfg.LLMModel)

	publisher, err := buildEvents(cfg, log)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("failed to initialize event publisher: %w", err)
	}

	ctrl := workflow.New(searchClient, llmClient, publisher, log, cfg.MaxQuizQuestions)
	return cfg, log, ctrl, nil
}

func buildSessions(cfg config.Config, log *slog.Logger) (session.Store, error) {
	ttl := time.Duration(cfg.SessionTTL) * time.Second
	switch cfg.SessionStore {
	case "memory":
		log.Info("using in-memory session store", "ttl", ttl)
		return session.NewMemory(ttl), nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required when SESSION_STORE=redis")
		}
		store, err := session.NewRedis(cfg.RedisAddr, cfg.RedisPass, ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis session store: %w", err)
		}
		log.Info("using Redis session store", "addr", cfg.RedisAddr, "ttl", ttl)
		return store, nil
	case "postgres":
		if cfg.DBURL == "" {
			return nil, fmt.Errorf("DB_URL is required when SESSION_STORE=postgres")
		}
		store, err := session.NewPostgres(cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres session store: %w", err)
		}
		log.Info("using Postgres session store")
		return store, nil
	default:
		return nil, fmt.Errorf("invalid SESSION_STORE: %s (valid options: memory, redis, postgres)", cfg.SessionStore)
	}
}

func buildEvents(cfg config.Config, log *slog.Logger) (events.Publisher, error) {
	switch cfg.EventsProvider {
	case "noop":
		return events.NewNoOp(), nil
	case "nats":
		if cfg.NATSURL == "" {
			return nil, fmt.Errorf("NATS_URL is required when EVENTS_PROVIDER=nats")
		}
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		log.Info("publishing workflow events to NATS", "url", cfg.NATSURL)
		return events.NewNATS(nc), nil
	default:
		return nil, fmt.Errorf("invalid EVENTS_PROVIDER: %s (valid options: noop, nats)", cfg.EventsProvider)
	}
}
