package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// Save original env and restore after test
	originalEnv := os.Environ()
	defer func() {
		os.Clearenv()
		for _, env := range originalEnv {
			for i, c := range env {
				if c == '=' {
					os.Setenv(env[:i], env[i+1:])
					break
				}
			}
		}
	}()

	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"Port", cfg.Port, 8080},
		{"LogLevel", cfg.LogLevel, "info"},
		{"LLMModel", cfg.LLMModel, "gpt-4o-mini"},
		{"SearchMaxResults", cfg.SearchMaxResults, 5},
		{"MaxQuizQuestions", cfg.MaxQuizQuestions, 5},
		{"SessionStore", cfg.SessionStore, "memory"},
		{"SessionTTL", cfg.SessionTTL, 3600},
		{"EventsProvider", cfg.EventsProvider, "noop"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("expected %s=%v, got %v", tt.name, tt.expected, tt.got)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	originalPort := os.Getenv("PORT")
	originalStore := os.Getenv("SESSION_STORE")
	defer func() {
		os.Setenv("PORT", originalPort)
		os.Setenv("SESSION_STORE", originalStore)
	}()

	os.Setenv("PORT", "9090")
	os.Setenv("SESSION_STORE", "redis")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.SessionStore != "redis" {
		t.Errorf("expected session store 'redis', got %s", cfg.SessionStore)
	}
}

func TestValidateRequiresCredentials(t *testing.T) {
	cfg := Config{SearchMaxResults: 5, MaxQuizQuestions: 5}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing OPENAI_API_KEY")
	}

	cfg.OpenAIKey = "sk-test"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing TAVILY_API_KEY")
	}

	cfg.TavilyKey = "tvly-test"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsNonPositiveLimits(t *testing.T) {
	cfg := Config{OpenAIKey: "a", TavilyKey: "b", SearchMaxResults: 0, MaxQuizQuestions: 5}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for SEARCH_MAX_RESULTS=0")
	}
	cfg.SearchMaxResults = 5
	cfg.MaxQuizQuestions = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative MAX_QUIZ_QUESTIONS")
	}
}
