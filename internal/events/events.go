package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"healthbot/internal/retry"
)

// Type enumerates workflow lifecycle events.
type Type string

const (
	TypeTopicStarted  Type = "topic_started"
	TypeQuizGenerated Type = "quiz_generated"
	TypeAnswerGraded  Type = "answer_graded"
	TypeSessionReset  Type = "session_reset"
)

// Event is a fire-and-forget notification about a workflow step. Consumers
// are external; nothing in this process depends on delivery.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	Type      Type           `json:"type"`
	SessionID uuid.UUID      `json:"session_id"`
	At        time.Time      `json:"at"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Publisher exposes a minimal contract to emit events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PublishWithRetry publishes with exponential backoff. Event delivery is
// best-effort; the caller decides whether to log the returned error.
func PublishWithRetry(ctx context.Context, p Publisher, ev Event, attempts int, base time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = p.Publish(ctx, ev); err == nil {
			return nil
		}
		if attempt == attempts-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry.ExponentialBackoff(attempt, base, 0)):
		}
	}
	return err
}
