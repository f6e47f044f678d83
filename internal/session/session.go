package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"healthbot/internal/llm"
)

// Difficulty controls summary and quiz complexity.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty validates a difficulty string.
func ParseDifficulty(s string) (Difficulty, error) {
	switch Difficulty(s) {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return Difficulty(s), nil
	default:
		return "", fmt.Errorf("invalid difficulty %q (valid: easy, medium, hard)", s)
	}
}

// State names a position in the fixed workflow pipeline.
type State string

const (
	StateTopicEntry  State = "topic_entry"  // no topic chosen yet
	StateSummarizing State = "summarizing"  // summary ready, quiz not generated
	StateQuizzing    State = "quizzing"     // quiz generated, unanswered questions remain
	StateGrading     State = "grading"      // every question answered, scorecard available
	StateSuggesting  State = "suggesting"   // related topics presented, awaiting next action
)

// Answer records a patient response and its grading.
type Answer struct {
	Response string `json:"response"`
	Correct  bool   `json:"correct"`
	Feedback string `json:"feedback"`
}

// Score is the running quiz result.
type Score struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Session is one patient's in-progress learning interaction. It is created
// at topic entry, mutated through each workflow step, and discarded at
// session end or topic change. Callers interact with one session from a
// single goroutine at a time.
type Session struct {
	ID            uuid.UUID      `json:"id"`
	State         State          `json:"state"`
	Topic         string         `json:"topic,omitempty"`
	Difficulty    Difficulty     `json:"difficulty,omitempty"`
	Summary       string         `json:"summary,omitempty"`
	Quiz          []llm.Question `json:"quiz,omitempty"`
	Answers       map[int]Answer `json:"answers,omitempty"`
	RelatedTopics []string       `json:"related_topics,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// New creates a session at topic entry.
func New() *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.New(),
		State:     StateTopicEntry,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Reset returns the session to topic entry, keeping only its identity.
func (s *Session) Reset() {
	s.State = StateTopicEntry
	s.Topic = ""
	s.Difficulty = ""
	s.Summary = ""
	s.Quiz = nil
	s.Answers = nil
	s.RelatedTopics = nil
	s.UpdatedAt = time.Now().UTC()
}

// Score counts correct answers against the quiz length.
func (s *Session) Score() Score {
	sc := Score{Total: len(s.Quiz)}
	for _, a := range s.Answers {
		if a.Correct {
			sc.Correct++
		}
	}
	return sc
}

// Answered reports whether question idx has been graded.
func (s *Session) Answered(idx int) bool {
	_, ok := s.Answers[idx]
	return ok
}

// QuizComplete reports whether every question has been answered.
func (s *Session) QuizComplete() bool {
	return len(s.Quiz) > 0 && len(s.Answers) == len(s.Quiz)
}

// Clone returns a deep copy so stores never hand out aliased state.
func (s *Session) Clone() *Session {
	out := *s
	out.Quiz = make([]llm.Question, len(s.Quiz))
	copy(out.Quiz, s.Quiz)
	for i, q := range s.Quiz {
		out.Quiz[i].Choices = append([]string(nil), q.Choices...)
	}
	if s.Answers != nil {
		out.Answers = make(map[int]Answer, len(s.Answers))
		for k, v := range s.Answers {
			out.Answers[k] = v
		}
	}
	out.RelatedTopics = append([]string(nil), s.RelatedTopics...)
	return &out
}

// ErrNotFound marks a session id with no live session behind it.
var ErrNotFound = errors.New("session not found")

// Store defines the session persistence contract. Providers: in-process map
// (default), Redis, Postgres.
type Store interface {
	Create(ctx context.Context) (*Session, error)
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id uuid.UUID) error
	Close() error
}
