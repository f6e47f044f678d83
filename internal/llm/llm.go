package llm

import (
	"context"
	"errors"

	"healthbot/internal/search"
)

// ErrMalformedOutput marks model responses that could not be parsed into the
// expected structure. Callers may retry the same step.
var ErrMalformedOutput = errors.New("malformed model output")

// Question is one quiz item. Immutable once generated; the expected answer
// never leaves the server.
type Question struct {
	Prompt         string   `json:"question"`
	ExpectedAnswer string   `json:"expected_answer"`
	Choices        []string `json:"choices,omitempty"`
}

// Feedback is the grader's verdict on a patient answer.
type Feedback struct {
	Correct  bool   `json:"correct"`
	Feedback string `json:"feedback"`
}

// Client is a minimal LLM interface to allow pluggable providers. Every
// method is a stateless call: typed input in, typed output out, no caching.
type Client interface {
	// Summarize turns ranked search results into a patient-friendly summary
	// at the requested difficulty (easy, medium, hard).
	Summarize(ctx context.Context, topic string, results []search.Result, difficulty string) (string, error)

	// GenerateQuiz produces up to n comprehension questions about the summary.
	GenerateQuiz(ctx context.Context, topic, summary, difficulty string, n int) ([]Question, error)

	// Grade judges a patient answer against the expected answer.
	Grade(ctx context.Context, question, expected, answer string) (Feedback, error)

	// RelatedTopics suggests follow-up topics for a summarized topic.
	RelatedTopics(ctx context.Context, topic, summary string) ([]string, error)
}
