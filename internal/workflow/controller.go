// Package workflow sequences the HealthBot pipeline: search, summarize,
// quiz, grade, suggest. It is a plain state machine over an explicit
// session handle; there is no scheduler and no automatic retry. A failed
// step leaves the session where it was so the same step can be retried.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"healthbot/internal/events"
	"healthbot/internal/llm"
	"healthbot/internal/search"
	"healthbot/internal/session"
)

var (
	// ErrInvalidState marks a workflow operation invoked out of sequence.
	ErrInvalidState = errors.New("operation invalid in current workflow state")

	// ErrExternalService marks a failed search or LLM call. The step can be
	// retried manually.
	ErrExternalService = errors.New("external service call failed")

	// ErrInvalidArgument marks caller input outside the configured bounds.
	ErrInvalidArgument = errors.New("invalid argument")
)

const (
	publishAttempts = 3
	publishBackoff  = 100 * time.Millisecond
)

// Controller runs workflow steps against a session. It holds no per-session
// state itself; every method takes the session handle it mutates.
type Controller struct {
	search       search.Client
	llm          llm.Client
	events       events.Publisher
	log          *slog.Logger
	maxQuestions int
}

// New builds a controller. maxQuestions bounds GenerateQuiz requests.
func New(searchClient search.Client, llmClient llm.Client, publisher events.Publisher, log *slog.Logger, maxQuestions int) *Controller {
	if maxQuestions <= 0 {
		maxQuestions = 5
	}
	return &Controller{
		search:       searchClient,
		llm:          llmClient,
		events:       publisher,
		log:          log,
		maxQuestions: maxQuestions,
	}
}

// MaxQuestions returns the configured quiz size bound.
func (c *Controller) MaxQuestions() int {
	return c.maxQuestions
}

// StartTopic searches for the topic and summarizes the results at the
// requested difficulty. Valid only at topic entry; Reset first to switch
// topics.
func (c *Controller) StartTopic(ctx context.Context, s *session.Session, topic, difficulty string) (string, error) {
	if s.State != session.StateTopicEntry {
		return "", fmt.Errorf("%w: topic already started (state %q)", ErrInvalidState, s.State)
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", fmt.Errorf("%w: topic required", ErrInvalidArgument)
	}
	diff, err := session.ParseDifficulty(difficulty)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	results, err := c.search.Search(ctx, topic)
	if err != nil {
		return "", fmt.Errorf("%w: search: %v", ErrExternalService, err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("%w: search returned no sources for %q", ErrExternalService, topic)
	}

	summary, err := c.llm.Summarize(ctx, topic, results, string(diff))
	if err != nil {
		return "", c.wrapLLM("summarize", err)
	}

	s.Topic = topic
	s.Difficulty = diff
	s.Summary = summary
	s.State = session.StateSummarizing

	c.publish(ctx, s, events.TypeTopicStarted, map[string]any{
		"topic":      topic,
		"difficulty": string(diff),
		"sources":    len(results),
	})
	return summary, nil
}

// GenerateQuiz asks the model for n questions about the current summary.
// Under-delivery is accepted and logged; over-delivery is trimmed to n.
func (c *Controller) GenerateQuiz(ctx context.Context, s *session.Session, n int) ([]llm.Question, error) {
	if s.State != session.StateSummarizing {
		return nil, fmt.Errorf("%w: no summary to quiz on (state %q)", ErrInvalidState, s.State)
	}
	if n < 1 || n > c.maxQuestions {
		return nil, fmt.Errorf("%w: question count must be between 1 and %d, got %d", ErrInvalidArgument, c.maxQuestions, n)
	}

	questions, err := c.llm.GenerateQuiz(ctx, s.Topic, s.Summary, string(s.Difficulty), n)
	if err != nil {
		return nil, c.wrapLLM("generate quiz", err)
	}
	if len(questions) > n {
		c.log.Warn("model over-delivered quiz questions, trimming", "requested", n, "got", len(questions))
		questions = questions[:n]
	}
	if len(questions) < n {
		c.log.Warn("model under-delivered quiz questions", "requested", n, "got", len(questions))
	}

	s.Quiz = questions
	s.Answers = make(map[int]session.Answer, len(questions))
	s.State = session.StateQuizzing

	c.publish(ctx, s, events.TypeQuizGenerated, map[string]any{
		"requested": n,
		"generated": len(questions),
	})
	return questions, nil
}

// SubmitAnswer grades the patient answer to question idx. Empty answers are
// incorrect and exact matches correct without a grader call; everything else
// goes to the model. After the last answer the session moves to grading.
func (c *Controller) SubmitAnswer(ctx context.Context, s *session.Session, idx int, answer string) (llm.Feedback, error) {
	if s.State != session.StateQuizzing {
		return llm.Feedback{}, fmt.Errorf("%w: no quiz in progress (state %q)", ErrInvalidState, s.State)
	}
	if idx < 0 || idx >= len(s.Quiz) {
		return llm.Feedback{}, fmt.Errorf("%w: question index %d out of range", ErrInvalidArgument, idx)
	}
	if s.Answered(idx) {
		return llm.Feedback{}, fmt.Errorf("%w: question %d already answered", ErrInvalidState, idx+1)
	}

	question := s.Quiz[idx]
	fb, err := c.grade(ctx, question, answer)
	if err != nil {
		return llm.Feedback{}, err
	}

	s.Answers[idx] = session.Answer{
		Response: answer,
		Correct:  fb.Correct,
		Feedback: fb.Feedback,
	}
	if s.QuizComplete() {
		s.State = session.StateGrading
	}

	c.publish(ctx, s, events.TypeAnswerGraded, map[string]any{
		"question": idx + 1,
		"correct":  fb.Correct,
	})
	return fb, nil
}

func (c *Controller) grade(ctx context.Context, q llm.Question, answer string) (llm.Feedback, error) {
	if strings.TrimSpace(answer) == "" {
		return llm.Feedback{
			Correct:  false,
			Feedback: "No answer was given. The expected answer was: " + q.ExpectedAnswer,
		}, nil
	}
	if normalize(answer) == normalize(q.ExpectedAnswer) {
		return llm.Feedback{
			Correct:  true,
			Feedback: "That's exactly right!",
		}, nil
	}
	fb, err := c.llm.Grade(ctx, q.Prompt, q.ExpectedAnswer, answer)
	if err != nil {
		return llm.Feedback{}, c.wrapLLM("grade answer", err)
	}
	return fb, nil
}

// RelatedTopics suggests follow-up topics. Valid once a summary exists; the
// quiz may be skipped. The current topic never appears in the result.
func (c *Controller) RelatedTopics(ctx context.Context, s *session.Session) ([]string, error) {
	switch s.State {
	case session.StateSummarizing, session.StateGrading, session.StateSuggesting:
	default:
		return nil, fmt.Errorf("%w: no summary yet (state %q)", ErrInvalidState, s.State)
	}

	topics, err := c.llm.RelatedTopics(ctx, s.Topic, s.Summary)
	if err != nil {
		return nil, c.wrapLLM("suggest related topics", err)
	}
	topics = excludeTopic(topics, s.Topic)
	if len(topics) == 0 {
		return nil, fmt.Errorf("%w: model suggested nothing beyond the current topic", llm.ErrMalformedOutput)
	}

	s.RelatedTopics = topics
	s.State = session.StateSuggesting
	return topics, nil
}

// QuestionResult pairs a quiz question with its graded answer.
type QuestionResult struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
	Correct  bool   `json:"correct"`
	Feedback string `json:"feedback"`
}

// Results is the scorecard shown after the last answer.
type Results struct {
	Items []QuestionResult `json:"items"`
	Score session.Score    `json:"score"`
}

// Results builds the scorecard. Valid once every question is answered.
func (c *Controller) Results(s *session.Session) (Results, error) {
	switch s.State {
	case session.StateGrading, session.StateSuggesting:
	default:
		return Results{}, fmt.Errorf("%w: quiz not finished (state %q)", ErrInvalidState, s.State)
	}
	if !s.QuizComplete() {
		return Results{}, fmt.Errorf("%w: quiz not finished", ErrInvalidState)
	}

	res := Results{Score: s.Score()}
	for i, q := range s.Quiz {
		a := s.Answers[i]
		res.Items = append(res.Items, QuestionResult{
			Prompt:   q.Prompt,
			Response: a.Response,
			Correct:  a.Correct,
			Feedback: a.Feedback,
		})
	}
	return res, nil
}

// Reset returns the session to topic entry so a new topic can start.
func (c *Controller) Reset(ctx context.Context, s *session.Session) {
	s.Reset()
	c.publish(ctx, s, events.TypeSessionReset, nil)
}

// wrapLLM keeps malformed-output errors recognizable and classifies the
// rest as external service failures.
func (c *Controller) wrapLLM(op string, err error) error {
	if errors.Is(err, llm.ErrMalformedOutput) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrExternalService, op, err)
}

// publish emits a lifecycle event; delivery is best-effort and never fails
// the workflow step.
func (c *Controller) publish(ctx context.Context, s *session.Session, t events.Type, fields map[string]any) {
	ev := events.Event{Type: t, SessionID: s.ID, Fields: fields}
	if err := events.PublishWithRetry(ctx, c.events, ev, publishAttempts, publishBackoff); err != nil {
		c.log.Warn("failed to publish event", "type", t, "err", err)
	}
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// excludeTopic drops suggestions matching the current topic verbatim (case
// and surrounding space insensitive).
func excludeTopic(topics []string, topic string) []string {
	needle := normalize(topic)
	out := topics[:0]
	for _, t := range topics {
		if normalize(t) == needle {
			continue
		}
		out = append(out, t)
	}
	return out
}
