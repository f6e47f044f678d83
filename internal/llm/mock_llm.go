package llm

import (
	"context"

	"github.com/stretchr/testify/mock"

	"healthbot/internal/search"
)

// MockClient is a mock implementation of Client using testify/mock.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Summarize(ctx context.Context, topic string, results []search.Result, difficulty string) (string, error) {
	args := m.Called(ctx, topic, results, difficulty)
	return args.String(0), args.Error(1)
}

func (m *MockClient) GenerateQuiz(ctx context.Context, topic, summary, difficulty string, n int) ([]Question, error) {
	args := m.Called(ctx, topic, summary, difficulty, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Question), args.Error(1)
}

func (m *MockClient) Grade(ctx context.Context, question, expected, answer string) (Feedback, error) {
	args := m.Called(ctx, question, expected, answer)
	return args.Get(0).(Feedback), args.Error(1)
}

func (m *MockClient) RelatedTopics(ctx context.Context, topic, summary string) ([]string, error) {
	args := m.Called(ctx, topic, summary)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
