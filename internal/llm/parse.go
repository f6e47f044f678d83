package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseQuiz decodes a JSON array of questions from the model response.
// Empty prompts or expected answers make the whole quiz malformed.
func parseQuiz(content string) ([]Question, error) {
	var questions []Question
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &questions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: quiz contains no questions", ErrMalformedOutput)
	}
	for i, q := range questions {
		if strings.TrimSpace(q.Prompt) == "" || strings.TrimSpace(q.ExpectedAnswer) == "" {
			return nil, fmt.Errorf("%w: question %d missing prompt or expected answer", ErrMalformedOutput, i+1)
		}
	}
	return questions, nil
}

func parseFeedback(content string) (Feedback, error) {
	var fb Feedback
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &fb); err != nil {
		return Feedback{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if strings.TrimSpace(fb.Feedback) == "" {
		return Feedback{}, fmt.Errorf("%w: empty grading feedback", ErrMalformedOutput)
	}
	return fb, nil
}

func parseTopics(content string) ([]string, error) {
	var topics []string
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &topics); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	out := topics[:0]
	for _, t := range topics {
		if strings.TrimSpace(t) != "" {
			out = append(out, strings.TrimSpace(t))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no related topics returned", ErrMalformedOutput)
	}
	return out, nil
}

// stripCodeFence removes a surrounding ```json ... ``` fence if the model
// wrapped its response in one.
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
