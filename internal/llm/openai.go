package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"healthbot/internal/search"
)

// OpenAIClient calls the OpenAI Chat Completions API.
type OpenAIClient struct {
	model  openai.ChatModel
	client *openai.Client
}

const (
	defaultChatTimeout     = 30 * time.Second
	defaultChatTemperature = 0.0
)

const systemPrompt = "You are HealthBot, an AI assistant that helps patients learn about health topics. " +
	"You explain medical information in clear, reassuring, patient-friendly language and you never give a diagnosis."

// NewOpenAIClient builds a client with defaults against api.openai.com.
func NewOpenAIClient(apiKey string, model openai.ChatModel) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	cli := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{
		model:  model,
		client: &cli,
	}, nil
}

func (c *OpenAIClient) Summarize(ctx context.Context, topic string, results []search.Result, difficulty string) (string, error) {
	var sources strings.Builder
	for i, res := range results {
		fmt.Fprintf(&sources, "Source %d (%s — %s):\n%s\n\n", i+1, res.Title, res.URL, res.Content)
	}
	user := fmt.Sprintf(
		"Summarize the following search results about %q for a patient.\n"+
			"Difficulty level: %s. %s\n"+
			"Write plain prose, no markdown headers.\n\n%s",
		topic, difficulty, difficultyGuidance(difficulty), sources.String(),
	)
	content, err := c.complete(ctx, user)
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(content)
	if summary == "" {
		return "", fmt.Errorf("%w: empty summary", ErrMalformedOutput)
	}
	return summary, nil
}

func (c *OpenAIClient) GenerateQuiz(ctx context.Context, topic, summary, difficulty string, n int) ([]Question, error) {
	user := fmt.Sprintf(
		"Based on this summary about %q, write %d %s comprehension questions for the patient.\n"+
			"Respond with ONLY a JSON array, each element an object with keys "+
			"\"question\", \"expected_answer\" and optionally \"choices\" (array of strings).\n\nSummary:\n%s",
		topic, n, difficulty, summary,
	)
	content, err := c.complete(ctx, user)
	if err != nil {
		return nil, err
	}
	return parseQuiz(content)
}

func (c *OpenAIClient) Grade(ctx context.Context, question, expected, answer string) (Feedback, error) {
	user := fmt.Sprintf(
		"Grade the patient's answer to a comprehension question.\n"+
			"Question: %s\nExpected answer: %s\nPatient answer: %s\n"+
			"Respond with ONLY a JSON object with keys \"correct\" (boolean) and "+
			"\"feedback\" (one or two encouraging sentences explaining the verdict).",
		question, expected, answer,
	)
	content, err := c.complete(ctx, user)
	if err != nil {
		return Feedback{}, err
	}
	return parseFeedback(content)
}

func (c *OpenAIClient) RelatedTopics(ctx context.Context, topic, summary string) ([]string, error) {
	user := fmt.Sprintf(
		"Suggest 3 to 5 health topics related to %q that the patient might want to learn about next. "+
			"Do not include %q itself.\n"+
			"Respond with ONLY a JSON array of topic strings.\n\nContext summary:\n%s",
		topic, topic, summary,
	)
	content, err := c.complete(ctx, user)
	if err != nil {
		return nil, err
	}
	return parseTopics(content)
}

// complete runs a single chat completion and returns the first choice.
func (c *OpenAIClient) complete(ctx context.Context, user string) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("nil openai client")
	}
	reqCtx, cancel := context.WithTimeout(ctx, defaultChatTimeout)
	defer cancel()
	resp, err := c.client.Chat.Completions.New(reqCtx, openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    buildMessages(systemPrompt, user),
		Temperature: openai.Float(defaultChatTemperature),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func buildMessages(system, user string) []openai.ChatCompletionMessageParamUnion {
	return []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(system),
				},
			},
		},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(user),
				},
			},
		},
	}
}

func difficultyGuidance(difficulty string) string {
	switch difficulty {
	case "easy":
		return "Use short sentences and everyday words; avoid medical jargon entirely."
	case "hard":
		return "Use precise medical terminology and cover mechanisms in depth."
	default:
		return "Use accessible language but name the key medical terms."
	}
}
