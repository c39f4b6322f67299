package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/testmaker/internal/llm/prompts"
	"github.com/pavelanni/testmaker/internal/model"
)

// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// DefaultModel is the model used when none is configured.
const DefaultModel = "gemini-1.5-flash"

// ErrMalformedResponse is returned when the model reply cannot be decoded.
var ErrMalformedResponse = errors.New("malformed LLM response")

// Evaluation holds the model's grading of a submitted attempt.
type Evaluation struct {
	Score           *float64                 `json:"score"`
	TotalMarks      *float64                 `json:"totalMarks"`
	Feedback        []model.QuestionFeedback `json:"feedback"`
	OverallFeedback string                   `json:"overallFeedback"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping verifies the endpoint is reachable and the API key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// GenerateQuestions asks the model for the questions of a new test template.
func (c *Client) GenerateQuestions(ctx context.Context, req model.CreateTestRequest) (*model.QuestionSet, error) {
	prompt, err := prompts.BuildGeneratePrompt(req)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	raw, err := c.complete(ctx, prompt, 0.7)
	if err != nil {
		return nil, err
	}

	jsonText, err := prompts.ExtractJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	if err := validateQuestionSet(jsonText); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	var set model.QuestionSet
	if err := json.Unmarshal([]byte(jsonText), &set); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if set.MCQs == nil {
		set.MCQs = []model.MCQ{}
	}
	if set.ShortAnswers == nil {
		set.ShortAnswers = []model.ShortAnswer{}
	}
	return &set, nil
}

// EvaluateAttempt sends the learner's answers to the model for grading.
func (c *Client) EvaluateAttempt(ctx context.Context, req model.EvaluateRequest) (*Evaluation, error) {
	prompt, err := prompts.BuildEvaluatePrompt(req.TestTitle, req.TotalQuestions, req.TotalMarks, req.Questions)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	raw, err := c.complete(ctx, prompt, 0.1)
	if err != nil {
		return nil, err
	}

	jsonText, err := prompts.ExtractJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	var eval Evaluation
	if err := json.Unmarshal([]byte(jsonText), &eval); err != nil {
		return nil, fmt.Errorf("%w: %w (raw: %s)", ErrMalformedResponse, err, raw)
	}
	if eval.Feedback == nil {
		eval.Feedback = []model.QuestionFeedback{}
	}
	return &eval, nil
}

func (c *Client) complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "model", c.model, "raw", raw)
	return raw, nil
}
