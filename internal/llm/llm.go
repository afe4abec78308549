// Package llm suggests explanations for questions that were added without
// one. It talks to any OpenAI-compatible endpoint and is entirely
// optional: the server runs without it.
package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"quizbank/internal/model"
)

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
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping verifies the endpoint is reachable by listing models.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM endpoint unreachable: %w", err)
	}
	return nil
}

const explainSystemPrompt = `You write concise explanations for multiple-choice study questions.
Answer in the same language as the question. Explain in two or three
sentences why the given answer is correct. Output only the explanation
text, no preamble.`

// SuggestExplanation asks the LLM for a short explanation of why the
// draft's answer is correct.
func (c *Client) SuggestExplanation(ctx context.Context, d model.QuestionDraft) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", d.Text)
	for _, opt := range d.Options {
		fmt.Fprintf(&b, "Option: %s\n", opt)
	}
	fmt.Fprintf(&b, "Correct answer: %s\n", d.Answer)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: explainSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: b.String()},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
