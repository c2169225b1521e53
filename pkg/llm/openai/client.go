// Package openai provides an OpenAI-compatible client implementation of the
// llm.LLMClient interface. A custom base URL points the same client at
// OpenRouter or any other Chat Completions compatible gateway.
package openai

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"saga/pkg/llm"
	"saga/pkg/llm/llmerrors"
)

// Client wraps the official OpenAI Go client.
type Client struct {
	client openai.Client
	model  string
}

// NewClient creates a raw client against the default OpenAI endpoint.
// Middleware is applied at a higher level.
func NewClient(apiKey, model string) *Client {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// NewClientWithBaseURL creates a client against an OpenAI-compatible
// endpoint such as OpenRouter.
func NewClientWithBaseURL(apiKey, model, baseURL string) *Client {
	return &Client{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
		),
		model: model,
	}
}

// Complete implements the llm.LLMClient interface via the Chat Completions API.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if err := in.Validate(); err != nil {
		return llm.CompletionResponse{}, llmerrors.Wrap(llmerrors.ErrorTypeBadPrompt, err, "invalid completion request")
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(in.Messages))
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case llm.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		MaxTokens:   openai.Int(int64(in.MaxTokens)),
		Temperature: openai.Float(float64(in.Temperature)),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.Classify(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.ErrorTypeEmptyResponse, "received empty response from chat completions API")
	}

	choice := &resp.Choices[0]
	if choice.Message.Content == "" {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.ErrorTypeEmptyResponse, "response contained no text content")
	}

	return llm.CompletionResponse{
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
	}, nil
}

// GetModelName returns the model name for this client.
func (c *Client) GetModelName() string {
	return c.model
}
