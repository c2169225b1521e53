// Package ollama provides a client for local models served by an Ollama
// runtime, implementing the llm.LLMClient interface.
package ollama

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"saga/pkg/llm"
	"saga/pkg/llm/llmerrors"
)

// DefaultHostURL is where a local Ollama server listens by default.
const DefaultHostURL = "http://localhost:11434"

// Client wraps the Ollama API client.
type Client struct {
	client *api.Client
	model  string
}

// NewClient creates a new Ollama client. hostURL should be the Ollama server
// URL, e.g. "http://localhost:11434"; invalid URLs fall back to the default.
func NewClient(hostURL, model string) *Client {
	parsedURL, err := url.Parse(hostURL)
	if err != nil || hostURL == "" {
		parsedURL, _ = url.Parse(DefaultHostURL)
	}
	return &Client{
		client: api.NewClient(parsedURL, http.DefaultClient),
		model:  model,
	}
}

// Complete implements the llm.LLMClient interface.
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if err := in.Validate(); err != nil {
		return llm.CompletionResponse{}, llmerrors.Wrap(llmerrors.ErrorTypeBadPrompt, err, "invalid completion request")
	}

	messages := make([]api.Message, 0, len(in.Messages))
	for i := range in.Messages {
		msg := &in.Messages[i]
		messages = append(messages, api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}

	var response api.ChatResponse
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if response.Message.Content == "" {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.ErrorTypeEmptyResponse, "received empty response from Ollama")
	}

	return llm.CompletionResponse{
		Content:    response.Message.Content,
		StopReason: stopReason(&response),
	}, nil
}

// GetModelName returns the model name for this client.
func (o *Client) GetModelName() string {
	return o.model
}

// stopReason converts Ollama's done_reason to the shared stop reason format.
func stopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}
	switch resp.DoneReason {
	case "stop", "":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}

// classifyError converts Ollama errors to structured error types. A refused
// connection usually means the local server is not running, which is worth a
// clearer message than the generic classifier gives.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "connection refused") {
		return llmerrors.Wrap(llmerrors.ErrorTypeTransient, err, "Ollama server not reachable")
	}
	if strings.Contains(err.Error(), "not found") {
		return llmerrors.Wrap(llmerrors.ErrorTypeBadPrompt, err, "Ollama model not found")
	}
	return llmerrors.Classify(err)
}
