// Package inference provides chat completions for the agent's generation steps.
//
// The package abstracts chat completions behind a single Provider interface,
// enabling switching between any provider that implements the OpenAI-compatible
// API (OpenAI, Ollama, vLLM, Together, Groq). Requests name a ModelClass
// rather than a model so prompts stay portable across deployments.
//
// Example usage:
//
//	client, _ := inference.NewClient(
//	    inference.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    inference.WithModels("gpt-4o-mini", "gpt-4o", "gpt-4o"),
//	)
//	defer client.Close()
//
//	text, _ := inference.Complete(ctx, client, inference.ModelSmall, "", "Pick one: a, b")
package inference

import (
	"context"
	"strings"
)

// Provider is the unified chat interface.
// All implementations must satisfy this interface.
type Provider interface {
	// Chat generates a response from a sequence of messages.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// ModelClass selects a model by capability tier.
type ModelClass string

const (
	// ModelSmall is used for classification: ranking comments, picking labels.
	ModelSmall ModelClass = "small"

	// ModelMedium is used for chat replies.
	ModelMedium ModelClass = "medium"

	// ModelLarge is used for free-form thoughts.
	ModelLarge ModelClass = "large"
)

// ChatRequest for chat completions.
type ChatRequest struct {
	// Messages is the conversation history.
	Messages []Message

	// Class picks the configured model for this tier. Defaults to ModelMedium.
	Class ModelClass

	// Model overrides Class with an explicit model name.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0.0-2.0).
	Temperature float64

	// Stop sequences that halt generation.
	Stop []string
}

// ChatResponse from chat completion.
type ChatResponse struct {
	// Message is the assistant's response.
	Message Message

	// FinishReason indicates why generation stopped.
	FinishReason string

	// Usage tracks token consumption.
	Usage Usage

	// Model used for generation.
	Model string

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

// Usage tracks token consumption for billing and limits.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Complete sends an optional system prompt and one user prompt and returns
// the trimmed reply text.
func Complete(ctx context.Context, p Provider, class ModelClass, system, prompt string) (string, error) {
	msgs := make([]Message, 0, 2)
	if system != "" {
		msgs = append(msgs, NewSystemMessage(system))
	}
	msgs = append(msgs, NewUserMessage(prompt))

	resp, err := p.Chat(ctx, &ChatRequest{Messages: msgs, Class: class})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Message.Content), nil
}
