// Package llm defines the narrow contract of a generation provider. The core
// never performs network calls; hosts supply a Client.
package llm

import "context"

// Role constants for messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Client is the interface a generation provider implements.
type Client interface {
	// Chat returns a complete response.
	Chat(ctx context.Context, req *Request) (*Response, error)
	// ChatStream returns an ordered channel of text deltas. The provider closes
	// the channel when the response ends or ctx is cancelled.
	ChatStream(ctx context.Context, req *Request) (<-chan StreamDelta, error)
	// ModelID returns the model identifier this client is configured for.
	ModelID() string
}

// Message is one entry of the assembled conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is an assembled generation request. Prompt assembly happens
// outside the core; Temperature and MaxTokens carry the effective policy.
type Request struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// Response is a complete provider response.
type Response struct {
	ID           string `json:"id,omitempty"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage"`
}

// StreamDelta is one chunk of a streamed response. Err reports an upstream
// failure; the provider closes the channel after sending it.
type StreamDelta struct {
	Content      string `json:"content,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	Done         bool   `json:"done,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`
	Err          error  `json:"-"`
}

// Usage contains token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
