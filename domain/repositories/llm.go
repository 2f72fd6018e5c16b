package repositories

import "context"

// Completer abstracts a single-turn AI completion provider
type Completer interface {
	// GetCompletion returns the generated reply for prompt. It never fails:
	// provider errors are absorbed and a fallback sentence is returned.
	GetCompletion(ctx context.Context, prompt string) string
}

// CompletionFunc adapts a plain function to the Completer interface
type CompletionFunc func(ctx context.Context, prompt string) string

// GetCompletion implements Completer
func (f CompletionFunc) GetCompletion(ctx context.Context, prompt string) string {
	return f(ctx, prompt)
}

// ChatMessage represents a single message sent to a chat completion endpoint
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role defines the type of message sender
type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
	SystemRole    Role = "system"
)
