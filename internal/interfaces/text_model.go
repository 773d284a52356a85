package interfaces

import "context"

// Message represents a single message in a chat conversation
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string

	// Content contains the text content of the message
	Content string
}

// TextModel defines the interface for the language model behind the
// article renderer. Implementations wrap cloud providers; the pipeline
// treats their output as untrusted and every numeric claim is
// re-validated against the evidence pack before publication.
type TextModel interface {
	// Chat generates a completion based on the conversation history.
	// The messages slice should contain the full context including the
	// system prompt and the user request.
	Chat(ctx context.Context, messages []Message) (string, error)

	// Name returns the provider/model identifier for logging and the
	// draft's provenance field.
	Name() string

	// HealthCheck verifies the provider is reachable and authenticated.
	HealthCheck(ctx context.Context) error

	// Close releases provider resources.
	Close() error
}
