package providers

import (
	"context"
	"errors"

	"github.com/dotsetgreg/jarvis/pkg/memory"
)

// LLMProvider is a chat completion service. A systemPrompt may be empty;
// maxTokens bounds the response length.
type LLMProvider interface {
	Complete(ctx context.Context, systemPrompt string, messages []memory.ChatMessage, maxTokens int) (string, error)
	Name() string
}

var (
	// ErrNoContent indicates the service answered without any usable text.
	ErrNoContent = errors.New("completion response contained no content")
)
