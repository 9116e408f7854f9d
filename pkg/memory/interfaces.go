package memory

import "context"

// DefaultFactLimit caps the per-user fact list. Oldest facts are evicted
// first once the cap is exceeded.
const DefaultFactLimit = 50

// Store is the durable mapping from user ids to profiles, turns, and facts.
// Read failures should be reported to callers; the Manager decides how they
// degrade. Implementations must make each AppendTurn atomic.
type Store interface {
	// GetProfile returns ErrProfileNotFound when the user is unknown.
	GetProfile(ctx context.Context, userID string) (UserProfile, error)
	// CreateProfile has get-or-create semantics and is safe to call
	// unconditionally before every other operation.
	CreateProfile(ctx context.Context, userID string, platform Platform) (UserProfile, error)
	// AppendTurn appends to the turn sequence, bumps LastSeen, and
	// increments MessageCount for user-authored turns.
	AppendTurn(ctx context.Context, userID, role, content string) error
	// ListRecentTurns returns at most limit turns, oldest first.
	ListRecentTurns(ctx context.Context, userID string, limit int) ([]ConversationTurn, error)
	// AddFact is idempotent per exact text and reports whether the fact was
	// new. The store enforces the fact cap on insert.
	AddFact(ctx context.Context, userID, fact, source string) (bool, error)
	SetSummary(ctx context.Context, userID, summary string) error
	SetName(ctx context.Context, userID, name string) error
	ListFacts(ctx context.Context, userID string) ([]MemoryFact, error)
	// PurgeUser deletes profile, turns, and facts together.
	PurgeUser(ctx context.Context, userID string) error
	CountUsers(ctx context.Context) (int64, error)
	CountTurns(ctx context.Context) (int64, error)
	CountFacts(ctx context.Context) (int64, error)
	Close() error
}

// CompletionClient is the completion service as the memory pipeline sees it.
// A systemPrompt may be empty; extraction sends a single user-role message.
type CompletionClient interface {
	Complete(ctx context.Context, systemPrompt string, messages []ChatMessage, maxTokens int) (string, error)
}

// Notifier mirrors learned facts to an operational channel. Implementations
// must be fire-and-forget; failures are ignored.
type Notifier interface {
	Notify(tag, text string)
}
