package memory

import (
	"fmt"
	"time"
)

// Platform is the messaging channel a user contacts us through.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformSMS      Platform = "sms"
	PlatformDiscord  Platform = "discord"
)

// Role of a conversation turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// UserKey builds the opaque user id from a platform and its native sender id.
func UserKey(platform Platform, nativeID string) string {
	return fmt.Sprintf("%s:%s", platform, nativeID)
}

// UserProfile is the durable per-user record.
type UserProfile struct {
	UserID       string
	Platform     Platform
	Name         string
	Summary      string
	MessageCount int64
	FirstSeen    time.Time
	LastSeen     time.Time
}

// ConversationTurn is one user or assistant message.
type ConversationTurn struct {
	ID        string
	UserID    string
	Role      string
	Content   string
	CreatedAt time.Time
}

// MemoryFact is a short durable string distilled from conversation.
type MemoryFact struct {
	UserID    string
	Text      string
	Source    string
	CreatedAt time.Time
}

// ChatMessage is the shape sent to the completion service.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
