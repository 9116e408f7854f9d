package bus

import "time"

// InboundMessage is one user message delivered by a platform adapter.
type InboundMessage struct {
	Platform    string
	SenderID    string
	ChatID      string
	Content     string
	DisplayName string
	Timestamp   time.Time
	Metadata    map[string]string
}

// OutboundMessage is a reply (or notification) addressed to a platform chat.
type OutboundMessage struct {
	Platform string
	ChatID   string
	Content  string
}
