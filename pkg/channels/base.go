package channels

import (
	"context"
	"strings"
	"time"

	"github.com/dotsetgreg/jarvis/pkg/bus"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
	IsAllowed(senderID string) bool
}

type BaseChannel struct {
	bus       *bus.MessageBus
	running   bool
	name      string
	allowList []string
}

func NewBaseChannel(name string, bus *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{
		bus:       bus,
		name:      name,
		allowList: allowList,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running
}

func (c *BaseChannel) IsAllowed(senderID string) bool {
	return Allowed(c.allowList, senderID)
}

// Allowed matches a sender against an allowlist. An empty list allows
// everyone. A compound senderID like "123456|username" matches entries for
// either part, and entries may carry a leading @.
func Allowed(allowList []string, senderID string) bool {
	if len(allowList) == 0 {
		return true
	}

	idPart := senderID
	userPart := ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}

	for _, allowed := range allowList {
		candidate := strings.TrimSpace(strings.TrimPrefix(allowed, "@"))
		if candidate == "" {
			continue
		}
		if candidate == senderID || candidate == idPart || (userPart != "" && candidate == userPart) {
			return true
		}
	}

	return false
}

// HandleMessage publishes an inbound message. Allowlist checks happen in the
// adapters before this point because some platforms match on compound ids.
func (c *BaseChannel) HandleMessage(senderID, chatID, content, displayName string, metadata map[string]string) {
	c.bus.PublishInbound(bus.InboundMessage{
		Platform:    c.name,
		SenderID:    senderID,
		ChatID:      chatID,
		Content:     content,
		DisplayName: displayName,
		Timestamp:   time.Now(),
		Metadata:    metadata,
	})
}

func (c *BaseChannel) setRunning(running bool) {
	c.running = running
}
