package notify

import (
	"fmt"
	"strings"

	"github.com/dotsetgreg/jarvis/pkg/bus"
	"github.com/dotsetgreg/jarvis/pkg/config"
	"github.com/dotsetgreg/jarvis/pkg/logger"
)

// BusNotifier delivers operator notifications to a configured platform chat
// by publishing them outbound like any other reply.
type BusNotifier struct {
	bus      *bus.MessageBus
	platform string
	chatID   string
}

// NewNotifier returns nil when no notify target is configured; callers treat
// a nil notifier as disabled.
func NewNotifier(cfg config.NotifyConfig, msgBus *bus.MessageBus) *BusNotifier {
	platform := strings.TrimSpace(cfg.Platform)
	chatID := strings.TrimSpace(cfg.ChatID)
	if platform == "" || chatID == "" {
		return nil
	}
	return &BusNotifier{
		bus:      msgBus,
		platform: platform,
		chatID:   chatID,
	}
}

func (n *BusNotifier) Notify(tag, text string) {
	if n == nil {
		return
	}
	logger.DebugCF("notify", "Sending notification", map[string]interface{}{
		"tag":      tag,
		"platform": n.platform,
	})
	n.bus.PublishOutbound(bus.OutboundMessage{
		Platform: n.platform,
		ChatID:   n.chatID,
		Content:  fmt.Sprintf("[%s] %s", tag, text),
	})
}
