package agent

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dotsetgreg/jarvis/pkg/bus"
	"github.com/dotsetgreg/jarvis/pkg/config"
	"github.com/dotsetgreg/jarvis/pkg/logger"
	"github.com/dotsetgreg/jarvis/pkg/memory"
	"github.com/dotsetgreg/jarvis/pkg/observability"
	"github.com/dotsetgreg/jarvis/pkg/providers"
)

// FallbackReply is what users see when the reply pipeline fails. The real
// error only goes to the logs.
const FallbackReply = "Sorry, I'm having trouble right now. Try again in a moment."

const defaultCompletionTimeout = 60 * time.Second

// Request is one user message entering the reply pipeline.
type Request struct {
	Platform    memory.Platform
	SenderID    string
	ChatID      string
	Content     string
	DisplayName string
}

// Loop consumes inbound messages from the bus, runs each through the memory
// and completion pipeline, and publishes the reply outbound.
type Loop struct {
	bus       *bus.MessageBus
	provider  providers.LLMProvider
	manager   *memory.Manager
	extractor *memory.Extractor

	maxTokens        int
	compactMaxTokens int
	timeout          time.Duration
	running          atomic.Bool
}

func NewLoop(cfg *config.Config, msgBus *bus.MessageBus, provider providers.LLMProvider, manager *memory.Manager, extractor *memory.Extractor) *Loop {
	timeout := defaultCompletionTimeout
	if cfg.Agent.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Agent.TimeoutSeconds) * time.Second
	}
	return &Loop{
		bus:              msgBus,
		provider:         provider,
		manager:          manager,
		extractor:        extractor,
		maxTokens:        cfg.Agent.MaxTokens,
		compactMaxTokens: cfg.Agent.CompactMaxTokens,
		timeout:          timeout,
	}
}

func (l *Loop) Run(ctx context.Context) error {
	l.running.Store(true)
	logger.InfoC("agent", "Agent loop started")

	for l.running.Load() {
		select {
		case <-ctx.Done():
			return nil
		default:
			msg, ok := l.bus.ConsumeInbound(ctx)
			if !ok {
				continue
			}
			go l.handleInbound(ctx, msg)
		}
	}
	return nil
}

func (l *Loop) Stop() {
	l.running.Store(false)
	logger.InfoC("agent", "Agent loop stopped")
}

func (l *Loop) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("agent", "Message handling panicked", map[string]interface{}{
				"platform": msg.Platform,
				"panic":    fmt.Sprintf("%v", r),
			})
		}
	}()

	start := time.Now()
	reply, err := l.Process(ctx, Request{
		Platform:    memory.Platform(msg.Platform),
		SenderID:    msg.SenderID,
		ChatID:      msg.ChatID,
		Content:     msg.Content,
		DisplayName: msg.DisplayName,
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
		logger.ErrorCF("agent", "Reply pipeline failed", map[string]interface{}{
			"platform": msg.Platform,
			"sender":   msg.SenderID,
			"error":    err.Error(),
		})
		reply = FallbackReply
	}
	observability.MessagesProcessed.WithLabelValues(msg.Platform, outcome).Inc()
	observability.ObserveReplyLatency(time.Since(start))

	l.bus.PublishOutbound(bus.OutboundMessage{
		Platform: msg.Platform,
		ChatID:   msg.ChatID,
		Content:  reply,
	})
}

// Process runs the full reply pipeline for one user message: ensure the
// profile, record the turn, assemble the prompt from bounded history and
// facts, call the completion service, record the reply, and kick off fact
// extraction in the background. The assistant turn is only recorded when the
// completion succeeded.
func (l *Loop) Process(ctx context.Context, req Request) (string, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return "", fmt.Errorf("empty message content")
	}

	userID := memory.UserKey(req.Platform, req.SenderID)
	profile := l.manager.EnsureProfile(ctx, userID, req.Platform, req.DisplayName)
	l.manager.RecordTurn(ctx, userID, memory.RoleUser, content)

	turns := l.manager.RecentTurns(ctx, userID, 0)
	facts := l.manager.Facts(ctx, userID)
	systemPrompt := memory.BuildSystemPrompt(profile, facts, req.Platform)
	messages := buildMessages(turns, content)

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	reply, err := l.provider.Complete(callCtx, systemPrompt, messages, l.maxTokensFor(req.Platform))
	if err != nil {
		observability.CompletionErrors.Inc()
		return "", fmt.Errorf("completion request: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		observability.CompletionErrors.Inc()
		return "", providers.ErrNoContent
	}

	l.manager.RecordTurn(ctx, userID, memory.RoleAssistant, reply)
	l.extractor.MaybeExtractAsync(userID)
	return reply, nil
}

// buildMessages converts stored turns to completion messages. The window can
// land on an assistant turn, and the current message can be missing when its
// write was swallowed; both are repaired here because the completion API
// requires a user-first transcript that ends with the current message.
func buildMessages(turns []memory.ConversationTurn, current string) []memory.ChatMessage {
	for len(turns) > 0 && turns[0].Role != memory.RoleUser {
		turns = turns[1:]
	}

	messages := make([]memory.ChatMessage, 0, len(turns)+1)
	for _, turn := range turns {
		messages = append(messages, memory.ChatMessage{Role: turn.Role, Content: turn.Content})
	}
	if len(messages) == 0 || messages[len(messages)-1].Role != memory.RoleUser || messages[len(messages)-1].Content != current {
		messages = append(messages, memory.ChatMessage{Role: memory.RoleUser, Content: current})
	}
	return messages
}

func (l *Loop) maxTokensFor(platform memory.Platform) int {
	switch platform {
	case memory.PlatformTelegram, memory.PlatformSMS:
		return l.compactMaxTokens
	default:
		return l.maxTokens
	}
}
