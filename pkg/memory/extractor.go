package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dotsetgreg/jarvis/pkg/logger"
	"github.com/dotsetgreg/jarvis/pkg/observability"
)

const (
	// extractionInterval throttles distillation to roughly once per ten
	// user-authored turns.
	extractionInterval = 10
	// minTurnsForExtraction skips extraction when the retrieved window is
	// too thin to say anything useful.
	minTurnsForExtraction = 5
	extractionWindow      = 20
	extractionMaxTokens   = 500
	defaultExtractTimeout = 45 * time.Second
)

// Extractor periodically mines durable facts and a summary from recent
// conversation history via the completion service.
type Extractor struct {
	client   CompletionClient
	manager  *Manager
	notifier Notifier
	timeout  time.Duration
}

func NewExtractor(client CompletionClient, manager *Manager, notifier Notifier) *Extractor {
	return &Extractor{
		client:   client,
		manager:  manager,
		notifier: notifier,
		timeout:  defaultExtractTimeout,
	}
}

type extractionResult struct {
	Facts   []string `json:"facts"`
	Summary string   `json:"summary"`
}

// ShouldExtract implements the trigger policy: fire only when messageCount
// is a positive multiple of the interval and enough recent turns exist.
func ShouldExtract(messageCount int64, recentTurns int) bool {
	if messageCount == 0 || messageCount%extractionInterval != 0 {
		return false
	}
	return recentTurns >= minTurnsForExtraction
}

// MaybeExtractAsync dispatches an extraction run in the background when the
// trigger conditions hold. It never blocks the caller and its failures never
// reach the reply path.
func (e *Extractor) MaybeExtractAsync(userID string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorCF("extractor", "Extraction panicked", map[string]interface{}{
					"user_id": userID,
					"panic":   fmt.Sprintf("%v", r),
				})
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()

		if err := e.Run(ctx, userID); err != nil && err != ErrExtractionSkipped {
			logger.WarnCF("extractor", "Extraction failed", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
		}
	}()
}

// Run executes one extraction cycle for userID. It aborts without mutating
// stored state when the trigger does not hold, another run is in flight, or
// the model response cannot be parsed.
func (e *Extractor) Run(ctx context.Context, userID string) error {
	profile := e.manager.Profile(ctx, userID)
	turns := e.manager.RecentTurns(ctx, userID, extractionWindow)
	if !ShouldExtract(profile.MessageCount, len(turns)) {
		return ErrExtractionSkipped
	}

	if !e.manager.BeginExtraction(userID) {
		logger.DebugCF("extractor", "Extraction already in flight, skipping", map[string]interface{}{
			"user_id": userID,
		})
		return ErrExtractionSkipped
	}
	defer e.manager.EndExtraction(userID)

	existing := e.manager.Facts(ctx, userID)
	prompt := buildExtractionPrompt(existing, turns)

	raw, err := e.client.Complete(ctx, "", []ChatMessage{{Role: RoleUser, Content: prompt}}, extractionMaxTokens)
	if err != nil {
		observability.ExtractionRuns.WithLabelValues("error").Inc()
		return fmt.Errorf("extraction completion: %w", err)
	}

	result, ok := parseExtractionResponse(raw)
	if !ok {
		// Malformed model output must never corrupt the fact list.
		observability.ExtractionRuns.WithLabelValues("unparseable").Inc()
		logger.WarnCF("extractor", "Unparseable extraction response, discarding", map[string]interface{}{
			"user_id": userID,
		})
		return nil
	}

	var learned []string
	for _, fact := range result.Facts {
		fact = strings.TrimSpace(fact)
		if fact == "" {
			continue
		}
		if e.manager.MergeFact(ctx, userID, fact, "extraction") {
			learned = append(learned, fact)
		}
	}
	observability.FactsLearned.Add(float64(len(learned)))

	if summary := strings.TrimSpace(result.Summary); summary != "" {
		e.manager.ReplaceSummary(ctx, userID, summary)
	}

	observability.ExtractionRuns.WithLabelValues("ok").Inc()
	logger.InfoCF("extractor", "Extraction cycle completed", map[string]interface{}{
		"user_id":     userID,
		"new_facts":   len(learned),
		"has_summary": strings.TrimSpace(result.Summary) != "",
	})

	if e.notifier != nil && len(learned) > 0 {
		e.notifier.Notify("memory", fmt.Sprintf("Learned about %s:\n- %s", userID, strings.Join(learned, "\n- ")))
	}
	return nil
}

func buildExtractionPrompt(existing []MemoryFact, turns []ConversationTurn) string {
	var b strings.Builder
	b.WriteString("Analyze this conversation and extract durable facts about the user (their name, role, business, preferences, and anything worth remembering long-term), plus a one-paragraph summary of who they are.\n\n")

	if len(existing) > 0 {
		b.WriteString("Facts already known (do not repeat these):\n")
		for _, fact := range existing {
			b.WriteString("- ")
			b.WriteString(fact.Text)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Conversation:\n")
	for _, turn := range turns {
		b.WriteString(turn.Role)
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}

	b.WriteString("\nRespond with ONLY a JSON object of the form {\"facts\": [\"...\"], \"summary\": \"...\"} and no other text.")
	return b.String()
}

// parseExtractionResponse tolerates code fences and stray prose around the
// JSON object, but refuses anything without the expected shape.
func parseExtractionResponse(raw string) (extractionResult, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return extractionResult{}, false
	}

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return extractionResult{}, false
	}
	text = text[start : end+1]

	var result extractionResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return extractionResult{}, false
	}
	if result.Facts == nil && strings.TrimSpace(result.Summary) == "" {
		return extractionResult{}, false
	}
	return result, true
}
