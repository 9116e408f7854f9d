package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/dotsetgreg/jarvis/pkg/logger"
)

// DefaultHistoryWindow bounds how many turns are ever read back for prompt
// assembly, regardless of how many are stored.
const DefaultHistoryWindow = 20

// Manager is the correctness layer over the store: every path ensures a
// profile exists first, reads degrade to empty on store failure, and writes
// on the reply path are logged and swallowed so a user-facing reply never
// fails because persistence did.
type Manager struct {
	store         Store
	historyWindow int

	extractMu  sync.Mutex
	extracting map[string]struct{}
}

type ManagerConfig struct {
	HistoryWindow int
}

func NewManager(store Store, cfg ManagerConfig) *Manager {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	return &Manager{
		store:         store,
		historyWindow: cfg.HistoryWindow,
		extracting:    make(map[string]struct{}),
	}
}

func (m *Manager) HistoryWindow() int { return m.historyWindow }

// EnsureProfile gets or creates the profile and opportunistically records a
// display name the first time one is seen.
func (m *Manager) EnsureProfile(ctx context.Context, userID string, platform Platform, displayName string) UserProfile {
	profile, err := m.store.CreateProfile(ctx, userID, platform)
	if err != nil {
		logger.WarnCF("memory", "Profile lookup failed, continuing with empty profile", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return UserProfile{UserID: userID, Platform: platform, Name: strings.TrimSpace(displayName)}
	}

	displayName = strings.TrimSpace(displayName)
	if displayName != "" && profile.Name == "" {
		if err := m.store.SetName(ctx, userID, displayName); err != nil {
			logger.WarnCF("memory", "Set name failed", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
		} else {
			profile.Name = displayName
		}
	}
	return profile
}

// Profile returns the stored profile, degrading to an empty record when the
// store read fails or the user is unknown.
func (m *Manager) Profile(ctx context.Context, userID string) UserProfile {
	profile, err := m.store.GetProfile(ctx, userID)
	if err != nil {
		if err != ErrProfileNotFound {
			logger.WarnCF("memory", "Profile read failed", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
		}
		return UserProfile{UserID: userID}
	}
	return profile
}

// RecordTurn persists one turn. Failures are swallowed.
func (m *Manager) RecordTurn(ctx context.Context, userID, role, content string) {
	if err := m.store.AppendTurn(ctx, userID, role, content); err != nil {
		logger.WarnCF("memory", "Append turn failed", map[string]interface{}{
			"user_id": userID,
			"role":    role,
			"error":   err.Error(),
		})
	}
}

// RecentTurns returns at most limit turns in chronological order; store
// failures degrade to an empty history.
func (m *Manager) RecentTurns(ctx context.Context, userID string, limit int) []ConversationTurn {
	if limit <= 0 || limit > m.historyWindow {
		limit = m.historyWindow
	}
	turns, err := m.store.ListRecentTurns(ctx, userID, limit)
	if err != nil {
		logger.WarnCF("memory", "History read failed, continuing without context", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return nil
	}
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns
}

// Facts returns the deduplicated, capped fact list; failures degrade to none.
func (m *Manager) Facts(ctx context.Context, userID string) []MemoryFact {
	facts, err := m.store.ListFacts(ctx, userID)
	if err != nil {
		logger.WarnCF("memory", "Fact read failed, continuing without facts", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return nil
	}
	return facts
}

// MergeFact adds one fact idempotently and reports whether it was new.
// Failures are swallowed and count as not-inserted.
func (m *Manager) MergeFact(ctx context.Context, userID, fact, source string) bool {
	inserted, err := m.store.AddFact(ctx, userID, fact, source)
	if err != nil {
		logger.WarnCF("memory", "Add fact failed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return false
	}
	return inserted
}

// ReplaceSummary overwrites the stored summary. Failures are swallowed.
func (m *Manager) ReplaceSummary(ctx context.Context, userID, summary string) {
	if err := m.store.SetSummary(ctx, userID, summary); err != nil {
		logger.WarnCF("memory", "Set summary failed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}

// Purge removes a user entirely. This is an administrative operation, so
// unlike the reply path it propagates errors.
func (m *Manager) Purge(ctx context.Context, userID string) error {
	return m.store.PurgeUser(ctx, userID)
}

// Counts reports aggregate store totals for status surfaces. Failed counters
// report zero.
func (m *Manager) Counts(ctx context.Context) (users, turns, facts int64) {
	var err error
	if users, err = m.store.CountUsers(ctx); err != nil {
		logger.WarnCF("memory", "Count users failed", map[string]interface{}{"error": err.Error()})
	}
	if turns, err = m.store.CountTurns(ctx); err != nil {
		logger.WarnCF("memory", "Count turns failed", map[string]interface{}{"error": err.Error()})
	}
	if facts, err = m.store.CountFacts(ctx); err != nil {
		logger.WarnCF("memory", "Count facts failed", map[string]interface{}{"error": err.Error()})
	}
	return users, turns, facts
}

// BeginExtraction reserves the per-user extraction slot. A second extraction
// for the same user while one is running is skipped, not queued.
func (m *Manager) BeginExtraction(userID string) bool {
	m.extractMu.Lock()
	defer m.extractMu.Unlock()
	if _, busy := m.extracting[userID]; busy {
		return false
	}
	m.extracting[userID] = struct{}{}
	return true
}

func (m *Manager) EndExtraction(userID string) {
	m.extractMu.Lock()
	defer m.extractMu.Unlock()
	delete(m.extracting, userID)
}
