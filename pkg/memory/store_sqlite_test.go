package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_ProfileLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetProfile(ctx, "telegram:1"); err != ErrProfileNotFound {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}

	profile, err := store.CreateProfile(ctx, "telegram:1", PlatformTelegram)
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if profile.UserID != "telegram:1" || profile.Platform != PlatformTelegram {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if profile.MessageCount != 0 {
		t.Fatalf("new profile message count = %d, want 0", profile.MessageCount)
	}

	// Get-or-create must be safe to repeat without resetting anything.
	if err := store.SetName(ctx, "telegram:1", "Dana"); err != nil {
		t.Fatalf("set name: %v", err)
	}
	again, err := store.CreateProfile(ctx, "telegram:1", PlatformTelegram)
	if err != nil {
		t.Fatalf("create profile again: %v", err)
	}
	if again.Name != "Dana" {
		t.Fatalf("repeated create clobbered name: %+v", again)
	}

	if err := store.SetSummary(ctx, "telegram:1", "Runs a warehouse."); err != nil {
		t.Fatalf("set summary: %v", err)
	}
	got, err := store.GetProfile(ctx, "telegram:1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if got.Summary != "Runs a warehouse." {
		t.Fatalf("summary = %q", got.Summary)
	}
}

func TestSQLiteStore_AppendTurnCountsUserMessagesOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.CreateProfile(ctx, "sms:+15550100", PlatformSMS); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if err := store.AppendTurn(ctx, "sms:+15550100", RoleUser, "hi"); err != nil {
		t.Fatalf("append user turn: %v", err)
	}
	if err := store.AppendTurn(ctx, "sms:+15550100", RoleAssistant, "hello"); err != nil {
		t.Fatalf("append assistant turn: %v", err)
	}

	profile, err := store.GetProfile(ctx, "sms:+15550100")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.MessageCount != 1 {
		t.Fatalf("message count = %d, want 1 (assistant turns must not count)", profile.MessageCount)
	}
}

func TestSQLiteStore_AppendTurnRejectsBadRole(t *testing.T) {
	store := newTestStore(t)
	if err := store.AppendTurn(context.Background(), "u1", "system", "x"); err == nil {
		t.Fatalf("expected invalid role error")
	}
}

func TestSQLiteStore_ListRecentTurnsBoundedChronological(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		if err := store.AppendTurn(ctx, "discord:9", role, fmt.Sprintf("msg-%02d", i)); err != nil {
			t.Fatalf("append turn %d: %v", i, err)
		}
	}

	turns, err := store.ListRecentTurns(ctx, "discord:9", 20)
	if err != nil {
		t.Fatalf("list recent turns: %v", err)
	}
	if len(turns) != 20 {
		t.Fatalf("len = %d, want 20", len(turns))
	}
	// Oldest first, and the window holds the most recent 25-20..24.
	if turns[0].Content != "msg-05" {
		t.Fatalf("first turn = %q, want msg-05", turns[0].Content)
	}
	if turns[19].Content != "msg-24" {
		t.Fatalf("last turn = %q, want msg-24", turns[19].Content)
	}
	for i := 1; i < len(turns); i++ {
		if turns[i].CreatedAt.Before(turns[i-1].CreatedAt) {
			t.Fatalf("timestamps not non-decreasing at %d", i)
		}
	}
}

func TestSQLiteStore_AddFactDedupAndCap(t *testing.T) {
	store, err := NewSQLiteStoreWithLimit(filepath.Join(t.TempDir(), "memory.db"), 50)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	inserted, err := store.AddFact(ctx, "u1", "Works at Denver warehouse", "extraction")
	if err != nil {
		t.Fatalf("add fact: %v", err)
	}
	if !inserted {
		t.Fatalf("first insert should report inserted")
	}
	inserted, err = store.AddFact(ctx, "u1", "Works at Denver warehouse", "extraction")
	if err != nil {
		t.Fatalf("add duplicate fact: %v", err)
	}
	if inserted {
		t.Fatalf("duplicate insert should report not inserted")
	}

	for i := 0; i < 55; i++ {
		if _, err := store.AddFact(ctx, "u1", fmt.Sprintf("fact-%02d", i), ""); err != nil {
			t.Fatalf("add fact %d: %v", i, err)
		}
	}

	facts, err := store.ListFacts(ctx, "u1")
	if err != nil {
		t.Fatalf("list facts: %v", err)
	}
	if len(facts) != 50 {
		t.Fatalf("fact count = %d, want 50", len(facts))
	}
	// Oldest entries evicted first: the original fact and fact-00..fact-04
	// are gone, insertion order preserved for the rest.
	if facts[0].Text != "fact-05" {
		t.Fatalf("oldest surviving fact = %q, want fact-05", facts[0].Text)
	}
	if facts[49].Text != "fact-54" {
		t.Fatalf("newest fact = %q, want fact-54", facts[49].Text)
	}
}

func TestSQLiteStore_AddFactIgnoresEmpty(t *testing.T) {
	store := newTestStore(t)
	inserted, err := store.AddFact(context.Background(), "u1", "   ", "")
	if err != nil {
		t.Fatalf("add empty fact: %v", err)
	}
	if inserted {
		t.Fatalf("empty fact should not insert")
	}
}

func TestSQLiteStore_PurgeUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.CreateProfile(ctx, "u1", PlatformTelegram); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if err := store.AppendTurn(ctx, "u1", RoleUser, "hi"); err != nil {
		t.Fatalf("append turn: %v", err)
	}
	if _, err := store.AddFact(ctx, "u1", "likes coffee", ""); err != nil {
		t.Fatalf("add fact: %v", err)
	}

	if err := store.PurgeUser(ctx, "u1"); err != nil {
		t.Fatalf("purge user: %v", err)
	}

	if _, err := store.GetProfile(ctx, "u1"); err != ErrProfileNotFound {
		t.Fatalf("expected ErrProfileNotFound after purge, got %v", err)
	}
	turns, err := store.ListRecentTurns(ctx, "u1", 20)
	if err != nil {
		t.Fatalf("list after purge: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("expected no turns after purge, got %d", len(turns))
	}
	facts, err := store.ListFacts(ctx, "u1")
	if err != nil {
		t.Fatalf("facts after purge: %v", err)
	}
	if len(facts) != 0 {
		t.Fatalf("expected no facts after purge, got %d", len(facts))
	}
}

func TestSQLiteStore_CountsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if _, err := store.CreateProfile(ctx, "u1", PlatformTelegram); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if err := store.AppendTurn(ctx, "u1", RoleUser, "hi"); err != nil {
		t.Fatalf("append turn: %v", err)
	}
	if _, err := store.AddFact(ctx, "u1", "likes coffee", ""); err != nil {
		t.Fatalf("add fact: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	users, err := reopened.CountUsers(ctx)
	if err != nil {
		t.Fatalf("count users: %v", err)
	}
	turns, err := reopened.CountTurns(ctx)
	if err != nil {
		t.Fatalf("count turns: %v", err)
	}
	facts, err := reopened.CountFacts(ctx)
	if err != nil {
		t.Fatalf("count facts: %v", err)
	}
	if users != 1 || turns != 1 || facts != 1 {
		t.Fatalf("counts after reopen = %d/%d/%d, want 1/1/1", users, turns, facts)
	}
}
