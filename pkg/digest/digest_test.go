package digest

import (
	"strings"
	"sync"
	"testing"

	"github.com/dotsetgreg/jarvis/pkg/memory"
)

type recordingNotifier struct {
	mu    sync.Mutex
	notes []string
}

func (r *recordingNotifier) Notify(tag, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, tag+": "+text)
}

func newTestManager(t *testing.T) *memory.Manager {
	t.Helper()
	store, err := memory.NewSQLiteStore(t.TempDir() + "/memory.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return memory.NewManager(store, memory.ManagerConfig{})
}

func TestNewService_RejectsBadCron(t *testing.T) {
	if _, err := NewService("not a cron", newTestManager(t), &recordingNotifier{}); err == nil {
		t.Fatalf("expected invalid cron to be rejected")
	}
	if _, err := NewService("0 9 * * *", newTestManager(t), &recordingNotifier{}); err != nil {
		t.Fatalf("valid cron rejected: %v", err)
	}
}

func TestSendDigest_ReportsCounts(t *testing.T) {
	manager := newTestManager(t)
	notifier := &recordingNotifier{}

	svc, err := NewService("0 9 * * *", manager, notifier)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.sendDigest()

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.notes) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.notes))
	}
	if !strings.HasPrefix(notifier.notes[0], "digest: ") {
		t.Fatalf("note = %q", notifier.notes[0])
	}
	if !strings.Contains(notifier.notes[0], "0 users") {
		t.Fatalf("empty store should report zero users: %q", notifier.notes[0])
	}
}

func TestStartStop(t *testing.T) {
	svc, err := NewService("0 9 * * *", newTestManager(t), &recordingNotifier{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.Start()
	svc.Stop()
	// Stop is idempotent.
	svc.Stop()
}
