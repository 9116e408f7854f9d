package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/jarvis/pkg/agent"
	"github.com/dotsetgreg/jarvis/pkg/config"
	"github.com/dotsetgreg/jarvis/pkg/memory"
)

type fakeProcessor struct {
	reply   string
	err     error
	lastReq agent.Request
	calls   int
}

func (f *fakeProcessor) Process(_ context.Context, req agent.Request) (string, error) {
	f.calls++
	f.lastReq = req
	return f.reply, f.err
}

func newTestServer(t *testing.T, processor *fakeProcessor) *Server {
	t.Helper()
	store, err := memory.NewSQLiteStore(t.TempDir() + "/memory.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.DefaultConfig()
	return NewServer(cfg, processor, memory.NewManager(store, memory.ManagerConfig{}))
}

func postSMS(t *testing.T, s *Server, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/sms", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRootAndHealth(t *testing.T) {
	s := newTestServer(t, &fakeProcessor{})

	for _, path := range []string{"/", "/healthz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "Jarvis AI Bot is running!", rec.Body.String(), path)
	}
}

func TestStatusReportsCounts(t *testing.T) {
	processor := &fakeProcessor{}
	s := newTestServer(t, processor)

	ctx := context.Background()
	s.manager.EnsureProfile(ctx, "telegram:1", memory.PlatformTelegram, "")
	s.manager.RecordTurn(ctx, "telegram:1", memory.RoleUser, "hi")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "anthropic", status.Provider)
	assert.Equal(t, int64(1), status.Users)
	assert.Equal(t, int64(1), status.Turns)
}

func TestSMSWebhook_Success(t *testing.T) {
	processor := &fakeProcessor{reply: "Here's your reply"}
	s := newTestServer(t, processor)

	rec := postSMS(t, s, url.Values{"From": {"+15550001111"}, "Body": {"hello"}})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<Response><Message>Here&#39;s your reply</Message></Response>")

	assert.Equal(t, memory.PlatformSMS, processor.lastReq.Platform)
	assert.Equal(t, "+15550001111", processor.lastReq.SenderID)
	assert.Equal(t, "hello", processor.lastReq.Content)
}

func TestSMSWebhook_FailureWrapsFallback(t *testing.T) {
	processor := &fakeProcessor{err: errors.New("completion down")}
	s := newTestServer(t, processor)

	rec := postSMS(t, s, url.Values{"From": {"+15550001111"}, "Body": {"hello"}})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), agent.FallbackReply)
	assert.Contains(t, rec.Body.String(), "<Response><Message>")
}

func TestSMSWebhook_MissingFields(t *testing.T) {
	processor := &fakeProcessor{reply: "ok"}
	s := newTestServer(t, processor)

	rec := postSMS(t, s, url.Values{"Body": {"hello"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postSMS(t, s, url.Values{"From": {"+15550001111"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Zero(t, processor.calls)
}

func TestSMSWebhook_AllowlistRejects(t *testing.T) {
	processor := &fakeProcessor{reply: "ok"}
	s := newTestServer(t, processor)
	s.cfg.Channels.SMS.AllowFrom = config.FlexibleStringSlice{"+15559998888"}

	rec := postSMS(t, s, url.Values{"From": {"+15550001111"}, "Body": {"hello"}})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<Message>")
	assert.Zero(t, processor.calls)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeProcessor{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "jarvis_")
}
