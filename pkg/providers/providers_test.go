package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dotsetgreg/jarvis/pkg/config"
	"github.com/dotsetgreg/jarvis/pkg/memory"
)

func anthropicTestConfig(apiBase string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Agent.Provider = ProviderAnthropic
	cfg.Agent.Model = "test-model"
	cfg.Providers.Anthropic.APIKey = "sk-ant-test"
	cfg.Providers.Anthropic.APIBase = apiBase
	return cfg
}

func TestAnthropicProvider_Complete(t *testing.T) {
	var gotPath, gotKey, gotVersion string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Hello "},{"type":"text","text":"Dana"}]}`))
	}))
	defer server.Close()

	provider, err := CreateProvider(anthropicTestConfig(server.URL))
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}

	reply, err := provider.Complete(context.Background(), "be brief", []memory.ChatMessage{{Role: "user", Content: "hi"}}, 300)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if reply != "Hello Dana" {
		t.Fatalf("reply = %q", reply)
	}
	if gotPath != "/v1/messages" {
		t.Errorf("path = %q, want /v1/messages", gotPath)
	}
	if gotKey != "sk-ant-test" {
		t.Errorf("x-api-key = %q", gotKey)
	}
	if gotVersion == "" {
		t.Errorf("anthropic-version header missing")
	}
	if gotBody["system"] != "be brief" {
		t.Errorf("system = %v", gotBody["system"])
	}
	if gotBody["max_tokens"] != float64(300) {
		t.Errorf("max_tokens = %v", gotBody["max_tokens"])
	}
}

func TestAnthropicProvider_OmitsEmptySystem(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	}))
	defer server.Close()

	provider, err := CreateProvider(anthropicTestConfig(server.URL))
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	if _, err := provider.Complete(context.Background(), "", []memory.ChatMessage{{Role: "user", Content: "hi"}}, 100); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, present := gotBody["system"]; present {
		t.Fatalf("empty system prompt must be omitted from the request")
	}
}

func TestAnthropicProvider_ErrorStatusSurfacesMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	provider, err := CreateProvider(anthropicTestConfig(server.URL))
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	_, err = provider.Complete(context.Background(), "", []memory.ChatMessage{{Role: "user", Content: "hi"}}, 100)
	if err == nil {
		t.Fatalf("expected error on 429")
	}
	if got := err.Error(); !containsAll(got, "status=429", "slow down") {
		t.Fatalf("error should carry status and API message, got %q", got)
	}
}

func TestAnthropicProvider_NoContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer server.Close()

	provider, err := CreateProvider(anthropicTestConfig(server.URL))
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	_, err = provider.Complete(context.Background(), "", []memory.ChatMessage{{Role: "user", Content: "hi"}}, 100)
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("expected ErrNoContent, got %v", err)
	}
}

func TestOpenAIProvider_PrependsSystemMessage(t *testing.T) {
	var gotBody struct {
		Messages []memory.ChatMessage `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-openai-test" {
			t.Errorf("authorization = %q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hey"}}]}`))
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Agent.Provider = ProviderOpenAI
	cfg.Providers.OpenAI.APIKey = "sk-openai-test"
	cfg.Providers.OpenAI.APIBase = server.URL

	provider, err := CreateProvider(cfg)
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	reply, err := provider.Complete(context.Background(), "be brief", []memory.ChatMessage{{Role: "user", Content: "hi"}}, 300)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if reply != "hey" {
		t.Fatalf("reply = %q", reply)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" || gotBody.Messages[0].Content != "be brief" {
		t.Fatalf("system prompt not prepended: %+v", gotBody.Messages)
	}
}

func TestCreateProvider_UnsupportedName(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Agent.Provider = "who-knows"
	if _, err := CreateProvider(cfg); err == nil {
		t.Fatalf("expected unsupported provider error")
	}
}

func TestCreateProvider_MissingKey(t *testing.T) {
	cfg := config.DefaultConfig()
	if _, err := CreateProvider(cfg); err == nil {
		t.Fatalf("expected missing API key error")
	}
}

func TestNormalizeProviderName_DefaultsToAnthropic(t *testing.T) {
	if got := NormalizeProviderName("  "); got != ProviderAnthropic {
		t.Fatalf("normalize = %q", got)
	}
	if got := NormalizeProviderName("OpenAI"); got != ProviderOpenAI {
		t.Fatalf("normalize = %q", got)
	}
}

func TestProviderCredentialStatus(t *testing.T) {
	cfg := config.DefaultConfig()
	name, configured, mode, err := ProviderCredentialStatus(cfg)
	if err != nil {
		t.Fatalf("credential status: %v", err)
	}
	if name != ProviderAnthropic || configured || mode != "api_key" {
		t.Fatalf("unexpected status: %s %v %s", name, configured, mode)
	}

	cfg.Providers.Anthropic.APIKey = "sk-ant"
	_, configured, _, err = ProviderCredentialStatus(cfg)
	if err != nil {
		t.Fatalf("credential status: %v", err)
	}
	if !configured {
		t.Fatalf("expected configured with key set")
	}
}

func containsAll(s string, parts ...string) bool {
	for _, part := range parts {
		if !strings.Contains(s, part) {
			return false
		}
	}
	return true
}
