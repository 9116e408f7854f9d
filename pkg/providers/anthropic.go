package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dotsetgreg/jarvis/pkg/config"
	"github.com/dotsetgreg/jarvis/pkg/memory"
)

const (
	defaultAnthropicAPIBase = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	defaultHTTPTimeout      = 120 * time.Second
)

func init() {
	RegisterFactory(ProviderAnthropic, newAnthropicProviderFromConfig, validateAnthropicConfig, anthropicCredentialStatus)
}

type anthropicProvider struct {
	apiKey      string
	apiBase     string
	model       string
	temperature float64
	httpClient  *http.Client
}

func newAnthropicProviderFromConfig(cfg *config.Config) (LLMProvider, error) {
	if err := validateAnthropicConfig(cfg); err != nil {
		return nil, err
	}

	apiBase := strings.TrimRight(strings.TrimSpace(cfg.Providers.Anthropic.APIBase), "/")
	if apiBase == "" {
		apiBase = defaultAnthropicAPIBase
	}

	client, err := newHTTPClient(cfg.Providers.Anthropic.Proxy)
	if err != nil {
		return nil, fmt.Errorf("anthropic client: %w", err)
	}

	return &anthropicProvider{
		apiKey:      cfg.Providers.Anthropic.APIKey,
		apiBase:     apiBase,
		model:       cfg.Agent.Model,
		temperature: cfg.Agent.Temperature,
		httpClient:  client,
	}, nil
}

func validateAnthropicConfig(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Providers.Anthropic.APIKey) == "" {
		return fmt.Errorf("anthropic API key not configured")
	}
	return nil
}

func anthropicCredentialStatus(cfg *config.Config) (bool, string) {
	return strings.TrimSpace(cfg.Providers.Anthropic.APIKey) != "", "api_key"
}

func newHTTPClient(proxy string) (*http.Client, error) {
	client := &http.Client{Timeout: defaultHTTPTimeout}
	proxy = strings.TrimSpace(proxy)
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy: %w", err)
		}
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}
	return client, nil
}

func (p *anthropicProvider) Name() string { return ProviderAnthropic }

func (p *anthropicProvider) Complete(ctx context.Context, systemPrompt string, messages []memory.ChatMessage, maxTokens int) (string, error) {
	if p == nil {
		return "", fmt.Errorf("provider not initialized")
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("anthropic request requires at least one message")
	}

	requestBody := map[string]interface{}{
		"model":       p.model,
		"max_tokens":  maxTokens,
		"temperature": p.temperature,
		"messages":    messages,
	}
	if strings.TrimSpace(systemPrompt) != "" {
		requestBody["system"] = systemPrompt
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("marshal anthropic request: %w", err)
	}

	endpoint := p.apiBase + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send anthropic request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read anthropic response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("anthropic API request failed: status=%d error=%s", resp.StatusCode, extractAPIError(body))
	}

	return parseAnthropicResponse(body)
}

func parseAnthropicResponse(body []byte) (string, error) {
	var apiResponse struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return "", fmt.Errorf("parse anthropic response: %w", err)
	}

	var parts []string
	for _, block := range apiResponse.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", ErrNoContent
	}
	return strings.Join(parts, ""), nil
}

func extractAPIError(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "empty response body"
	}

	var payload struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := strings.TrimSpace(payload.Error.Message); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(payload.Message); msg != "" {
			return msg
		}
	}

	if len(trimmed) > 2000 {
		return trimmed[:2000] + "..."
	}
	return trimmed
}
