package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dotsetgreg/jarvis/pkg/config"
	"github.com/dotsetgreg/jarvis/pkg/memory"
)

const defaultOpenAIAPIBase = "https://api.openai.com/v1"

func init() {
	RegisterFactory(ProviderOpenAI, newOpenAIProviderFromConfig, validateOpenAIConfig, openAICredentialStatus)
}

// chatCompletionsProvider speaks the OpenAI-compatible chat completions
// protocol. The system prompt travels as a leading system-role message.
type chatCompletionsProvider struct {
	apiKey      string
	apiBase     string
	model       string
	temperature float64
	httpClient  *http.Client
}

func newOpenAIProviderFromConfig(cfg *config.Config) (LLMProvider, error) {
	if err := validateOpenAIConfig(cfg); err != nil {
		return nil, err
	}

	apiBase := strings.TrimRight(strings.TrimSpace(cfg.Providers.OpenAI.APIBase), "/")
	if apiBase == "" {
		apiBase = defaultOpenAIAPIBase
	}

	client, err := newHTTPClient(cfg.Providers.OpenAI.Proxy)
	if err != nil {
		return nil, fmt.Errorf("openai client: %w", err)
	}

	return &chatCompletionsProvider{
		apiKey:      cfg.Providers.OpenAI.APIKey,
		apiBase:     apiBase,
		model:       cfg.Agent.Model,
		temperature: cfg.Agent.Temperature,
		httpClient:  client,
	}, nil
}

func validateOpenAIConfig(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Providers.OpenAI.APIKey) == "" {
		return fmt.Errorf("openai API key not configured")
	}
	return nil
}

func openAICredentialStatus(cfg *config.Config) (bool, string) {
	return strings.TrimSpace(cfg.Providers.OpenAI.APIKey) != "", "api_key"
}

func (p *chatCompletionsProvider) Name() string { return ProviderOpenAI }

func (p *chatCompletionsProvider) Complete(ctx context.Context, systemPrompt string, messages []memory.ChatMessage, maxTokens int) (string, error) {
	if p == nil {
		return "", fmt.Errorf("provider not initialized")
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("openai request requires at least one message")
	}

	payload := make([]memory.ChatMessage, 0, len(messages)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		payload = append(payload, memory.ChatMessage{Role: "system", Content: systemPrompt})
	}
	payload = append(payload, messages...)

	requestBody := map[string]interface{}{
		"model":       p.model,
		"messages":    payload,
		"max_tokens":  maxTokens,
		"temperature": p.temperature,
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("marshal openai request: %w", err)
	}

	endpoint := p.apiBase + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("create openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send openai request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read openai response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("openai API request failed: status=%d error=%s", resp.StatusCode, extractAPIError(body))
	}

	return parseChatCompletionsResponse(body)
}

func parseChatCompletionsResponse(body []byte) (string, error) {
	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content interface{} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return "", fmt.Errorf("parse openai response: %w", err)
	}
	if len(apiResponse.Choices) == 0 {
		return "", ErrNoContent
	}

	content := flattenMessageContent(apiResponse.Choices[0].Message.Content)
	if content == "" {
		return "", ErrNoContent
	}
	return content, nil
}

func flattenMessageContent(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if text, ok := m["text"].(string); ok {
				parts = append(parts, text)
				continue
			}
			if content, ok := m["content"].(string); ok {
				parts = append(parts, content)
			}
		}
		return strings.Join(parts, "")
	default:
		return ""
	}
}
