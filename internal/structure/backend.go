// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package structure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/refextract/internal/httputil"
	"github.com/pdiddy/refextract/pkg/types"
)

// ChatRequest carries one chat-completion invocation.
type ChatRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// ChatBackend abstracts a language-model chat-completion endpoint so tests
// can supply a mock and providers can be swapped by configuration.
type ChatBackend interface {
	ChatComplete(ctx context.Context, req ChatRequest) (string, error)
}

// openAIBaseURLs maps provider names in the OpenAI-compatible family to
// their chat-completions endpoints. These providers share one wire format,
// so a single backend implementation serves them all.
var openAIBaseURLs = map[string]string{
	"openai":   "https://api.openai.com/v1",
	"deepseek": "https://api.deepseek.com/v1",
	"qwen":     "https://dashscope.aliyuncs.com/compatible-mode/v1",
	"moonshot": "https://api.moonshot.cn/v1",
	"zhipu":    "https://open.bigmodel.cn/api/paas/v4",
	"doubao":   "https://ark.cn-beijing.volces.com/api/v3",
}

// NewBackend resolves cfg.Provider to a ChatBackend at construction time.
// Unknown providers are an error, not a runtime dispatch concern.
func NewBackend(cfg types.LLMConfig) (ChatBackend, error) {
	provider := strings.ToLower(cfg.Provider)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	client := &http.Client{Timeout: timeout}

	if provider == "anthropic" {
		return &AnthropicBackend{
			APIKey: cfg.APIKey,
			Model:  cfg.Model,
			URL:    cfg.BaseURL,
			Client: client,
		}, nil
	}

	baseURL, ok := openAIBaseURLs[provider]
	if !ok {
		providers := make([]string, 0, len(openAIBaseURLs)+1)
		for p := range openAIBaseURLs {
			providers = append(providers, p)
		}
		providers = append(providers, "anthropic")
		return nil, fmt.Errorf("unsupported LLM provider %q (supported: %s)", cfg.Provider, strings.Join(providers, ", "))
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}

	return &OpenAIBackend{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: baseURL,
		Client:  client,
	}, nil
}

// OpenAIBackend speaks the OpenAI chat-completions wire format, shared by
// OpenAI, DeepSeek, Qwen, Moonshot, Zhipu, and Doubao.
type OpenAIBackend struct {
	APIKey  string
	Model   string
	BaseURL string
	Client  *http.Client
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

// ChatComplete posts the request and returns the first choice's content.
func (b *OpenAIBackend) ChatComplete(ctx context.Context, req ChatRequest) (string, error) {
	body := openAIRequest{
		Model: b.Model,
		Messages: []openAIMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.APIKey)

	resp, err := httputil.DoWithRetry(ctx, b.Client, httpReq, 0, 0)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("completion API returned %d: %s", resp.StatusCode, truncateForError(payload))
	}

	var parsed openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// anthropicAPIURL is the Anthropic Messages endpoint. Package-level var for
// test substitution.
var anthropicAPIURL = "https://api.anthropic.com/v1/messages"

// AnthropicBackend speaks the Anthropic Messages wire format.
type AnthropicBackend struct {
	APIKey string
	Model  string
	URL    string
	Client *http.Client
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// ChatComplete posts the request and returns the concatenated text blocks.
func (b *AnthropicBackend) ChatComplete(ctx context.Context, req ChatRequest) (string, error) {
	body := anthropicRequest{
		Model:       b.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		System:      req.System,
		Messages: []anthropicMessage{
			{Role: "user", Content: req.User},
		},
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := b.URL
	if url == "" {
		url = anthropicAPIURL
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", b.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := httputil.DoWithRetry(ctx, b.Client, httpReq, 0, 0)
	if err != nil {
		return "", fmt.Errorf("messages request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("messages API returned %d: %s", resp.StatusCode, truncateForError(payload))
	}

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding messages response: %w", err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("messages response has no text content")
	}
	return text.String(), nil
}

// truncateForError bounds an error payload so failures stay readable in logs.
func truncateForError(payload []byte) string {
	const max = 500
	s := string(payload)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
