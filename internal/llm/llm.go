// Package llm calls an external text-generation provider over its REST API
// and returns the assistant text. One request, one response; no streaming,
// no retries. A fixed timeout bounds every call.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/basalt-app/basalt/internal/domain"
)

// ProviderConfig identifies the provider, model, and credential for a call.
type ProviderConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"api_key"`
}

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 2048
)

// Client issues generation requests. BaseURL overrides the provider endpoint
// and exists for tests.
type Client struct {
	httpClient *http.Client
	BaseURL    string
}

// NewClient returns a client whose calls time out after the given duration.
func NewClient(timeout time.Duration) *Client {
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// Generate sends the system instruction and content text to the configured
// provider and returns the first assistant candidate's text.
func (c *Client) Generate(ctx context.Context, instruction, content string, cfg ProviderConfig) (string, error) {
	if cfg.Provider == "" {
		return "", fmt.Errorf("%w: provider is not configured", domain.ErrMissingCredential)
	}
	if cfg.Model == "" {
		return "", fmt.Errorf("%w: model is not configured", domain.ErrMissingCredential)
	}
	if cfg.APIKey == "" {
		return "", fmt.Errorf("%w: api key is not configured", domain.ErrMissingCredential)
	}

	provider := strings.ToLower(cfg.Provider)
	content = "Text: " + content

	var (
		url     string
		headers map[string]string
		body    any
		extract func([]byte) (string, error)
	)

	switch provider {
	case "openai", "mistral", "deepseek":
		url = map[string]string{
			"openai":   "https://api.openai.com/v1/chat/completions",
			"mistral":  "https://api.mistral.ai/v1/chat/completions",
			"deepseek": "https://api.deepseek.com/v1/chat/completions",
		}[provider]
		headers = map[string]string{"Authorization": "Bearer " + cfg.APIKey}
		body = map[string]any{
			"model": cfg.Model,
			"messages": []map[string]string{
				{"role": "system", "content": instruction},
				{"role": "user", "content": content},
			},
			"temperature": defaultTemperature,
			"max_tokens":  defaultMaxTokens,
		}
		extract = func(data []byte) (string, error) {
			var resp struct {
				Choices []struct {
					Message struct {
						Content string `json:"content"`
					} `json:"message"`
				} `json:"choices"`
			}
			if err := json.Unmarshal(data, &resp); err != nil || len(resp.Choices) == 0 {
				return "", shapeError(provider, err)
			}
			return resp.Choices[0].Message.Content, nil
		}

	case "anthropic":
		url = "https://api.anthropic.com/v1/messages"
		headers = map[string]string{
			"x-api-key":         cfg.APIKey,
			"anthropic-version": "2023-06-01",
		}
		body = map[string]any{
			"model":       cfg.Model,
			"system":      instruction,
			"messages":    []map[string]string{{"role": "user", "content": content}},
			"temperature": defaultTemperature,
			"max_tokens":  defaultMaxTokens,
		}
		extract = func(data []byte) (string, error) {
			var resp struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			}
			if err := json.Unmarshal(data, &resp); err != nil || len(resp.Content) == 0 {
				return "", shapeError(provider, err)
			}
			return resp.Content[0].Text, nil
		}

	case "google":
		url = fmt.Sprintf(
			"https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s",
			cfg.Model, cfg.APIKey,
		)
		headers = map[string]string{}
		body = map[string]any{
			"contents": []map[string]any{
				{"role": "user", "parts": []map[string]string{{"text": content}}},
			},
			"systemInstruction": map[string]any{
				"parts": []map[string]string{{"text": instruction}},
			},
			"generationConfig": map[string]any{
				"temperature":     defaultTemperature,
				"maxOutputTokens": defaultMaxTokens,
			},
		}
		extract = func(data []byte) (string, error) {
			var resp struct {
				Candidates []struct {
					Content struct {
						Parts []struct {
							Text string `json:"text"`
						} `json:"parts"`
					} `json:"content"`
				} `json:"candidates"`
			}
			if err := json.Unmarshal(data, &resp); err != nil ||
				len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
				return "", shapeError(provider, err)
			}
			return resp.Candidates[0].Content.Parts[0].Text, nil
		}

	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedProvider, cfg.Provider)
	}

	if c.BaseURL != "" {
		url = c.BaseURL
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s request: %w", provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build %s request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s request failed: %v", domain.ErrNetworkFailure, provider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading %s response: %v", domain.ErrNetworkFailure, provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %s returned %s", domain.ErrNetworkFailure, provider, resp.Status)
	}
	if !json.Valid(data) {
		return "", fmt.Errorf("%w: %s returned non-JSON", domain.ErrMalformedResponse, provider)
	}

	return extract(data)
}

func shapeError(provider string, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s response format changed: %v", domain.ErrMalformedResponse, provider, err)
	}
	return fmt.Errorf("%w: %s response format changed", domain.ErrMalformedResponse, provider)
}
