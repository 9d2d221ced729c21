// Package openai talks to any OpenAI-compatible chat-completions endpoint,
// including OpenRouter and Gemini's compatibility layer.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aosus/askaosus/llm"
)

// Per-provider default base URLs, keyed by the llm.provider config value.
var providerBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"gemini":     "https://generativelanguage.googleapis.com/v1beta",
}

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	// Extra headers sent with every request (OpenRouter attribution).
	Headers map[string]string
}

func New(provider, baseURL, apiKey string) (*Client, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = "openai"
	}
	defaultBase, ok := providerBaseURLs[provider]
	if !ok {
		return nil, fmt.Errorf("unknown llm provider: %s (use openai|openrouter|gemini)", provider)
	}
	baseURL = strings.TrimSpace(strings.TrimRight(baseURL, "/"))
	if baseURL == "" {
		baseURL = defaultBase
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("api_key is required")
	}

	headers := map[string]string{}
	if provider == "openrouter" {
		headers["HTTP-Referer"] = "https://github.com/aosus/askaosus"
		headers["X-Title"] = "Askaosus Matrix Bot"
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 90 * time.Second},
		Headers: headers,
	}, nil
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Tools       []llm.Tool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content   string         `json:"content"`
			ToolCalls []llm.ToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Result, error) {
	start := time.Now()

	body := chatCompletionRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Tools:       req.Tools,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if len(req.Tools) > 0 {
		body.ToolChoice = "auto"
	}

	b, err := json.Marshal(body)
	if err != nil {
		return llm.Result{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return llm.Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	for k, v := range c.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return llm.Result{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Result{}, err
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return llm.Result{}, fmt.Errorf("openai decode: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Error != nil && out.Error.Message != "" {
			return llm.Result{}, fmt.Errorf("openai http %d: %s", resp.StatusCode, out.Error.Message)
		}
		return llm.Result{}, fmt.Errorf("openai http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if len(out.Choices) == 0 {
		return llm.Result{}, fmt.Errorf("openai: empty choices")
	}

	choice := out.Choices[0].Message
	return llm.Result{
		Text:      choice.Content,
		ToolCalls: choice.ToolCalls,
		Usage: llm.Usage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
			TotalTokens:  out.Usage.TotalTokens,
		},
		Duration: time.Since(start),
	}, nil
}
