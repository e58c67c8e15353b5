package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rpossan/asktive-record/internal/askerr"
	"github.com/rpossan/asktive-record/internal/observability"
)

const (
	DefaultProvider    = "OpenAI"
	DefaultBaseURL     = "https://api.openai.com"
	DefaultModel       = "gpt-3.5-turbo"
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 250
)

type OpenAIConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	provider    string
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
	logger      *slog.Logger
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	provider := strings.TrimSpace(cfg.Provider)
	if provider == "" {
		provider = DefaultProvider
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, askerr.Configuration("%s API key is not configured", provider)
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &OpenAIClient{
		provider:    provider,
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		client:      client,
		logger:      observability.LoggerOrDiscard(cfg.Logger),
	}, nil
}

func (c *OpenAIClient) Provider() string { return c.provider }

func (c *OpenAIClient) Model() string { return c.model }

func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	content, err := c.complete(ctx, prompt)
	outcome := observability.OutcomeOK
	switch {
	case err != nil:
		outcome = observability.OutcomeError
		c.logger.WarnContext(ctx, "llm completion failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("provider", c.provider),
			slog.String("model", c.model),
			slog.Any("error", err),
		)
	case strings.TrimSpace(content) == "":
		outcome = observability.OutcomeEmpty
	}
	observability.ObserveCompletion(c.provider, outcome, time.Since(start))
	return content, err
}

func (c *OpenAIClient) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(buildChatPayload(c.model, c.temperature, c.maxTokens, prompt))
	if err != nil {
		return "", askerr.GenerationFailed(fmt.Errorf("marshal chat payload: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", askerr.GenerationFailed(fmt.Errorf("build chat request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", askerr.API(c.provider, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", askerr.API(c.provider, fmt.Sprintf("read response body: %v", err))
	}
	if resp.StatusCode >= 400 {
		return "", askerr.API(c.provider, providerErrorDetail(resp.StatusCode, rawRespBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content *string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", askerr.GenerationFailed(fmt.Errorf("decode chat completion response: %w", err))
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == nil {
		return "", nil
	}
	return *parsed.Choices[0].Message.Content, nil
}

func buildChatPayload(model string, temperature float64, maxTokens int, prompt string) map[string]any {
	return map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": temperature,
		"max_tokens":  maxTokens,
	}
}

func providerErrorDetail(status int, body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && strings.TrimSpace(envelope.Error.Message) != "" {
		return envelope.Error.Message
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return fmt.Sprintf("status=%d", status)
	}
	return fmt.Sprintf("status=%d body=%s", status, text)
}
