package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"slrforge/internal/config"
	"slrforge/internal/fault"
	"slrforge/internal/logging"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"

	openAIMaxRetries = 3
)

// OpenAI drafts through the OpenAI chat completions API (or any
// API-compatible endpoint via base_url).
type OpenAI struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	backoff    time.Duration
}

// NewOpenAI builds the drafter from cfg.LLM.
func NewOpenAI(cfg *config.Config) *OpenAI {
	baseURL := cfg.LLM.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model := cfg.LLM.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{
		apiKey:  cfg.LLM.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: cfg.LLMTimeout(),
		},
		backoff: time.Second,
	}
}

func (c *OpenAI) Name() string { return "openai" }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Temperature    float64               `json:"temperature"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Draft sends the request and returns the JSON document the model produced.
func (c *OpenAI) Draft(ctx context.Context, req DraftRequest) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, fault.Validation("openai api key not configured")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	start := time.Now()
	logging.DrafterDebug("[openai] draft: model=%s schema=%s prompt_len=%d", c.model, req.Schema, len(req.Prompt))

	reqBody := openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
		MaxTokens:      4096,
		Temperature:    0.1,
		ResponseFormat: &openAIResponseFormat{Type: "json_object"},
	}

	var lastErr error
	for i := 0; i <= openAIMaxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(1<<uint(i-1)) * c.backoff)
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fault.Internal(err, "marshaling openai request")
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fault.Internal(err, "creating openai request")
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fault.Timeout(ctx.Err(), "openai draft canceled")
			}
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fault.ProviderErr("openai", true, nil, "status %d: %s", resp.StatusCode, firstLine(body))
			continue
		}

		if resp.StatusCode != http.StatusOK {
			// Some compatible endpoints reject response_format; retry once
			// without it.
			if reqBody.ResponseFormat != nil && resp.StatusCode == http.StatusBadRequest &&
				strings.Contains(string(body), "response_format") {
				reqBody.ResponseFormat = nil
				lastErr = fault.ProviderErr("openai", true, nil, "endpoint rejected response_format")
				continue
			}
			return nil, fault.ProviderErr("openai", false, nil, "status %d: %s", resp.StatusCode, firstLine(body))
		}

		var parsed openAIResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fault.Corrupt(err, "parsing openai response")
		}
		if parsed.Error != nil {
			return nil, fault.ProviderErr("openai", false, nil, "api error: %s", parsed.Error.Message)
		}
		if len(parsed.Choices) == 0 {
			return nil, fault.ProviderErr("openai", false, nil, "no completion returned")
		}

		doc, err := extractJSON(parsed.Choices[0].Message.Content)
		if err != nil {
			return nil, err
		}
		logging.Drafter("[openai] draft completed in %v response_len=%d", time.Since(start), len(doc))
		return doc, nil
	}

	return nil, fault.ProviderErr("openai", true, lastErr, "max retries exceeded")
}

// firstLine keeps error bodies to one log-friendly line.
func firstLine(body []byte) string {
	s := strings.TrimSpace(string(body))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
