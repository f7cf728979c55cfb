package llm

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"slrforge/internal/config"
	"slrforge/internal/fault"
	"slrforge/internal/logging"
)

const (
	defaultAnthropicModel = "claude-3-5-sonnet-20241022"

	anthropicMaxRetries     = 3
	anthropicInitialBackoff = time.Second
)

// Anthropic drafts through the Anthropic Messages API.
type Anthropic struct {
	client  anthropic.Client
	apiKey  string
	model   anthropic.Model
	timeout time.Duration
	backoff time.Duration
}

// NewAnthropic builds the drafter from cfg.LLM.
func NewAnthropic(cfg *config.Config) *Anthropic {
	model := cfg.LLM.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	return &Anthropic{
		client:  anthropic.NewClient(option.WithAPIKey(cfg.LLM.APIKey)),
		apiKey:  cfg.LLM.APIKey,
		model:   anthropic.Model(model),
		timeout: cfg.LLMTimeout(),
		backoff: anthropicInitialBackoff,
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

// Draft sends the request and returns the JSON document the model produced.
// The system framing is folded into the user turn so the whole instruction
// travels in one message.
func (a *Anthropic) Draft(ctx context.Context, req DraftRequest) (json.RawMessage, error) {
	if a.apiKey == "" {
		return nil, fault.Validation("anthropic api key not configured")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	logging.DrafterDebug("[anthropic] draft: model=%s schema=%s prompt_len=%d", a.model, req.Schema, len(req.Prompt))

	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + req.Prompt
	}
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var lastErr error
	for attempt := 1; attempt <= anthropicMaxRetries; attempt++ {
		if attempt > 1 {
			backoff := a.backoff * time.Duration(math.Pow(2, float64(attempt-2)))
			select {
			case <-ctx.Done():
				return nil, fault.Timeout(ctx.Err(), "anthropic draft canceled")
			case <-time.After(backoff):
			}
		}

		message, err := a.client.Messages.New(ctx, params)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fault.Timeout(ctx.Err(), "anthropic draft canceled")
			}
			if !anthropicRetryable(err) {
				return nil, fault.ProviderErr("anthropic", false, err, "messages api")
			}
			lastErr = err
			continue
		}

		for _, content := range message.Content {
			if content.Type == "text" {
				doc, err := extractJSON(content.Text)
				if err != nil {
					return nil, err
				}
				logging.Drafter("[anthropic] draft completed in %v response_len=%d", time.Since(start), len(doc))
				return doc, nil
			}
		}
		return nil, fault.ProviderErr("anthropic", false, nil, "no text content returned")
	}

	return nil, fault.ProviderErr("anthropic", true, lastErr, "max retries exceeded")
}

// anthropicRetryable reports whether the API error is transient. Rate
// limits, server errors, and network timeouts are retried; everything else
// is terminal.
func anthropicRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
