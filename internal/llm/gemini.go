package llm

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/genai"

	"slrforge/internal/config"
	"slrforge/internal/fault"
	"slrforge/internal/logging"
)

const defaultGeminiModel = "gemini-2.0-flash"

// Gemini drafts through the Google Gemini API.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGemini builds the drafter from cfg.LLM.
func NewGemini(cfg *config.Config) (*Gemini, error) {
	if cfg.LLM.APIKey == "" {
		return nil, fault.Validation("gemini api key not configured")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.LLM.APIKey,
	})
	if err != nil {
		return nil, fault.ProviderErr("gemini", false, err, "creating genai client")
	}
	model := cfg.LLM.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &Gemini{
		client:  client,
		model:   model,
		timeout: cfg.LLMTimeout(),
	}, nil
}

func (g *Gemini) Name() string { return "gemini" }

// Draft sends the request and returns the JSON document the model produced.
// The response MIME type is pinned to JSON so the model cannot answer in
// prose.
func (g *Gemini) Draft(ctx context.Context, req DraftRequest) (json.RawMessage, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	logging.DrafterDebug("[gemini] draft: model=%s schema=%s prompt_len=%d", g.model, req.Schema, len(req.Prompt))

	genConfig := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if req.System != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, genConfig)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fault.Timeout(ctx.Err(), "gemini draft canceled")
		}
		return nil, fault.ProviderErr("gemini", true, err, "generating content")
	}

	text := resp.Text()
	if text == "" {
		return nil, fault.ProviderErr("gemini", false, nil, "no completion returned")
	}

	doc, err := extractJSON(text)
	if err != nil {
		return nil, err
	}
	logging.Drafter("[gemini] draft completed in %v response_len=%d", time.Since(start), len(doc))
	return doc, nil
}
