package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when GeminiConfig.Model is empty.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int32
	// BaseURL overrides the API endpoint (tests).
	BaseURL string
}

// Gemini generates documents with the Gemini API. It only performs the call;
// retries, rate limiting and logging are applied by the Synthesizer and
// middleware.
type Gemini struct {
	cli   *genai.Client
	model string
	cfg   GeminiConfig
}

// NewGemini creates a Gemini provider.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	cli, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("synth: gemini client: %w", err)
	}
	return &Gemini{cli: cli, model: cfg.Model, cfg: cfg}, nil
}

func (g *Gemini) Name() string { return "gemini:" + g.model }

func (g *Gemini) Generate(ctx context.Context, p Prompt) (string, error) {
	temp := g.cfg.Temperature
	gc := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: g.cfg.MaxTokens,
	}
	if p.System != "" {
		gc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: p.System}}}
	}
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: p.User}}}},
		gc,
	)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", classifyStatus(apiErr.Code, err)
		}
		return "", classifyTransport(err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String(), nil
}
