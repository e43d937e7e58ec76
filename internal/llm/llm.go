/*
Package llm sends an assembled digest to a generative model and returns its
text response.
*/
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/pders01/fxdigest/internal/config"
	"github.com/pders01/fxdigest/internal/debuglog"
	"github.com/pders01/fxdigest/internal/digest"
)

const DefaultModel = "gemini-2.5-flash"

var DefaultSystemPrompt = `
You are a foreign exchange market analyst.

You are given the economic calendar for the coming days and the latest forex
news articles. Write a short briefing for a trader:

1. The scheduled events most likely to move major currency pairs, with date,
   time, currency and the forecast versus previous value where available.
2. The main themes in the news and which currencies they affect.
3. A one-line bias per major pair (EUR/USD, GBP/USD, USD/JPY, AUD/USD) with
   the reason.

Be concise. Use Markdown headings and bullet points. Do not invent figures
that are not in the input.
`

var (
	ErrMissingAPIKey = errors.New("llm: api key is required (set llm.api_key or GEMINI_API_KEY)")
	ErrEmptyResponse = errors.New("llm: model returned no text")
)

// Responder answers an ordered digest with a single text response.
type Responder interface {
	Respond(ctx context.Context, messages []digest.Message) (string, error)
}

// generator is the subset of *genai.Models used here.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Gemini struct {
	models       generator
	model        string
	systemPrompt string
}

// NewGemini fails immediately when no API key is configured.
func NewGemini(ctx context.Context, cfg config.LLMConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return newGemini(client.Models, cfg), nil
}

func newGemini(models generator, cfg config.LLMConfig) *Gemini {
	g := &Gemini{
		models:       models,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
	}
	if g.model == "" {
		g.model = DefaultModel
	}
	if strings.TrimSpace(g.systemPrompt) == "" {
		g.systemPrompt = DefaultSystemPrompt
	}
	return g
}

func (g *Gemini) Respond(ctx context.Context, messages []digest.Message) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("llm: no messages")
	}

	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		contents = append(contents, genai.NewContentFromText(m.Content, toRole(m.Role)))
	}

	debuglog.WithFields(map[string]any{
		"model":    g.model,
		"messages": len(contents),
	}).Debugf("requesting response")

	resp, err := g.models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(g.systemPrompt, genai.RoleUser),
	})
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func toRole(role string) genai.Role {
	if role == digest.RoleAssistant {
		return genai.RoleModel
	}
	return genai.RoleUser
}
