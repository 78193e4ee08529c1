package claude

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"aitradebot/internal/api"
	"aitradebot/internal/llm"
	"aitradebot/internal/logger"
	"aitradebot/internal/store"
	"aitradebot/internal/types"
)

const (
	defaultEndpoint = "https://api.anthropic.com/v1/messages"
	defaultModel    = "claude-3-5-haiku-latest"
	apiVersion      = "2023-06-01"
)

// Advisor asks the Anthropic Messages API for a directional opinion.
type Advisor struct {
	cfg      *store.Config
	client   *api.Client
	endpoint string
	apiKey   string
}

// NewAdvisor reads CLAUDE_API_KEY and an optional CLAUDE_API_ENDPOINT (proxies, gateways).
func NewAdvisor(cfg *store.Config, opts ...api.ClientOption) *Advisor {
	endpoint := defaultEndpoint
	if ep := os.Getenv("CLAUDE_API_ENDPOINT"); ep != "" {
		endpoint = ep
	}
	return &Advisor{
		cfg:      cfg,
		client:   api.NewClient(append([]api.ClientOption{api.WithLogging(true)}, opts...)...),
		endpoint: endpoint,
		apiKey:   os.Getenv("CLAUDE_API_KEY"),
	}
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (a *Advisor) Advise(ctx context.Context, req types.AdvisoryRequest) (types.Advice, error) {
	if a.apiKey == "" {
		return types.Advice{}, errors.New("CLAUDE_API_KEY missing")
	}

	prompt, err := llm.BuildPrompt(a.cfg.LLM.Schema, req)
	if err != nil {
		return types.Advice{}, err
	}
	system := a.cfg.LLM.System
	if system == "" {
		system = llm.DefaultSystem
	}
	model := a.cfg.LLM.Model
	if model == "" {
		model = defaultModel
	}

	body := map[string]any{
		"model":       model,
		"system":      system,
		"max_tokens":  a.cfg.LLM.MaxTokens,
		"temperature": a.cfg.LLM.Temperature,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	resp, err := a.client.POST(ctx, a.endpoint, body, map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": apiVersion,
	})
	if err != nil {
		return types.Advice{}, fmt.Errorf("claude request: %w", err)
	}

	var mr messagesResponse
	if err := resp.ParseJSON(&mr); err != nil {
		logger.Warn(ctx, "Claude response is not JSON, parsing as text", "symbol", req.Symbol)
		return llm.ParseAdvice(ctx, resp.String()), nil
	}

	var sb strings.Builder
	for _, c := range mr.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	if sb.Len() == 0 {
		return types.Advice{}, errors.New("claude response has no text content")
	}
	return llm.ParseAdvice(ctx, sb.String()), nil
}
