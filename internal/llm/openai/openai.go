package openai

import (
	"context"
	"errors"
	"fmt"
	"os"

	"aitradebot/internal/api"
	"aitradebot/internal/llm"
	"aitradebot/internal/store"
	"aitradebot/internal/types"
)

const (
	defaultEndpoint = "https://api.openai.com/v1/chat/completions"
	defaultModel    = "gpt-4o-mini"
)

type Advisor struct {
	cfg      *store.Config
	client   *api.Client
	endpoint string
	apiKey   string
}

func NewAdvisor(cfg *store.Config, opts ...api.ClientOption) *Advisor {
	endpoint := defaultEndpoint
	if ep := os.Getenv("OPENAI_API_ENDPOINT"); ep != "" {
		endpoint = ep
	}
	return &Advisor{
		cfg:      cfg,
		client:   api.NewClient(append([]api.ClientOption{api.WithLogging(true)}, opts...)...),
		endpoint: endpoint,
		apiKey:   os.Getenv("OPENAI_API_KEY"),
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (a *Advisor) Advise(ctx context.Context, req types.AdvisoryRequest) (types.Advice, error) {
	if a.apiKey == "" {
		return types.Advice{}, errors.New("OPENAI_API_KEY missing")
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
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": prompt},
		},
		"temperature":     a.cfg.LLM.Temperature,
		"max_tokens":      a.cfg.LLM.MaxTokens,
		"response_format": map[string]string{"type": "json_object"},
	}
	resp, err := a.client.POST(ctx, a.endpoint, body, map[string]string{"Authorization": "Bearer " + a.apiKey})
	if err != nil {
		return types.Advice{}, fmt.Errorf("openai request: %w", err)
	}

	var cr chatResponse
	if err := resp.ParseJSON(&cr); err != nil {
		return types.Advice{}, err
	}
	if len(cr.Choices) == 0 {
		return types.Advice{}, errors.New("no choices")
	}
	return llm.ParseAdvice(ctx, cr.Choices[0].Message.Content), nil
}
