package advisory

import (
	"fmt"

	"aitradebot/internal/interfaces"
	"aitradebot/internal/llm/claude"
	"aitradebot/internal/llm/indicator"
	"aitradebot/internal/llm/llmobs"
	"aitradebot/internal/llm/noop"
	"aitradebot/internal/llm/openai"
	"aitradebot/internal/store"
)

// NewProvider builds the configured advisor wrapped with logging and tracing.
func NewProvider(cfg *store.Config) (interfaces.Advisor, error) {
	var a interfaces.Advisor
	switch cfg.LLM.Provider {
	case "CLAUDE":
		a = claude.NewAdvisor(cfg)
	case "OPENAI":
		a = openai.NewAdvisor(cfg)
	case "INDICATOR":
		a = indicator.NewAdvisor()
	case "NOOP":
		a = noop.NewAdvisor()
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
	return llmobs.Wrap(a, cfg.LLM.Provider), nil
}
