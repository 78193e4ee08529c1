package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"aitradebot/internal/logger"
	"aitradebot/internal/types"
)

const (
	DefaultSystem = "You are a disciplined short-horizon crypto scalper. Output STRICT JSON with BUY/SELL/HOLD."
	DefaultSchema = `{"action":"BUY|SELL|HOLD","confidence":0.0,"reason":"string"}`

	// snapshots beyond this are dropped from the prompt; indicators already summarize them
	maxPromptSnapshots = 20
)

// BuildPrompt renders the user message shared by the chat providers.
func BuildPrompt(schema string, req types.AdvisoryRequest) (string, error) {
	if schema == "" {
		schema = DefaultSchema
	}
	snaps := req.Snapshots
	if len(snaps) > maxPromptSnapshots {
		snaps = snaps[len(snaps)-maxPromptSnapshots:]
	}
	state := map[string]any{
		"symbol":     req.Symbol,
		"recent":     snaps,
		"indicators": req.Indicators,
	}
	if len(req.Context) > 0 {
		state["context"] = req.Context
	}
	b, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("marshal advisory state: %w", err)
	}
	return fmt.Sprintf("Schema:%s\nState:%s\n\nRespond ONLY with compact JSON matching the schema.", schema, b), nil
}

// ParseAdvice locates a JSON object in model output. Output that cannot be
// parsed becomes HOLD with zero confidence rather than an error.
func ParseAdvice(ctx context.Context, text string) types.Advice {
	t := strings.TrimSpace(text)
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	t = strings.TrimSpace(t)

	var a types.Advice
	if err := json.Unmarshal([]byte(t), &a); err == nil {
		return Normalize(a)
	}
	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(t[start:end+1]), &a); err == nil {
			return Normalize(a)
		}
	}

	logger.Warn(ctx, "Unable to parse advice from model output, defaulting to HOLD", "preview", t[:min(100, len(t))])
	return types.Advice{Action: string(types.Hold), Reason: "unparseable_output"}
}

// Normalize upper-cases the action and forces anything outside BUY/SELL/HOLD or
// [0,1] confidence to a neutral value.
func Normalize(a types.Advice) types.Advice {
	a.Action = string(types.ParseDirection(strings.ToUpper(strings.TrimSpace(a.Action))))
	if a.Confidence < 0 || a.Confidence > 1 {
		a.Confidence = 0
	}
	return a
}
