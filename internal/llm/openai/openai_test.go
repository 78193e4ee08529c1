package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"aitradebot/internal/store"
	"aitradebot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdviseParsesFirstChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"action\":\"sell\",\"confidence\":0.35,\"reason\":\"overbought\"}"}}]}`))
	}))
	defer srv.Close()

	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_API_ENDPOINT", srv.URL)

	got, err := NewAdvisor(store.Default()).Advise(context.Background(), types.AdvisoryRequest{Symbol: "ETHUSDT"})
	require.NoError(t, err)
	assert.Equal(t, types.Advice{Action: "SELL", Confidence: 0.35, Reason: "overbought"}, got)
}

func TestAdviseNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_API_ENDPOINT", srv.URL)

	_, err := NewAdvisor(store.Default()).Advise(context.Background(), types.AdvisoryRequest{Symbol: "ETHUSDT"})
	assert.Error(t, err)
}
