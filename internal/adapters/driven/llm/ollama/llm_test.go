package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, false, body["stream"])
		opts := body["options"].(map[string]any)
		assert.Equal(t, 0.0, opts["temperature"])
		_, _ = w.Write([]byte(`{"response":"12/03/2024","done":true}`))
	}))
	defer srv.Close()

	out, err := NewLLMService(LLMConfig{BaseURL: srv.URL}).Generate(context.Background(), "date?", driven.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "12/03/2024", out)
}

func TestChat_ReportsUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, 500, req.Options.NumPredict)
		_, _ = w.Write([]byte(`{"model":"llama3.2","message":{"role":"assistant","content":"Yes."},
			"done":true,"prompt_eval_count":20,"eval_count":2}`))
	}))
	defer srv.Close()

	res, err := NewLLMService(LLMConfig{BaseURL: srv.URL}).Chat(context.Background(), []driven.ChatMessage{
		{Role: driven.RoleSystem, Content: "sys"},
		{Role: driven.RoleUser, Content: "q"},
	}, driven.ChatOptions{MaxTokens: 500})
	require.NoError(t, err)
	assert.Equal(t, "Yes.", res.Content)
	assert.Equal(t, &domain.TokenUsage{InputTokens: 20, OutputTokens: 2, TotalTokens: 22}, res.Usage)
}

func TestChat_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	_, err := NewLLMService(LLMConfig{BaseURL: srv.URL}).Chat(context.Background(), nil, driven.ChatOptions{})
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Contains(t, err.Error(), "model not found")
}
