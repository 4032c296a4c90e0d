package anthropic

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

func newTestService(t *testing.T, h http.HandlerFunc) *LLMService {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	svc, err := NewLLMService(Config{APIKey: "key", BaseURL: srv.URL})
	require.NoError(t, err)
	return svc
}

func TestNewLLMService_RequiresKey(t *testing.T) {
	_, err := NewLLMService(Config{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestChat_LiftsSystemAndReportsUsage(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "be brief", req.System)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, 2000, req.MaxTokens)
		require.NotNil(t, req.Temperature)
		assert.InDelta(t, 0.7, *req.Temperature, 1e-9)

		_, _ = w.Write([]byte(`{"model":"claude-x","content":[{"type":"text","text":"Paris"}],
			"usage":{"input_tokens":12,"output_tokens":3}}`))
	})

	res, err := svc.Chat(context.Background(), []driven.ChatMessage{
		{Role: driven.RoleSystem, Content: "be brief"},
		{Role: driven.RoleUser, Content: "capital of France?"},
	}, driven.ChatOptions{MaxTokens: 2000, Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, "Paris", res.Content)
	assert.Equal(t, "claude-x", res.Model)
	assert.Equal(t, &domain.TokenUsage{InputTokens: 12, OutputTokens: 3, TotalTokens: 15}, res.Usage)
}

func TestGenerate_SendsZeroTemperature(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 0.0, body["temperature"])
		assert.EqualValues(t, DefaultMaxTokens, body["max_tokens"])
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"42"}]}`))
	})

	out, err := svc.Generate(context.Background(), "answer", driven.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "42", out)
}

func TestChat_NoUsage(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	})

	res, err := svc.Chat(context.Background(), []driven.ChatMessage{{Role: driven.RoleUser, Content: "hi"}}, driven.ChatOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Content)
	assert.Nil(t, res.Usage)
	assert.Equal(t, DefaultModel, res.Model)
}

func TestChat_RateLimited(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow"}}`))
	})

	_, err := svc.Chat(context.Background(), []driven.ChatMessage{{Role: driven.RoleUser, Content: "hi"}}, driven.ChatOptions{})
	assert.ErrorIs(t, err, driven.ErrRateLimited)
	assert.ErrorIs(t, err, domain.ErrUpstream)
}
