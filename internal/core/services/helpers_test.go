package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docpipe/internal/adapters/driven/config/file"
	"github.com/custodia-labs/docpipe/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
)

// mockEmbedder maps texts to vectors by keyword. Texts containing a key in
// failOn return an error.
type mockEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	failOn  map[string]error
	tokens  int
	calls   int
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{vectors: map[string][]float32{}, failOn: map[string]error{}, tokens: 7}
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (driven.Embedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	for k, err := range m.failOn {
		if strings.Contains(text, k) {
			return driven.Embedding{}, err
		}
	}
	for k, v := range m.vectors {
		if strings.Contains(text, k) {
			return driven.Embedding{Vector: v, Tokens: m.tokens}, nil
		}
	}
	return driven.Embedding{Vector: []float32{0.1, 0.1, 0.1}, Tokens: m.tokens}, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]driven.Embedding, error) {
	out := make([]driven.Embedding, len(texts))
	for i, t := range texts {
		e, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int              { return 3 }
func (m *mockEmbedder) ModelName() string            { return "mock-embed" }
func (m *mockEmbedder) Ping(_ context.Context) error { return nil }
func (m *mockEmbedder) Close() error                 { return nil }

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockLLM answers Generate by matching prompt substrings and records Chat calls.
type mockLLM struct {
	mu        sync.Mutex
	answers   map[string]string
	failOn    map[string]error
	chat      driven.ChatResult
	chatErr   error
	chatCalls [][]driven.ChatMessage
	chatOpts  []driven.ChatOptions
	genOpts   []driven.GenerateOptions
	prompts   []string
}

func newMockLLM() *mockLLM {
	return &mockLLM{answers: map[string]string{}, failOn: map[string]error{}}
}

func (m *mockLLM) Generate(_ context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.genOpts = append(m.genOpts, opts)
	m.prompts = append(m.prompts, prompt)
	for k, err := range m.failOn {
		if strings.Contains(prompt, k) {
			return "", err
		}
	}
	for k, a := range m.answers {
		if strings.Contains(prompt, k) {
			return a, nil
		}
	}
	return "Not found", nil
}

func (m *mockLLM) Chat(_ context.Context, msgs []driven.ChatMessage, opts driven.ChatOptions) (driven.ChatResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatCalls = append(m.chatCalls, msgs)
	m.chatOpts = append(m.chatOpts, opts)
	return m.chat, m.chatErr
}

func (m *mockLLM) ModelName() string            { return "mock-llm" }
func (m *mockLLM) Ping(_ context.Context) error { return nil }
func (m *mockLLM) Close() error                 { return nil }

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.PipelineEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.PipelineEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) failures() []domain.PipelineEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.PipelineEvent
	for _, e := range p.events {
		if e.Failed() {
			out = append(out, e)
		}
	}
	return out
}

var errProvider = errors.New("provider unavailable")

// defaultPrompts serves the built-in templates without touching disk.
type defaultPrompts struct{}

func (defaultPrompts) Load(name string) (string, error) {
	if p, ok := file.DefaultPrompt(name); ok {
		return p, nil
	}
	return "", errors.New("unknown prompt " + name)
}

func (defaultPrompts) Reload() {}

func addDocument(t *testing.T, store *memory.Store, doc domain.Document) {
	t.Helper()
	if doc.Status == "" {
		doc.Status = domain.StatusIndexed
	}
	if doc.Hash == "" {
		doc.Hash = "hash-" + doc.UUID
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	require.NoError(t, store.CreateDocument(context.Background(), &doc))
}

func addChunks(t *testing.T, store *memory.Store, documentUUID string, texts ...string) []domain.Chunk {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{
			UUID:         documentUUID + "-c" + string(rune('0'+i)),
			DocumentUUID: documentUUID,
			Position:     i,
			Text:         text,
			CreatedAt:    base.Add(time.Duration(i) * time.Second),
		}
	}
	require.NoError(t, store.ReplaceChunks(context.Background(), documentUUID, chunks))
	return chunks
}

func addDefinition(t *testing.T, store *memory.Store, uuid, name string, typ domain.MetadataType) *domain.MetadataDefinition {
	t.Helper()
	def := &domain.MetadataDefinition{UUID: uuid, Name: name, Description: "the " + name, Type: typ}
	require.NoError(t, store.CreateDefinition(context.Background(), def))
	return def
}

func setValue(t *testing.T, store *memory.Store, documentUUID, metadataUUID string, v domain.MetadataValue) {
	t.Helper()
	v.UUID = documentUUID + "-" + metadataUUID
	v.DocumentUUID = documentUUID
	v.MetadataUUID = metadataUUID
	require.NoError(t, store.UpsertValue(context.Background(), &v))
}
