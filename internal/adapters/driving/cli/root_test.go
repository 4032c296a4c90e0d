package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

type mockRetrieval struct {
	req    domain.SearchRequest
	result *domain.SearchResult
	err    error
}

func (m *mockRetrieval) Search(_ context.Context, req domain.SearchRequest) (*domain.SearchResult, error) {
	m.req = req
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockAnswers struct {
	req domain.AnswerRequest
}

func (m *mockAnswers) Answer(_ context.Context, req domain.AnswerRequest) (*domain.Answer, error) {
	m.req = req
	return &domain.Answer{Answer: "Invoices are due on Friday."}, nil
}

type mockDocuments struct {
	docs    []domain.DocumentView
	deleted string
}

func (m *mockDocuments) List(context.Context, domain.DocumentListRequest) ([]domain.DocumentView, error) {
	return m.docs, nil
}

func (m *mockDocuments) Get(_ context.Context, id string) (*domain.DocumentView, error) {
	for i := range m.docs {
		if m.docs[i].UUID == id {
			return &m.docs[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDocuments) UpdateTags(_ context.Context, id string, tags []string) (*domain.Document, error) {
	return &domain.Document{UUID: id, Tags: tags}, nil
}

func (m *mockDocuments) Delete(_ context.Context, id string) error {
	m.deleted = id
	return nil
}

type mockSynonyms struct {
	added []domain.Synonym
}

func (m *mockSynonyms) Add(_ context.Context, s domain.Synonym) (*domain.Synonym, error) {
	s.UUID = "s1"
	m.added = append(m.added, s)
	return &s, nil
}

func (m *mockSynonyms) Update(_ context.Context, s domain.Synonym) (*domain.Synonym, error) {
	return &s, nil
}

func (m *mockSynonyms) Delete(context.Context, string) error { return nil }

func (m *mockSynonyms) List(context.Context) ([]domain.Synonym, error) { return m.added, nil }

func (m *mockSynonyms) Expand(_ context.Context, q string) (*domain.Expansion, error) {
	return &domain.Expansion{OriginalQuery: q, ProcessedQuery: q + " invoice"}, nil
}

type mockMetadata struct {
	report *domain.ComputeReport
	doc    string
	meta   string
}

func (m *mockMetadata) AddDefinition(_ context.Context, d domain.MetadataDefinition) (*domain.MetadataDefinition, error) {
	d.UUID = "m1"
	return &d, nil
}

func (m *mockMetadata) UpdateDefinition(_ context.Context, d domain.MetadataDefinition) (*domain.MetadataDefinition, error) {
	return &d, nil
}

func (m *mockMetadata) DeleteDefinition(context.Context, string, bool) error { return nil }

func (m *mockMetadata) ListDefinitions(context.Context) ([]domain.MetadataDefinition, error) {
	return nil, nil
}

func (m *mockMetadata) Compute(_ context.Context, doc, meta string) (*domain.ComputeReport, error) {
	m.doc, m.meta = doc, meta
	return m.report, nil
}

type testServices struct {
	retrieval *mockRetrieval
	answers   *mockAnswers
	documents *mockDocuments
	synonyms  *mockSynonyms
	metadata  *mockMetadata
}

// setupTestServices binds mocks so commands skip building the app.
func setupTestServices(t *testing.T) *testServices {
	t.Helper()
	ts := &testServices{
		retrieval: &mockRetrieval{result: &domain.SearchResult{}},
		answers:   &mockAnswers{},
		documents: &mockDocuments{},
		synonyms:  &mockSynonyms{},
		metadata:  &mockMetadata{report: &domain.ComputeReport{}},
	}
	retrievalService, answerService = ts.retrieval, ts.answers
	documentService, synonymService, metadataService = ts.documents, ts.synonyms, ts.metadata
	connected = true
	t.Cleanup(func() {
		retrievalService, answerService = nil, nil
		documentService, synonymService, metadataService = nil, nil, nil
		connected = false
	})
	return ts
}

// run executes args against the root command and returns its output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.toml")
	body := `
[store]
driver = "memory"

[blob]
driver = "memory"

[embedding]
provider = "ollama"
model = "nomic-embed-text"

[llm]
provider = "ollama"
model = "llama3"

[prompts]
dir = "` + filepath.ToSlash(filepath.Join(dir, "prompts")) + `"
`
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	t.Cleanup(func() {
		closeApp()
		configPath = ""
	})
	return p
}

func TestRootCmd_RegistersCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "worker", "ingest", "watch", "search", "answer",
		"document", "metadata", "synonyms", "migrate", "mcp", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestRootCmd_MissingExplicitConfig(t *testing.T) {
	t.Cleanup(func() { configPath = "" })
	_, err := run(t, "synonyms", "list", "--config", filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestMigrateCmd_MemoryStore(t *testing.T) {
	out, err := run(t, "migrate", "--config", writeConfig(t))
	require.NoError(t, err)
	assert.Contains(t, out, "memory store is up to date")
}

func TestIngestCmd_ProcessesFile(t *testing.T) {
	cfgFile := writeConfig(t)
	doc := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(doc, []byte("quarterly invoices are due on friday"), 0o644))
	t.Cleanup(func() { ingestSkipVectorize = false })

	out, err := run(t, "ingest", doc, "--skip-vectorize", "--config", cfgFile)
	require.NoError(t, err)
	assert.Contains(t, out, `"outcome": "processed"`)
	assert.Contains(t, out, `"document_status": "INDEXED"`)
	require.NotNil(t, app)

	// a second upload of the same bytes resolves to the existing document
	out, err = run(t, "ingest", doc, "--skip-vectorize", "--config", cfgFile)
	require.NoError(t, err)
	assert.Contains(t, out, `"outcome": "duplicate"`)
}

func TestIngestCmd_RequiresArgs(t *testing.T) {
	_, err := run(t, "ingest")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg(s)")
}
