package file

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
)

func newPrompts(t *testing.T, overrides map[string]string) (*PromptStore, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "prompts")
	store, err := NewPromptStore(dir, overrides)
	require.NoError(t, err)
	return store, dir
}

func writePrompt(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".txt"), []byte(content), 0o600))
}

func TestNewPromptStore_DefaultDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}
	store, err := NewPromptStore("", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".docpipe", "prompts"), store.Dir())
}

func TestNewPromptStore_RejectsBadOverrides(t *testing.T) {
	_, err := NewPromptStore(t.TempDir(), map[string]string{driven.PromptAnswerUser: "only %s"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = NewPromptStore(t.TempDir(), map[string]string{"summary": "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPromptStore_LoadWritesDefaults(t *testing.T) {
	store, dir := newPrompts(t, nil)

	_, err := store.Load(driven.PromptAnswerSystem)
	require.NoError(t, err)

	for _, f := range []string{"metadata_extraction.txt", "answer_system.txt", "answer_user.txt", "README.md"} {
		assert.FileExists(t, filepath.Join(dir, f))
	}
}

func TestPromptStore_Precedence(t *testing.T) {
	custom := "Pull the %s out. Format: %s. Source: %s"
	inline := "Context:\n%s\nQ: %s"

	store, dir := newPrompts(t, map[string]string{driven.PromptAnswerUser: inline})
	writePrompt(t, dir, driven.PromptMetadataExtraction, "\n  "+custom+"  \n")
	writePrompt(t, dir, driven.PromptAnswerUser, "ignored %s %s")

	got, err := store.Load(driven.PromptMetadataExtraction)
	require.NoError(t, err)
	assert.Equal(t, custom, got)

	got, err = store.Load(driven.PromptAnswerUser)
	require.NoError(t, err)
	assert.Equal(t, inline, got)

	got, err = store.Load(driven.PromptAnswerSystem)
	require.NoError(t, err)
	want, _ := DefaultPrompt(driven.PromptAnswerSystem)
	assert.Equal(t, want, got)
}

func TestPromptStore_WrongPlaceholderCountFallsBack(t *testing.T) {
	store, dir := newPrompts(t, nil)
	writePrompt(t, dir, driven.PromptMetadataExtraction, "Extract the %s")

	got, err := store.Load(driven.PromptMetadataExtraction)
	require.NoError(t, err)
	assert.Contains(t, got, "expert document analyzer")
}

func TestPromptStore_UnknownPrompt(t *testing.T) {
	store, _ := newPrompts(t, nil)

	_, err := store.Load("summary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summary")
}

func TestPromptStore_CacheAndReload(t *testing.T) {
	store, dir := newPrompts(t, nil)

	first, err := store.Load(driven.PromptAnswerSystem)
	require.NoError(t, err)

	writePrompt(t, dir, driven.PromptAnswerSystem, "Answer tersely.")
	cached, err := store.Load(driven.PromptAnswerSystem)
	require.NoError(t, err)
	assert.Equal(t, first, cached)

	store.Reload()
	fresh, err := store.Load(driven.PromptAnswerSystem)
	require.NoError(t, err)
	assert.Equal(t, "Answer tersely.", fresh)
}

func TestPromptStore_KeepsExistingFiles(t *testing.T) {
	store, dir := newPrompts(t, nil)
	writePrompt(t, dir, driven.PromptAnswerSystem, "mine")

	_, err := store.Load(driven.PromptAnswerUser)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "answer_system.txt"))
	require.NoError(t, err)
	assert.Equal(t, "mine", string(data))
}

func TestPromptStore_ConcurrentLoad(t *testing.T) {
	store, _ := newPrompts(t, nil)

	var wg sync.WaitGroup
	results := make([]string, 50)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := store.Load(driven.PromptMetadataExtraction)
			assert.NoError(t, err)
			results[i] = p
		}(i)
	}
	wg.Wait()

	for _, p := range results {
		assert.Equal(t, results[0], p)
	}
}

func TestDefaultPrompts_Placeholders(t *testing.T) {
	for name, p := range defaultPrompts {
		assert.Equal(t, p.verbs, strings.Count(p.text, "%s"), name)
	}
	_, ok := DefaultPrompt("missing")
	assert.False(t, ok)
}
