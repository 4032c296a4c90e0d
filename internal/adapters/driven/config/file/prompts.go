package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
	"github.com/custodia-labs/docpipe/internal/logger"
)

var _ driven.PromptStore = (*PromptStore)(nil)

// prompt is an embedded default and the number of %s verbs a replacement
// must keep.
type prompt struct {
	text  string
	verbs int
}

//nolint:lll // prompt text is kept on one line
var defaultPrompts = map[string]prompt{
	driven.PromptMetadataExtraction: {
		text:  `You are an expert document analyzer. Extract the %s from this text. Return ONLY the %s or 'Not found' if it cannot be determined. Text: %s`,
		verbs: 3,
	},
	driven.PromptAnswerSystem: {
		text: `You are a helpful assistant that answers questions based on the provided document context and metadata. Provide clear and concise answers based on both the content and metadata of the provided documents. If the answer cannot be found in the context or metadata, state that you don't have enough information to answer.`,
	},
	driven.PromptAnswerUser: {
		text: `Context: %s

Question: %s`,
		verbs: 2,
	},
}

// DefaultPrompt returns the embedded default for name.
func DefaultPrompt(name string) (string, bool) {
	p, ok := defaultPrompts[name]
	return p.text, ok
}

// PromptStore resolves prompt templates. Inline overrides from the config
// file win over files in the prompt directory, which win over the embedded
// defaults. A template whose %s count differs from the default is ignored
// with a warning.
type PromptStore struct {
	dir       string
	overrides map[string]string

	setup    sync.Once
	setupErr error

	mu    sync.RWMutex
	cache map[string]string
}

// NewPromptStore creates a prompt store rooted at dir, or ~/.docpipe/prompts
// when dir is empty. Nothing is written until the first Load.
func NewPromptStore(dir string, overrides map[string]string) (*PromptStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, ".docpipe", "prompts")
	}
	for name, text := range overrides {
		if err := checkTemplate(name, text); err != nil {
			return nil, err
		}
	}
	return &PromptStore{
		dir:       dir,
		overrides: overrides,
		cache:     make(map[string]string),
	}, nil
}

// Dir returns the prompt directory.
func (s *PromptStore) Dir() string {
	return s.dir
}

// Load returns the template for name.
func (s *PromptStore) Load(name string) (string, error) {
	def, known := defaultPrompts[name]
	if !known {
		return "", fmt.Errorf("unknown prompt %q", name)
	}
	if text, ok := s.overrides[name]; ok {
		return text, nil
	}

	s.setup.Do(s.writeDefaults)
	if s.setupErr != nil {
		return def.text, nil
	}

	s.mu.RLock()
	text, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return text, nil
	}

	text = s.readFile(name, def)

	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.cache[name]; ok {
		return cached, nil
	}
	s.cache[name] = text
	return text, nil
}

// Reload drops cached templates so edited files are picked up.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

func (s *PromptStore) readFile(name string, def prompt) string {
	data, err := os.ReadFile(filepath.Join(s.dir, name+".txt"))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("reading prompt %s: %v", name, err)
		}
		return def.text
	}
	text := strings.TrimSpace(string(data))
	if err := checkTemplate(name, text); err != nil {
		logger.Warn("%v, using the built-in prompt", err)
		return def.text
	}
	return text
}

func checkTemplate(name, text string) error {
	def, ok := defaultPrompts[name]
	if !ok {
		return invalid("unknown prompt %q", name)
	}
	if n := strings.Count(text, "%s"); n != def.verbs {
		return invalid("prompt %s has %d %%s placeholders, want %d", name, n, def.verbs)
	}
	return nil
}

func (s *PromptStore) writeDefaults() {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		s.setupErr = fmt.Errorf("create prompt directory: %w", err)
		logger.Warn("%v, using built-in prompts", s.setupErr)
		return
	}
	for name, p := range defaultPrompts {
		if err := writeIfMissing(filepath.Join(s.dir, name+".txt"), p.text); err != nil {
			s.setupErr = err
			return
		}
	}
	if err := writeIfMissing(filepath.Join(s.dir, "README.md"), promptReadme); err != nil {
		s.setupErr = err
	}
}

func writeIfMissing(path, content string) error {
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

const promptReadme = "# docpipe prompts\n\n" +
	"Templates used by metadata extraction and answer synthesis.\n\n" +
	"- `metadata_extraction.txt`: three `%s` verbs (description, expected format, document text)\n" +
	"- `answer_system.txt`: no verbs\n" +
	"- `answer_user.txt`: two `%s` verbs (context, question)\n\n" +
	"A file with a different number of verbs is ignored. Edits take effect after a restart.\n"
