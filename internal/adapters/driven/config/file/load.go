package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/logger"
)

// EnvPrefix prefixes every docpipe environment variable.
const EnvPrefix = "DOCPIPE_"

// DefaultPath returns ~/.docpipe/config.toml.
func DefaultPath() string {
	return filepath.Join(homeDir(), ".docpipe", "config.toml")
}

// Load reads the config file at path, then a .env file in the working
// directory, then environment variables, each overriding the previous.
// A missing file at the default path is not an error; a missing file at an
// explicit path is. The result is validated.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg := Default()
	if err := decodeFile(path, &cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) || explicit {
			return nil, err
		}
		logger.Debug("config: no file at %s, using defaults", path)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decodeFile picks the decoder by extension; .yaml and .yml select YAML,
// anything else TOML.
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("%w: parsing %s: %v", domain.ErrValidation, path, err)
	}
	return nil
}

// Save writes cfg as TOML with owner-only permissions.
func Save(path string, cfg *Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// binding maps one environment variable onto a field.
type binding struct {
	name string
	set  func(string) error
}

func str(p *string) func(string) error {
	return func(v string) error { *p = v; return nil }
}

func integer(p *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*p = n
		return nil
	}
}

func integer32(p *int32) func(string) error {
	return func(v string) error {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return err
		}
		*p = int32(n)
		return nil
	}
}

func float(p *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*p = f
		return nil
	}
}

func boolean(p *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*p = b
		return nil
	}
}

func duration(p *Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*p = Duration(d)
		return nil
	}
}

func list(p *[]string) func(string) error {
	return func(v string) error {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*p = out
		return nil
	}
}

func (c *Config) bindings() []binding {
	return []binding{
		{EnvPrefix + "LOG_LEVEL", str(&c.Log.Level)},
		{EnvPrefix + "SERVER_ADDR", str(&c.Server.Addr)},
		{EnvPrefix + "STORE_DRIVER", str(&c.Store.Driver)},
		{EnvPrefix + "STORE_SQLITE_DIR", str(&c.Store.SQLiteDir)},
		{EnvPrefix + "STORE_POSTGRES_URL", str(&c.Store.PostgresURL)},
		{"DATABASE_URL", str(&c.Store.PostgresURL)},
		{EnvPrefix + "STORE_MAX_CONNS", integer32(&c.Store.MaxConns)},
		{EnvPrefix + "BLOB_DRIVER", str(&c.Blob.Driver)},
		{EnvPrefix + "BLOB_ENDPOINT", str(&c.Blob.Endpoint)},
		{EnvPrefix + "BLOB_ACCESS_KEY", str(&c.Blob.AccessKey)},
		{EnvPrefix + "BLOB_SECRET_KEY", str(&c.Blob.SecretKey)},
		{EnvPrefix + "BLOB_USE_SSL", boolean(&c.Blob.UseSSL)},
		{EnvPrefix + "BLOB_REGION", str(&c.Blob.Region)},
		{EnvPrefix + "BLOB_INTAKE_BUCKET", str(&c.Blob.IntakeBucket)},
		{EnvPrefix + "BLOB_INDEXED_BUCKET", str(&c.Blob.IndexedBucket)},
		{EnvPrefix + "BLOB_SOURCE_PREFIX", str(&c.Blob.SourcePrefix)},
		{EnvPrefix + "BLOB_DESTINATION_PREFIX", str(&c.Blob.DestinationPrefix)},
		{EnvPrefix + "EMBEDDING_PROVIDER", str(&c.Embedding.Provider)},
		{EnvPrefix + "EMBEDDING_MODEL", str(&c.Embedding.Model)},
		{EnvPrefix + "EMBEDDING_BASE_URL", str(&c.Embedding.BaseURL)},
		{EnvPrefix + "EMBEDDING_API_KEY", str(&c.Embedding.APIKey)},
		{EnvPrefix + "EMBEDDING_DIMENSIONS", integer(&c.Embedding.Dimensions)},
		{EnvPrefix + "EMBEDDING_TIMEOUT", duration(&c.Embedding.Timeout)},
		{EnvPrefix + "EMBEDDING_WORKERS", integer(&c.Embedding.Workers)},
		{EnvPrefix + "EMBEDDING_REQUESTS_PER_SECOND", float(&c.Embedding.RequestsPerSecond)},
		{EnvPrefix + "EMBEDDING_REDIS_ADDR", str(&c.Embedding.RedisAddr)},
		{"REDIS_ADDR", str(&c.Embedding.RedisAddr)},
		{EnvPrefix + "LLM_PROVIDER", str(&c.LLM.Provider)},
		{EnvPrefix + "LLM_MODEL", str(&c.LLM.Model)},
		{EnvPrefix + "LLM_BASE_URL", str(&c.LLM.BaseURL)},
		{EnvPrefix + "LLM_API_KEY", str(&c.LLM.APIKey)},
		{EnvPrefix + "LLM_TIMEOUT", duration(&c.LLM.Timeout)},
		{EnvPrefix + "LLM_TEMPERATURE", float(&c.LLM.Temperature)},
		{EnvPrefix + "LLM_MAX_TOKENS", integer(&c.LLM.MaxTokens)},
		{EnvPrefix + "CHUNKING_SIZE", integer(&c.Chunking.Size)},
		{EnvPrefix + "CHUNKING_OVERLAP", integer(&c.Chunking.Overlap)},
		{EnvPrefix + "RETRIEVAL_MAX_RESULTS", integer(&c.Retrieval.MaxResults)},
		{EnvPrefix + "RETRIEVAL_TAG_MATCH", str(&c.Retrieval.TagMatch)},
		{EnvPrefix + "SYNONYMS_WHOLE_WORD", boolean(&c.Synonyms.WholeWord)},
		{EnvPrefix + "METADATA_WORKERS", integer(&c.Metadata.Workers)},
		{EnvPrefix + "METADATA_CONTEXT_CHUNKS", integer(&c.Metadata.ContextChunks)},
		{EnvPrefix + "METADATA_DELETE_POLICY", str(&c.Metadata.DeletePolicy)},
		{EnvPrefix + "AUTH_ISSUER", str(&c.Auth.Issuer)},
		{EnvPrefix + "AUTH_AUDIENCES", list(&c.Auth.Audiences)},
		{EnvPrefix + "AUTH_TRUST_UPSTREAM", boolean(&c.Auth.TrustUpstream)},
		{EnvPrefix + "AUTH_DISABLED", boolean(&c.Auth.Disabled)},
		{EnvPrefix + "TRACING_ENABLED", boolean(&c.Tracing.Enabled)},
		{EnvPrefix + "TIMEOUTS_STORAGE", duration(&c.Timeouts.Storage)},
		{EnvPrefix + "TIMEOUTS_EXTRACTION", duration(&c.Timeouts.Extraction)},
		{EnvPrefix + "PROMPTS_DIR", str(&c.Prompts.Dir)},
	}
}

// applyEnv overrides fields from lookup. OPENAI_API_KEY fills both provider
// keys when they are unset and the provider is openai.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, b := range c.bindings() {
		v, ok := lookup(b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.set(v); err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrValidation, b.name, err)
		}
	}

	if key, ok := lookup("OPENAI_API_KEY"); ok && key != "" {
		if c.Embedding.Provider == ProviderOpenAI && c.Embedding.APIKey == "" {
			c.Embedding.APIKey = key
		}
		if c.LLM.Provider == ProviderOpenAI && c.LLM.APIKey == "" {
			c.LLM.APIKey = key
		}
	}
	if key, ok := lookup("ANTHROPIC_API_KEY"); ok && key != "" {
		if c.LLM.Provider == ProviderAnthropic && c.LLM.APIKey == "" {
			c.LLM.APIKey = key
		}
	}
	return nil
}
