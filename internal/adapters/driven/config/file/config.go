package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// Duration is a time.Duration written as "30s" or "2m" in config files.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	return d.UnmarshalText([]byte(n.Value))
}

// Config is the full docpipe configuration.
type Config struct {
	Log       LogConfig       `toml:"log" yaml:"log"`
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Store     StoreConfig     `toml:"store" yaml:"store"`
	Blob      BlobConfig      `toml:"blob" yaml:"blob"`
	Embedding EmbeddingConfig `toml:"embedding" yaml:"embedding"`
	LLM       LLMConfig       `toml:"llm" yaml:"llm"`
	Chunking  ChunkingConfig  `toml:"chunking" yaml:"chunking"`
	Retrieval RetrievalConfig `toml:"retrieval" yaml:"retrieval"`
	Synonyms  SynonymsConfig  `toml:"synonyms" yaml:"synonyms"`
	Metadata  MetadataConfig  `toml:"metadata" yaml:"metadata"`
	Auth      AuthConfig      `toml:"auth" yaml:"auth"`
	Tracing   TracingConfig   `toml:"tracing" yaml:"tracing"`
	Timeouts  TimeoutsConfig  `toml:"timeouts" yaml:"timeouts"`
	Prompts   PromptsConfig   `toml:"prompts" yaml:"prompts"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr              string   `toml:"addr" yaml:"addr"`
	ReadHeaderTimeout Duration `toml:"read_header_timeout" yaml:"read_header_timeout"`
}

// StoreConfig selects the repository backend.
type StoreConfig struct {
	Driver       string   `toml:"driver" yaml:"driver"`
	SQLiteDir    string   `toml:"sqlite_dir" yaml:"sqlite_dir"`
	PostgresURL  string   `toml:"postgres_url" yaml:"postgres_url"`
	MaxConns     int32    `toml:"max_conns" yaml:"max_conns"`
	MinConns     int32    `toml:"min_conns" yaml:"min_conns"`
	ConnLifetime Duration `toml:"conn_lifetime" yaml:"conn_lifetime"`
}

// BlobConfig selects the object store and names the two buckets.
type BlobConfig struct {
	Driver            string `toml:"driver" yaml:"driver"`
	Endpoint          string `toml:"endpoint" yaml:"endpoint"`
	AccessKey         string `toml:"access_key" yaml:"access_key"`
	SecretKey         string `toml:"secret_key" yaml:"secret_key"`
	UseSSL            bool   `toml:"use_ssl" yaml:"use_ssl"`
	Region            string `toml:"region" yaml:"region"`
	IntakeBucket      string `toml:"intake_bucket" yaml:"intake_bucket"`
	IndexedBucket     string `toml:"indexed_bucket" yaml:"indexed_bucket"`
	SourcePrefix      string `toml:"source_prefix" yaml:"source_prefix"`
	DestinationPrefix string `toml:"destination_prefix" yaml:"destination_prefix"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider          string   `toml:"provider" yaml:"provider"`
	Model             string   `toml:"model" yaml:"model"`
	BaseURL           string   `toml:"base_url" yaml:"base_url"`
	APIKey            string   `toml:"api_key" yaml:"api_key"`
	Dimensions        int      `toml:"dimensions" yaml:"dimensions"`
	Timeout           Duration `toml:"timeout" yaml:"timeout"`
	Workers           int      `toml:"workers" yaml:"workers"`
	RequestsPerSecond float64  `toml:"requests_per_second" yaml:"requests_per_second"`
	Burst             int      `toml:"burst" yaml:"burst"`
	RedisAddr         string   `toml:"redis_addr" yaml:"redis_addr"`
	RedisPassword     string   `toml:"redis_password" yaml:"redis_password"`
	CacheTTL          Duration `toml:"cache_ttl" yaml:"cache_ttl"`
}

// LLMConfig selects the completion provider.
type LLMConfig struct {
	Provider    string   `toml:"provider" yaml:"provider"`
	Model       string   `toml:"model" yaml:"model"`
	BaseURL     string   `toml:"base_url" yaml:"base_url"`
	APIKey      string   `toml:"api_key" yaml:"api_key"`
	Timeout     Duration `toml:"timeout" yaml:"timeout"`
	Temperature float64  `toml:"temperature" yaml:"temperature"`
	MaxTokens   int      `toml:"max_tokens" yaml:"max_tokens"`
}

// ChunkingConfig sizes chunks in runes.
type ChunkingConfig struct {
	Size    int `toml:"size" yaml:"size"`
	Overlap int `toml:"overlap" yaml:"overlap"`
}

// RetrievalConfig bounds search results.
type RetrievalConfig struct {
	DefaultResults int    `toml:"default_results" yaml:"default_results"`
	MaxResults     int    `toml:"max_results" yaml:"max_results"`
	TagMatch       string `toml:"tag_match" yaml:"tag_match"`
}

// SynonymsConfig tunes query expansion.
type SynonymsConfig struct {
	WholeWord bool `toml:"whole_word" yaml:"whole_word"`
}

// MetadataConfig tunes metadata compute.
type MetadataConfig struct {
	Workers       int    `toml:"workers" yaml:"workers"`
	ContextChunks int    `toml:"context_chunks" yaml:"context_chunks"`
	DeletePolicy  string `toml:"delete_policy" yaml:"delete_policy"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Issuer        string   `toml:"issuer" yaml:"issuer"`
	Audiences     []string `toml:"audiences" yaml:"audiences"`
	TrustUpstream bool     `toml:"trust_upstream" yaml:"trust_upstream"`
	Disabled      bool     `toml:"disabled" yaml:"disabled"`
}

// TracingConfig enables OpenTelemetry spans.
type TracingConfig struct {
	Enabled     bool   `toml:"enabled" yaml:"enabled"`
	ServiceName string `toml:"service_name" yaml:"service_name"`
}

// TimeoutsConfig bounds storage and extraction calls.
type TimeoutsConfig struct {
	Storage    Duration `toml:"storage" yaml:"storage"`
	Extraction Duration `toml:"extraction" yaml:"extraction"`
}

// PromptsConfig locates the prompt directory. Overrides replace a named
// template inline.
type PromptsConfig struct {
	Dir       string            `toml:"dir" yaml:"dir"`
	Overrides map[string]string `toml:"overrides" yaml:"overrides"`
}

// Store, blob and provider driver names.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMinio    = "minio"

	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log:    LogConfig{Level: "info"},
		Server: ServerConfig{Addr: ":8080", ReadHeaderTimeout: Duration(10 * time.Second)},
		Store: StoreConfig{
			Driver:       DriverSQLite,
			SQLiteDir:    filepath.Join(homeDir(), ".docpipe", "data"),
			MaxConns:     10,
			MinConns:     2,
			ConnLifetime: Duration(time.Hour),
		},
		Blob: BlobConfig{
			Driver:            DriverMemory,
			Region:            "us-east-1",
			IntakeBucket:      "docpipe-intake",
			IndexedBucket:     "docpipe-indexed",
			SourcePrefix:      "uploads/",
			DestinationPrefix: "indexed/",
		},
		Embedding: EmbeddingConfig{
			Provider: ProviderOpenAI,
			Model:    "text-embedding-3-small",
			Timeout:  Duration(30 * time.Second),
			Workers:  4,
			CacheTTL: Duration(7 * 24 * time.Hour),
		},
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			Model:       "gpt-4o-mini",
			Timeout:     Duration(2 * time.Minute),
			Temperature: 0.7,
			MaxTokens:   2000,
		},
		Chunking:  ChunkingConfig{Size: 1000, Overlap: 100},
		Retrieval: RetrievalConfig{DefaultResults: domain.DefaultNumResults, MaxResults: domain.MaxNumResults, TagMatch: string(domain.TagMatchSuperset)},
		Metadata:  MetadataConfig{Workers: 4, ContextChunks: 3, DeletePolicy: "reject"},
		Tracing:   TracingConfig{ServiceName: "docpipe"},
		Timeouts:  TimeoutsConfig{Storage: Duration(30 * time.Second), Extraction: Duration(2 * time.Minute)},
		Prompts:   PromptsConfig{Dir: filepath.Join(homeDir(), ".docpipe", "prompts")},
	}
}

// Validate reports the first invalid field as a validation error.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.SQLiteDir == "" {
			return invalid("store.sqlite_dir is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.PostgresURL == "" {
			return invalid("store.postgres_url is required for the postgres driver")
		}
	default:
		return invalid("store.driver must be memory, sqlite or postgres, got %q", c.Store.Driver)
	}

	switch c.Blob.Driver {
	case DriverMemory:
	case DriverMinio:
		if c.Blob.Endpoint == "" {
			return invalid("blob.endpoint is required for the minio driver")
		}
	default:
		return invalid("blob.driver must be memory or minio, got %q", c.Blob.Driver)
	}
	if c.Blob.IntakeBucket == "" || c.Blob.IndexedBucket == "" {
		return invalid("blob.intake_bucket and blob.indexed_bucket are required")
	}
	if c.Blob.IntakeBucket == c.Blob.IndexedBucket {
		return invalid("blob.intake_bucket and blob.indexed_bucket must differ")
	}

	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return invalid("embedding.provider must be openai or ollama, got %q", c.Embedding.Provider)
	}
	if c.Embedding.Workers < 0 {
		return invalid("embedding.workers must not be negative")
	}

	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderOllama, ProviderAnthropic:
	default:
		return invalid("llm.provider must be openai, ollama or anthropic, got %q", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return invalid("llm.temperature must be between 0 and 2")
	}

	if c.Chunking.Size <= 0 {
		return invalid("chunking.size must be positive")
	}
	if c.Chunking.Overlap < 0 {
		return invalid("chunking.overlap must not be negative")
	}

	if c.Retrieval.MaxResults <= 0 || c.Retrieval.DefaultResults <= 0 {
		return invalid("retrieval.default_results and retrieval.max_results must be positive")
	}
	if c.Retrieval.DefaultResults > c.Retrieval.MaxResults {
		return invalid("retrieval.default_results must not exceed retrieval.max_results")
	}
	if _, err := domain.ParseTagMatch(c.Retrieval.TagMatch); err != nil {
		return err
	}

	switch c.Metadata.DeletePolicy {
	case "reject", "cascade":
	default:
		return invalid("metadata.delete_policy must be reject or cascade, got %q", c.Metadata.DeletePolicy)
	}

	if c.Auth.Issuer != "" && c.Auth.TrustUpstream {
		return invalid("auth.issuer and auth.trust_upstream are mutually exclusive")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: config: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
