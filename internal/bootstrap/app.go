// Package bootstrap assembles the docpipe services from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/custodia-labs/docpipe/internal/adapters/driven/ai"
	blobmemory "github.com/custodia-labs/docpipe/internal/adapters/driven/blob/memory"
	"github.com/custodia-labs/docpipe/internal/adapters/driven/blob/minio"
	"github.com/custodia-labs/docpipe/internal/adapters/driven/config/file"
	"github.com/custodia-labs/docpipe/internal/adapters/driven/extractor"
	"github.com/custodia-labs/docpipe/internal/adapters/driven/extractor/docx"
	"github.com/custodia-labs/docpipe/internal/adapters/driven/extractor/html"
	"github.com/custodia-labs/docpipe/internal/adapters/driven/extractor/pdf"
	"github.com/custodia-labs/docpipe/internal/adapters/driven/extractor/plaintext"
	"github.com/custodia-labs/docpipe/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/docpipe/internal/adapters/driven/storage/postgres"
	"github.com/custodia-labs/docpipe/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/docpipe/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/docpipe/internal/adapters/driving/mcp"
	"github.com/custodia-labs/docpipe/internal/chunker"
	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
	"github.com/custodia-labs/docpipe/internal/core/services"
	"github.com/custodia-labs/docpipe/internal/filters"
	"github.com/custodia-labs/docpipe/internal/logger"
	"github.com/custodia-labs/docpipe/internal/observability/tracing"
	"github.com/custodia-labs/docpipe/internal/pubsub"
	"github.com/custodia-labs/docpipe/internal/ratelimit"
)

// BlobBackend is an object store that also streams notifications.
type BlobBackend interface {
	driven.BlobStore
	driven.BlobEventSource
}

// App holds one process's adapters and services.
type App struct {
	Config *file.Config

	Repo   driven.Repository
	Blob   BlobBackend
	Models *ai.Services
	Events *pubsub.PipelineBroker

	Gateway          *services.BlobService
	Documents        *services.DocumentService
	Metadata         *services.MetadataService
	Synonyms         *services.SynonymService
	Retrieval        *services.RetrievalService
	Answers          *services.AnswerService
	Vectorizer       *services.VectorizerService
	Ingestion        *services.IngestionService
	RecurrentQueries *services.RecurrentQueryService

	tracer *sdktrace.TracerProvider
}

// Build opens the configured backends and wires every service.
func Build(ctx context.Context, cfg *file.Config) (app *App, err error) {
	app = &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = app.Close()
			app = nil
		}
	}()

	if app.Repo, err = OpenRepository(ctx, cfg.Store); err != nil {
		return nil, err
	}
	if app.Blob, err = OpenBlobStore(ctx, cfg.Blob); err != nil {
		return nil, err
	}
	if app.Models, err = ai.New(cfg); err != nil {
		return nil, err
	}
	prompts, err := file.NewPromptStore(cfg.Prompts.Dir, cfg.Prompts.Overrides)
	if err != nil {
		return nil, fmt.Errorf("opening prompt store: %w", err)
	}

	tagMatch, err := domain.ParseTagMatch(cfg.Retrieval.TagMatch)
	if err != nil {
		return nil, err
	}
	policy, err := services.ParseDeletePolicy(cfg.Metadata.DeletePolicy)
	if err != nil {
		return nil, err
	}

	app.Events = pubsub.NewPipelineBroker()
	registry := filters.Default(app.Repo.Metadata())
	embedder, llm := app.Models.Embedding, app.Models.LLM

	app.Gateway = services.NewBlobService(app.Blob, app.Repo.Documents(), services.BlobConfig{
		IntakeBucket:      cfg.Blob.IntakeBucket,
		IndexedBucket:     cfg.Blob.IndexedBucket,
		SourcePrefix:      cfg.Blob.SourcePrefix,
		DestinationPrefix: cfg.Blob.DestinationPrefix,
		Timeout:           cfg.Timeouts.Storage.D(),
	})
	app.Documents = services.NewDocumentService(app.Repo.Documents(), app.Repo.Metadata(), registry, tagMatch)
	app.Synonyms = services.NewSynonymService(app.Repo.Synonyms(), cfg.Synonyms.WholeWord)
	app.RecurrentQueries = services.NewRecurrentQueryService(app.Repo.RecurrentQueries())
	app.Metadata = services.NewMetadataService(app.Repo, llm, embedder, prompts, services.MetadataConfig{
		Workers:       cfg.Metadata.Workers,
		ContextChunks: cfg.Metadata.ContextChunks,
		DeletePolicy:  policy,
		Timeout:       cfg.LLM.Timeout.D(),
	})
	app.Retrieval = services.NewRetrievalService(app.Repo, embedder, app.Synonyms, registry, services.RetrievalConfig{
		DefaultResults: cfg.Retrieval.DefaultResults,
		MaxResults:     cfg.Retrieval.MaxResults,
		TagMatch:       tagMatch,
		EmbedTimeout:   cfg.Embedding.Timeout.D(),
	})
	app.Answers = services.NewAnswerService(llm, prompts, services.AnswerConfig{
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout.D(),
	})
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		BurstSize:         cfg.Embedding.Burst,
	})
	app.Vectorizer = services.NewVectorizerService(app.Repo.Chunks(), embedder, limiter, services.VectorizerConfig{
		Workers: cfg.Embedding.Workers,
		Timeout: cfg.Embedding.Timeout.D(),
	})
	split := chunker.New(chunker.WithChunkSize(cfg.Chunking.Size), chunker.WithOverlap(cfg.Chunking.Overlap))
	app.Ingestion = services.NewIngestionService(app.Repo, app.Blob, app.Gateway,
		extractor.NewRegistry(pdf.New(), plaintext.New(), html.New(), docx.New()), split, app.Vectorizer, app.Events,
		services.IngestionConfig{
			StorageTimeout: cfg.Timeouts.Storage.D(),
			ExtractTimeout: cfg.Timeouts.Extraction.D(),
		})

	if cfg.Tracing.Enabled {
		app.installTracer(cfg.Tracing.ServiceName)
	}
	return app, nil
}

func (a *App) installTracer(serviceName string) {
	if serviceName == "" {
		serviceName = "docpipe"
	}
	a.tracer = tracing.NewProvider(serviceName, tracing.LogProcessor{})
	t := tracing.NewOTelTracer(a.tracer, tracing.InstrumentationName)
	a.Ingestion.SetTracer(t)
	a.Vectorizer.SetTracer(t)
	a.Retrieval.SetTracer(t)
	a.Metadata.SetTracer(t)
	a.Answers.SetTracer(t)
	logger.Debug("tracing enabled for %s", serviceName)
}

// HTTPServices returns the ports served by the HTTP API.
func (a *App) HTTPServices() *httpapi.Services {
	return &httpapi.Services{
		Blob:           a.Gateway,
		Documents:      a.Documents,
		Metadata:       a.Metadata,
		Synonyms:       a.Synonyms,
		Retrieval:      a.Retrieval,
		Answers:        a.Answers,
		RecurrentQuery: a.RecurrentQueries,
		Ingestion:      a.Ingestion,
		Events:         a.Events,
	}
}

// MCPPorts returns the ports served by the MCP server.
func (a *App) MCPPorts() *mcp.Ports {
	return &mcp.Ports{
		Retrieval: a.Retrieval,
		Synonyms:  a.Synonyms,
		Answers:   a.Answers,
		Documents: a.Documents,
	}
}

// EventWorker returns a worker listening on both buckets.
func (a *App) EventWorker() *services.EventWorker {
	return services.NewEventWorker(a.Blob, a.Ingestion, services.EventWorkerConfig{
		Buckets: []string{a.Config.Blob.IntakeBucket, a.Config.Blob.IndexedBucket},
	})
}

// Close releases every opened backend.
func (a *App) Close() error {
	var errs []error
	if a.Events != nil {
		a.Events.Shutdown()
	}
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(context.Background()))
	}
	if a.Models != nil {
		a.Models.Close()
	}
	if a.Repo != nil {
		errs = append(errs, a.Repo.Close())
	}
	return errors.Join(errs...)
}

// OpenRepository opens the configured store. SQLite and Postgres apply
// pending migrations on open.
func OpenRepository(ctx context.Context, cfg file.StoreConfig) (driven.Repository, error) {
	switch cfg.Driver {
	case file.DriverMemory:
		return memory.NewStore(), nil
	case file.DriverSQLite, "":
		store, err := sqlite.NewStore(cfg.SQLiteDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	case file.DriverPostgres:
		store, err := postgres.Connect(ctx, cfg.PostgresURL, postgres.WithPoolConfig(postgres.PoolConfig{
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.ConnLifetime.D(),
		}))
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("%w: unsupported store driver %q", domain.ErrValidation, cfg.Driver)
}

// OpenBlobStore opens the configured object store and makes sure both
// buckets exist.
func OpenBlobStore(ctx context.Context, cfg file.BlobConfig) (BlobBackend, error) {
	switch cfg.Driver {
	case file.DriverMemory, "":
		return blobmemory.NewStore(), nil
	case file.DriverMinio:
		store, err := minio.NewStore(minio.Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Region:    cfg.Region,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBuckets(ctx, cfg.IntakeBucket, cfg.IndexedBucket); err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("%w: unsupported blob driver %q", domain.ErrValidation, cfg.Driver)
}
