package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blobmemory "github.com/custodia-labs/docpipe/internal/adapters/driven/blob/memory"
	"github.com/custodia-labs/docpipe/internal/adapters/driven/config/file"
	"github.com/custodia-labs/docpipe/internal/core/domain"
)

func testConfig(t *testing.T) *file.Config {
	t.Helper()
	cfg := file.Default()
	cfg.Store.Driver = file.DriverMemory
	cfg.Blob.Driver = file.DriverMemory
	cfg.Embedding.Provider = file.ProviderOllama
	cfg.Embedding.Model = "nomic-embed-text"
	cfg.LLM.Provider = file.ProviderOllama
	cfg.LLM.Model = "llama3"
	cfg.Prompts.Dir = t.TempDir()
	return &cfg
}

func TestBuild_WiresServices(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tracing.Enabled = true

	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, app.Close()) })

	require.NoError(t, app.HTTPServices().Validate())
	ports := app.MCPPorts()
	assert.NotNil(t, ports.Retrieval)
	assert.NotNil(t, ports.Answers)
	assert.NotNil(t, app.EventWorker())
	assert.Equal(t, "docpipe-indexed", app.Gateway.Config().IndexedBucket)
}

func TestBuild_IngestsIntakeObject(t *testing.T) {
	ctx := context.Background()
	app, err := Build(ctx, testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	obj := domain.Object{Bucket: "docpipe-intake", Key: "uploads/notes.txt"}
	require.NoError(t, app.Blob.Put(ctx, obj, []byte("quarterly invoices are due on friday"), "text/plain"))

	res, err := app.Ingestion.HandleEvent(ctx, domain.StorageEvent{Bucket: obj.Bucket, Key: obj.Key})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProcessed, res.Outcome)
	assert.Equal(t, domain.StatusIndexed, res.Status)
	assert.Positive(t, res.Chunks)

	mem, ok := app.Blob.(*blobmemory.Store)
	require.True(t, ok)
	assert.True(t, mem.Has(app.Gateway.IndexedObject(obj)))
}

func TestBuild_RejectsUnknownDrivers(t *testing.T) {
	ctx := context.Background()

	_, err := OpenRepository(ctx, file.StoreConfig{Driver: "dynamo"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = OpenBlobStore(ctx, file.BlobConfig{Driver: "gcs"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	cfg := testConfig(t)
	cfg.Metadata.DeletePolicy = "shred"
	_, err = Build(ctx, cfg)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestOpenRepository_SQLite(t *testing.T) {
	repo, err := OpenRepository(context.Background(), file.StoreConfig{Driver: file.DriverSQLite, SQLiteDir: t.TempDir()})
	require.NoError(t, err)
	assert.NoError(t, repo.Close())
}
