// Package sqlite provides a SQLite-backed implementation of driven.Repository.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO. Every store shares a single database connection:
//
//   - DocumentStore: documents and their lifecycle status
//   - ChunkStore: chunks and embeddings
//   - VectorIndex: brute-force cosine ranking over stored embeddings
//   - MetadataStore, SynonymStore, RecurrentQueryStore
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.docpipe/data/docpipe.db
//
// # Thread Safety
//
// All operations are thread-safe. Status transitions are single conditional
// UPDATE statements, so concurrent handlers serialize on the stored row.
package sqlite
