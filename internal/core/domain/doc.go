// Package domain defines the core business entities for docpipe.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: an ingested file and its lifecycle status
//   - Chunk: a retrievable segment of a document, plus its embedding
//   - MetadataDefinition / MetadataValue: typed facts computed per document
//   - Synonym: a query rewrite rule
//   - RecurrentQuery: a saved search definition
//   - MetadataCondition / DocumentQuery: query-time document predicates
//
// Errors are a closed set of sentinels (see errors.go); every error the core
// returns wraps one of them.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
