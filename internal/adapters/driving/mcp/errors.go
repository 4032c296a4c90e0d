// Package mcp provides an MCP (Model Context Protocol) server adapter for docpipe.
// It lets AI assistants retrieve chunks, expand queries and synthesize answers.
package mcp

import "errors"

// ErrMissingRetrievalService is returned when the retrieval service is not provided.
var ErrMissingRetrievalService = errors.New("mcp: retrieval service is required")
