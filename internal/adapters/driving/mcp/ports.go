package mcp

import (
	"github.com/custodia-labs/docpipe/internal/core/ports/driving"
)

// Ports aggregates the driving ports used by the MCP server.
type Ports struct {
	// Retrieval ranks chunks for retrieve_chunks.
	Retrieval driving.RetrievalService

	// Synonyms backs expand_query and the synonyms resource.
	Synonyms driving.SynonymService

	// Answers backs answer_question.
	Answers driving.AnswerService

	// Documents backs list_documents and the document resource.
	Documents driving.DocumentService
}

// Validate ensures all required ports are set. Only retrieval is required;
// tools for missing optional ports are not registered.
func (p *Ports) Validate() error {
	if p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	return nil
}
