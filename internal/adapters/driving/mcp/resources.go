package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

const uriScheme = "docpipe://"

// registerResources registers the resources whose ports are available.
func (s *Server) registerResources() {
	if s.ports.Synonyms != nil {
		s.server.AddResource(&mcp.Resource{
			URI:         uriScheme + "synonyms",
			Name:        "synonyms",
			Description: "Synonyms used for query expansion",
			MIMEType:    "application/json",
		}, s.handleSynonymsResource)
	}
	if s.ports.Documents != nil {
		s.server.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: uriScheme + "documents/{documentId}",
			Name:        "document",
			Description: "A document with its tags and metadata",
			MIMEType:    "application/json",
		}, s.handleDocumentResource)
	}
}

func (s *Server) handleSynonymsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	syns, err := s.ports.Synonyms.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing synonyms: %w", err)
	}
	return jsonResource(req.Params.URI, syns)
}

func (s *Server) handleDocumentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	id := extractDocumentID(req.Params.URI)
	if id == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	doc, err := s.ports.Documents.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return jsonResource(req.Params.URI, doc)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractDocumentID extracts the id from docpipe://documents/{documentId}.
func extractDocumentID(uri string) string {
	const prefix = uriScheme + "documents/"
	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	return strings.TrimPrefix(uri, prefix)
}
