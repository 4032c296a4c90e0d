package filters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// Filter type names.
const (
	TypeMetadata = "metadata"
	TypeTags     = "tags"
	TypeDocument = "document"
)

// DefinitionLookup resolves metadata definitions referenced by filters.
type DefinitionLookup interface {
	GetDefinition(ctx context.Context, uuid string) (*domain.MetadataDefinition, error)
}

// Default returns a registry with the built-in filter types.
func Default(defs DefinitionLookup) *Registry {
	r := NewRegistry()
	r.Register(TypeMetadata, MetadataDecoder(defs))
	r.Register(TypeTags, decodeTags)
	r.Register(TypeDocument, decodeDocument)
	return r
}

// MetadataDecoder decodes {metadata_uuid, operator, value} into a typed
// condition. An unknown definition is domain.ErrNotFound.
func MetadataDecoder(defs DefinitionLookup) DecoderFunc {
	return func(ctx context.Context, raw json.RawMessage, q *domain.DocumentQuery) error {
		var v domain.MetadataFilterValue
		if err := decodeStrict(raw, &v); err != nil {
			return err
		}
		if strings.TrimSpace(v.MetadataUUID) == "" {
			return fmt.Errorf("%w: metadata filter needs metadata_uuid", domain.ErrValidation)
		}
		def, err := defs.GetDefinition(ctx, v.MetadataUUID)
		if err != nil {
			return fmt.Errorf("metadata filter: %w", err)
		}

		op := domain.Operator(strings.ToLower(strings.TrimSpace(string(v.Operator))))
		if op != "" && !allowed(def.Type, op) {
			names := operatorNames(def.Type)
			return fmt.Errorf("%w: operator %q not supported for %s metadata %q (allowed: %s)%s",
				domain.ErrValidation, v.Operator, def.Type, def.Name, strings.Join(names, ", "), Suggest(string(op), names))
		}

		cond, err := domain.NewMetadataCondition(def, op, v.Value)
		if err != nil {
			return err
		}
		q.Conditions = append(q.Conditions, cond)
		return nil
	}
}

// decodeTags accepts {"tags": [...], "tag_match": "..."} or a bare array.
func decodeTags(_ context.Context, raw json.RawMessage, q *domain.DocumentQuery) error {
	var payload struct {
		Tags     []string `json:"tags"`
		TagMatch string   `json:"tag_match"`
	}
	if len(raw) > 0 && raw[0] == '[' {
		if err := decodeStrict(raw, &payload.Tags); err != nil {
			return err
		}
	} else if err := decodeStrict(raw, &payload); err != nil {
		return err
	}
	if payload.TagMatch != "" {
		m, err := domain.ParseTagMatch(payload.TagMatch)
		if err != nil {
			return err
		}
		q.TagMatch = m
	}
	q.Tags = domain.NormaliseTags(append(q.Tags, payload.Tags...))
	return nil
}

// decodeDocument restricts the query to one document uuid.
func decodeDocument(_ context.Context, raw json.RawMessage, q *domain.DocumentQuery) error {
	var payload struct {
		DocumentUUID string `json:"document_uuid"`
	}
	if err := decodeStrict(raw, &payload); err != nil {
		return err
	}
	id := strings.TrimSpace(payload.DocumentUUID)
	if id == "" {
		return fmt.Errorf("%w: document filter needs document_uuid", domain.ErrValidation)
	}
	if q.DocumentUUID != "" && q.DocumentUUID != id {
		return fmt.Errorf("%w: conflicting document filters %s and %s", domain.ErrValidation, q.DocumentUUID, id)
	}
	q.DocumentUUID = id
	return nil
}

func allowed(t domain.MetadataType, op domain.Operator) bool {
	for _, o := range domain.OperatorsFor(t) {
		if o == op {
			return true
		}
	}
	return false
}

func operatorNames(t domain.MetadataType) []string {
	ops := domain.OperatorsFor(t)
	names := make([]string, len(ops))
	for i, o := range ops {
		names[i] = string(o)
	}
	return names
}
