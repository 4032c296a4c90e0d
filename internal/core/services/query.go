package services

import (
	"context"
	"sort"
	"strings"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
	"github.com/custodia-labs/docpipe/internal/filters"
)

// queryInput is the filter surface shared by document listing and retrieval.
type queryInput struct {
	Filters      []domain.DocumentFilter
	Tags         []string
	TagMatch     domain.TagMatch
	DocumentUUID string
	StartDate    string
	EndDate      string
}

// queryBuilder turns request filters into a domain.DocumentQuery.
type queryBuilder struct {
	registry        *filters.Registry
	defaultTagMatch domain.TagMatch
}

func (b queryBuilder) build(ctx context.Context, in queryInput) (domain.DocumentQuery, error) {
	q := domain.DocumentQuery{
		Tags:         domain.NormaliseTags(in.Tags),
		DocumentUUID: strings.TrimSpace(in.DocumentUUID),
	}

	match := b.defaultTagMatch
	if in.TagMatch != "" {
		m, err := domain.ParseTagMatch(string(in.TagMatch))
		if err != nil {
			return q, err
		}
		match = m
	}
	if match == "" {
		match = domain.TagMatchSuperset
	}
	q.TagMatch = match

	var err error
	if q.CreatedFrom, err = parseDay("start_date", in.StartDate); err != nil {
		return q, err
	}
	if q.CreatedTo, err = parseDay("end_date", in.EndDate); err != nil {
		return q, err
	}

	if b.registry != nil {
		if err := b.registry.Apply(ctx, in.Filters, &q); err != nil {
			return q, err
		}
	}
	return q, nil
}

// metadataEntries joins document-level values with their definitions,
// keyed by document uuid and sorted by definition name.
func metadataEntries(ctx context.Context, meta driven.MetadataStore, documentUUIDs []string) (map[string][]domain.MetadataEntry, error) {
	out := make(map[string][]domain.MetadataEntry)
	if len(documentUUIDs) == 0 {
		return out, nil
	}

	defs, err := meta.ListDefinitions(ctx)
	if err != nil {
		return nil, upstream("list metadata definitions", err)
	}
	byUUID := make(map[string]*domain.MetadataDefinition, len(defs))
	for i := range defs {
		byUUID[defs[i].UUID] = &defs[i]
	}

	values, err := meta.ListValues(ctx, documentUUIDs)
	if err != nil {
		return nil, upstream("list metadata values", err)
	}
	for i := range values {
		v := &values[i]
		def, ok := byUUID[v.MetadataUUID]
		if !ok || v.ChunkUUID != "" {
			continue
		}
		out[v.DocumentUUID] = append(out[v.DocumentUUID], domain.NewMetadataEntry(def, v))
	}
	for _, entries := range out {
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	}
	return out, nil
}
