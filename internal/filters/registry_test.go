package filters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

type fakeDefinitions map[string]*domain.MetadataDefinition

func (f fakeDefinitions) GetDefinition(_ context.Context, uuid string) (*domain.MetadataDefinition, error) {
	if d, ok := f[uuid]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("metadata definition %s: %w", uuid, domain.ErrNotFound)
}

var testDefs = fakeDefinitions{
	"m-amount": {UUID: "m-amount", Name: "amount", Type: domain.MetadataFloat},
	"m-vendor": {UUID: "m-vendor", Name: "vendor", Type: domain.MetadataString},
	"m-paid":   {UUID: "m-paid", Name: "paid", Type: domain.MetadataBoolean},
}

func filter(t *testing.T, typ string, value any) domain.DocumentFilter {
	t.Helper()
	raw, err := json.Marshal(value)
	require.NoError(t, err)
	return domain.DocumentFilter{Type: typ, Value: raw}
}

func TestRegistry_RegisterAndNames(t *testing.T) {
	r := NewRegistry()
	r.Register("Zeta", func(context.Context, json.RawMessage, *domain.DocumentQuery) error { return nil })
	r.Register("alpha", func(context.Context, json.RawMessage, *domain.DocumentQuery) error { return nil })

	assert.True(t, r.Has("zeta"))
	assert.True(t, r.Has("ALPHA"))
	assert.False(t, r.Has("beta"))
	assert.Equal(t, []string{"alpha", "zeta"}, r.Names())
}

func TestApply_MetadataObject(t *testing.T) {
	var q domain.DocumentQuery
	err := Default(testDefs).Apply(context.Background(), []domain.DocumentFilter{
		filter(t, "metadata", map[string]any{"metadata_uuid": "m-amount", "operator": "gte", "value": 100}),
	}, &q)
	require.NoError(t, err)
	require.Len(t, q.Conditions, 1)
	assert.Equal(t, domain.OpGte, q.Conditions[0].Operator)
	assert.Equal(t, 100.0, q.Conditions[0].Operand())
}

func TestApply_MetadataStringEncoded(t *testing.T) {
	inner := `{"metadata_uuid":"m-vendor","value":"ACME"}`
	var q domain.DocumentQuery
	err := Default(testDefs).Apply(context.Background(), []domain.DocumentFilter{
		filter(t, "metadata", inner),
	}, &q)
	require.NoError(t, err)
	require.Len(t, q.Conditions, 1)
	assert.Equal(t, domain.OpEq, q.Conditions[0].Operator)
	assert.Equal(t, "acme", q.Conditions[0].Operand())
}

func TestApply_Errors(t *testing.T) {
	tests := []struct {
		name    string
		filters []domain.DocumentFilter
		want    error
		msg     string
	}{
		{
			name:    "unknown filter type suggests closest",
			filters: []domain.DocumentFilter{filter(t, "metadta", map[string]any{})},
			want:    domain.ErrValidation,
			msg:     `did you mean "metadata"?`,
		},
		{
			name:    "missing filter type",
			filters: []domain.DocumentFilter{filter(t, "", map[string]any{})},
			want:    domain.ErrValidation,
		},
		{
			name:    "missing value",
			filters: []domain.DocumentFilter{{Type: "metadata"}},
			want:    domain.ErrValidation,
		},
		{
			name:    "unknown definition",
			filters: []domain.DocumentFilter{filter(t, "metadata", map[string]any{"metadata_uuid": "nope", "value": 1})},
			want:    domain.ErrNotFound,
		},
		{
			name:    "unsupported operator",
			filters: []domain.DocumentFilter{filter(t, "metadata", map[string]any{"metadata_uuid": "m-paid", "operator": "gt", "value": true})},
			want:    domain.ErrValidation,
			msg:     "allowed: eq, neq",
		},
		{
			name:    "misspelled operator",
			filters: []domain.DocumentFilter{filter(t, "metadata", map[string]any{"metadata_uuid": "m-vendor", "operator": "contans", "value": "x"})},
			want:    domain.ErrValidation,
			msg:     `did you mean "contains"?`,
		},
		{
			name:    "unparseable value",
			filters: []domain.DocumentFilter{filter(t, "metadata", map[string]any{"metadata_uuid": "m-amount", "value": "lots"})},
			want:    domain.ErrValidation,
		},
		{
			name:    "malformed json string",
			filters: []domain.DocumentFilter{filter(t, "metadata", "{not json")},
			want:    domain.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var q domain.DocumentQuery
			err := Default(testDefs).Apply(context.Background(), tt.filters, &q)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestApply_TagsAndDocument(t *testing.T) {
	q := domain.DocumentQuery{Tags: []string{"b"}}
	err := Default(testDefs).Apply(context.Background(), []domain.DocumentFilter{
		filter(t, "tags", map[string]any{"tags": []string{"a", " b "}, "tag_match": "intersect"}),
		filter(t, "tags", []string{"c"}),
		filter(t, "document", map[string]any{"document_uuid": "d1"}),
	}, &q)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, q.Tags)
	assert.Equal(t, domain.TagMatchIntersect, q.TagMatch)
	assert.Equal(t, "d1", q.DocumentUUID)

	err = Default(testDefs).Apply(context.Background(), []domain.DocumentFilter{
		filter(t, "document", map[string]any{"document_uuid": "d2"}),
	}, &q)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestApply_CombinedConditionsMatch(t *testing.T) {
	var q domain.DocumentQuery
	err := Default(testDefs).Apply(context.Background(), []domain.DocumentFilter{
		filter(t, "metadata", map[string]any{"metadata_uuid": "m-amount", "operator": "lt", "value": "50.5"}),
		filter(t, "metadata", map[string]any{"metadata_uuid": "m-paid", "value": "yes"}),
	}, &q)
	require.NoError(t, err)

	amount := domain.FloatValue(20)
	amount.MetadataUUID = "m-amount"
	paid := domain.BooleanValue(true)
	paid.MetadataUUID = "m-paid"

	assert.True(t, q.MatchesValues(map[string]*domain.MetadataValue{"m-amount": &amount, "m-paid": &paid}))
	assert.False(t, q.MatchesValues(map[string]*domain.MetadataValue{"m-amount": &amount}))
}

func TestSuggest(t *testing.T) {
	names := []string{"document", "metadata", "tags"}
	assert.Equal(t, ` (did you mean "tags"?)`, Suggest("tag", names))
	assert.Empty(t, Suggest("completely-different", names))
	assert.Empty(t, Suggest("x", nil))
}
