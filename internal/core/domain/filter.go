package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Operator is a comparison applied to a metadata value.
type Operator string

// Supported operators.
const (
	OpEq          Operator = "eq"
	OpNeq         Operator = "neq"
	OpGt          Operator = "gt"
	OpLt          Operator = "lt"
	OpGte         Operator = "gte"
	OpLte         Operator = "lte"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
)

var (
	orderedOperators = []Operator{OpEq, OpNeq, OpGt, OpLt, OpGte, OpLte}
	stringOperators  = []Operator{OpEq, OpNeq, OpContains, OpNotContains}
	booleanOperators = []Operator{OpEq, OpNeq}
)

// OperatorsFor lists the operators accepted for a metadata type.
func OperatorsFor(t MetadataType) []Operator {
	switch t {
	case MetadataString:
		return stringOperators
	case MetadataInt, MetadataFloat, MetadataDate:
		return orderedOperators
	case MetadataBoolean:
		return booleanOperators
	}
	return nil
}

// TagMatch selects how requested tags restrict documents.
type TagMatch string

// Tag match modes.
const (
	// TagMatchSuperset keeps documents carrying every requested tag.
	TagMatchSuperset TagMatch = "superset"
	// TagMatchIntersect keeps documents carrying at least one requested tag.
	TagMatchIntersect TagMatch = "intersect"
)

// ParseTagMatch parses a tag match mode; empty selects superset.
func ParseTagMatch(s string) (TagMatch, error) {
	switch TagMatch(strings.ToLower(strings.TrimSpace(s))) {
	case "", TagMatchSuperset:
		return TagMatchSuperset, nil
	case TagMatchIntersect:
		return TagMatchIntersect, nil
	}
	return "", fmt.Errorf("%w: unknown tag_match %q (want superset or intersect)", ErrValidation, s)
}

// DocumentFilter is the wire form of a query-time filter: a kind plus a
// payload decoded by the decoder registered for that kind.
type DocumentFilter struct {
	Type  string          `json:"filter_type"`
	Value json.RawMessage `json:"filter_value"`
}

// MetadataFilterValue is the payload of a "metadata" filter.
type MetadataFilterValue struct {
	MetadataUUID string   `json:"metadata_uuid"`
	Operator     Operator `json:"operator"`
	Value        any      `json:"value"`
}

// MetadataCondition is a typed predicate over one definition's values.
type MetadataCondition struct {
	MetadataUUID string
	Type         MetadataType
	Operator     Operator

	str   string
	num   float64
	date  time.Time
	truth bool
}

// NewMetadataCondition types raw against the definition and validates op.
func NewMetadataCondition(def *MetadataDefinition, op Operator, raw any) (MetadataCondition, error) {
	if op == "" {
		op = OpEq
	}
	op = Operator(strings.ToLower(string(op)))
	if !operatorAllowed(def.Type, op) {
		return MetadataCondition{}, fmt.Errorf("%w: operator %q not supported for %s metadata %q (allowed: %s)",
			ErrValidation, op, def.Type, def.Name, joinOperators(OperatorsFor(def.Type)))
	}
	c := MetadataCondition{MetadataUUID: def.UUID, Type: def.Type, Operator: op}
	var err error
	switch def.Type {
	case MetadataString:
		c.str, err = conditionString(raw)
		c.str = strings.ToLower(c.str)
	case MetadataInt, MetadataFloat:
		c.num, err = conditionNumber(raw)
		if err == nil && def.Type == MetadataInt && c.num != math.Trunc(c.num) {
			err = fmt.Errorf("%v is not an integer", raw)
		}
	case MetadataDate:
		var s string
		if s, err = conditionString(raw); err == nil {
			c.date, err = time.Parse(DateLayout, strings.TrimSpace(s))
		}
	case MetadataBoolean:
		c.truth, err = conditionBool(raw)
	default:
		err = fmt.Errorf("unknown type %q", def.Type)
	}
	if err != nil {
		return MetadataCondition{}, fmt.Errorf("%w: filter value for %q: %v", ErrValidation, def.Name, err)
	}
	return c, nil
}

// Operand returns the typed comparison value (string, float64, time.Time or bool).
func (c MetadataCondition) Operand() any {
	switch c.Type {
	case MetadataString:
		return c.str
	case MetadataInt, MetadataFloat:
		return c.num
	case MetadataDate:
		return c.date
	case MetadataBoolean:
		return c.truth
	}
	return nil
}

// Matches evaluates the condition against a stored value. A value of a
// different definition or type never matches.
func (c MetadataCondition) Matches(v *MetadataValue) bool {
	if v == nil || v.MetadataUUID != c.MetadataUUID {
		return false
	}
	switch c.Type {
	case MetadataString:
		if v.String == nil {
			return false
		}
		s := strings.ToLower(*v.String)
		switch c.Operator {
		case OpEq:
			return s == c.str
		case OpNeq:
			return s != c.str
		case OpContains:
			return strings.Contains(s, c.str)
		case OpNotContains:
			return !strings.Contains(s, c.str)
		}
	case MetadataInt:
		if v.Int == nil {
			return false
		}
		return compareOrdered(c.Operator, float64(*v.Int), c.num)
	case MetadataFloat:
		if v.Float == nil {
			return false
		}
		return compareOrdered(c.Operator, *v.Float, c.num)
	case MetadataDate:
		if v.Date == nil {
			return false
		}
		d := v.Date.UTC()
		day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		return compareOrdered(c.Operator, float64(day.Unix()), float64(c.date.Unix()))
	case MetadataBoolean:
		if v.Boolean == nil {
			return false
		}
		if c.Operator == OpNeq {
			return *v.Boolean != c.truth
		}
		return *v.Boolean == c.truth
	}
	return false
}

// DocumentQuery restricts a document set. Every populated field is
// conjunctive; the zero value matches all documents.
type DocumentQuery struct {
	// Conditions must all hold.
	Conditions []MetadataCondition

	// Tags restrict by TagMatch when non-empty.
	Tags     []string
	TagMatch TagMatch

	// DocumentUUID restricts to one document when set.
	DocumentUUID string

	// CreatedFrom and CreatedTo bound the creation date, inclusive by day.
	CreatedFrom *time.Time
	CreatedTo   *time.Time

	// Statuses restricts to documents in one of these states when non-empty.
	Statuses []DocumentStatus
}

// MatchesDocument evaluates every field except Conditions.
func (q *DocumentQuery) MatchesDocument(d *Document) bool {
	if q.DocumentUUID != "" && d.UUID != q.DocumentUUID {
		return false
	}
	if len(q.Statuses) > 0 {
		ok := false
		for _, s := range q.Statuses {
			if d.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if q.CreatedFrom != nil && d.CreatedAt.Before(*q.CreatedFrom) {
		return false
	}
	if q.CreatedTo != nil && !d.CreatedAt.Before(q.CreatedTo.AddDate(0, 0, 1)) {
		return false
	}
	return q.MatchesTags(d.Tags)
}

// MatchesTags applies the tag restriction.
func (q *DocumentQuery) MatchesTags(docTags []string) bool {
	if len(q.Tags) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(docTags))
	for _, t := range docTags {
		have[t] = struct{}{}
	}
	if q.TagMatch == TagMatchIntersect {
		for _, t := range q.Tags {
			if _, ok := have[t]; ok {
				return true
			}
		}
		return false
	}
	for _, t := range q.Tags {
		if _, ok := have[t]; !ok {
			return false
		}
	}
	return true
}

// MatchesValues applies Conditions to a document's values keyed by metadata uuid.
func (q *DocumentQuery) MatchesValues(values map[string]*MetadataValue) bool {
	for _, c := range q.Conditions {
		if !c.Matches(values[c.MetadataUUID]) {
			return false
		}
	}
	return true
}

func compareOrdered(op Operator, have, want float64) bool {
	switch op {
	case OpEq:
		return have == want
	case OpNeq:
		return have != want
	case OpGt:
		return have > want
	case OpLt:
		return have < want
	case OpGte:
		return have >= want
	case OpLte:
		return have <= want
	}
	return false
}

func operatorAllowed(t MetadataType, op Operator) bool {
	for _, o := range OperatorsFor(t) {
		if o == op {
			return true
		}
	}
	return false
}

func joinOperators(ops []Operator) string {
	s := make([]string, len(ops))
	for i, o := range ops {
		s[i] = string(o)
	}
	return strings.Join(s, ", ")
}

func conditionString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	case nil:
		return "", fmt.Errorf("value is required")
	}
	return "", fmt.Errorf("unsupported value %v", raw)
}

func conditionNumber(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", v)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("value is required")
	}
	return 0, fmt.Errorf("unsupported value %v", raw)
}

func conditionBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return false, fmt.Errorf("%q is not a boolean", v.String())
		}
		return f != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1":
			return true, nil
		case "false", "no", "0":
			return false, nil
		}
		return false, fmt.Errorf("%q is not a boolean", v)
	case nil:
		return false, fmt.Errorf("value is required")
	}
	return false, fmt.Errorf("unsupported value %v", raw)
}
