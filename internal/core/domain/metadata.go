package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MetadataType is the declared type of a metadata definition.
type MetadataType string

// Supported metadata types.
const (
	MetadataString  MetadataType = "string"
	MetadataInt     MetadataType = "int"
	MetadataFloat   MetadataType = "float"
	MetadataBoolean MetadataType = "boolean"
	MetadataDate    MetadataType = "date"
)

// DateLayout is the wire format for metadata dates.
const DateLayout = "2006-01-02"

// ParseMetadataType accepts the canonical names plus the upper-case aliases
// used by older clients (STRING, INTEGER, NUMBER, DATE, BOOLEAN).
func ParseMetadataType(s string) (MetadataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "text":
		return MetadataString, nil
	case "int", "integer":
		return MetadataInt, nil
	case "float", "number":
		return MetadataFloat, nil
	case "boolean", "bool":
		return MetadataBoolean, nil
	case "date":
		return MetadataDate, nil
	}
	return "", fmt.Errorf("%w: unknown metadata type %q (want string, int, float, boolean or date)", ErrValidation, s)
}

// MetadataDefinition is a named, typed fact computed per document.
type MetadataDefinition struct {
	UUID        string       `json:"metadata_uuid"`
	Name        string       `json:"metadata_name"`
	Description string       `json:"metadata_description"`
	Type        MetadataType `json:"metadata_type"`
	CreatedAt   time.Time    `json:"created_date"`
	UpdatedAt   time.Time    `json:"updated_date"`
}

// Validate checks required fields.
func (d *MetadataDefinition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: metadata_name is required", ErrValidation)
	}
	if strings.TrimSpace(d.Description) == "" {
		return fmt.Errorf("%w: metadata_description is required", ErrValidation)
	}
	if _, err := ParseMetadataType(string(d.Type)); err != nil {
		return err
	}
	return nil
}

// MetadataValue attaches a computed value to a document (and optionally one
// of its chunks). Exactly one typed field is non-nil.
type MetadataValue struct {
	UUID         string     `json:"document_metadata_uuid"`
	DocumentUUID string     `json:"document_uuid"`
	ChunkUUID    string     `json:"document_chunk_uuid,omitempty"`
	MetadataUUID string     `json:"metadata_uuid"`
	String       *string    `json:"metadata_value_string"`
	Int          *int64     `json:"metadata_value_int"`
	Float        *float64   `json:"metadata_value_float"`
	Boolean      *bool      `json:"metadata_value_boolean"`
	Date         *time.Time `json:"metadata_value_date"`
	Comments     string     `json:"comments,omitempty"`
	CreatedAt    time.Time  `json:"created_date"`
	UpdatedAt    time.Time  `json:"updated_date"`
}

// populated lists the types whose field is set.
func (v *MetadataValue) populated() []MetadataType {
	var out []MetadataType
	if v.String != nil {
		out = append(out, MetadataString)
	}
	if v.Int != nil {
		out = append(out, MetadataInt)
	}
	if v.Float != nil {
		out = append(out, MetadataFloat)
	}
	if v.Boolean != nil {
		out = append(out, MetadataBoolean)
	}
	if v.Date != nil {
		out = append(out, MetadataDate)
	}
	return out
}

// Type returns the type of the populated field, or "" if none or several are set.
func (v *MetadataValue) Type() MetadataType {
	p := v.populated()
	if len(p) != 1 {
		return ""
	}
	return p[0]
}

// Validate enforces the sparse-union invariant against def.
func (v *MetadataValue) Validate(def *MetadataDefinition) error {
	if v.DocumentUUID == "" {
		return fmt.Errorf("%w: metadata value needs a document_uuid", ErrValidation)
	}
	if v.MetadataUUID != def.UUID {
		return fmt.Errorf("%w: metadata value references %s, definition is %s", ErrValidation, v.MetadataUUID, def.UUID)
	}
	p := v.populated()
	if len(p) != 1 {
		return fmt.Errorf("%w: metadata value must have exactly one typed field, has %d", ErrValidation, len(p))
	}
	if p[0] != def.Type {
		return fmt.Errorf("%w: metadata value is %s, definition %q is %s", ErrValidation, p[0], def.Name, def.Type)
	}
	return nil
}

// Value returns the populated field as a plain Go value, or nil.
func (v *MetadataValue) Value() any {
	switch v.Type() {
	case MetadataString:
		return *v.String
	case MetadataInt:
		return *v.Int
	case MetadataFloat:
		return *v.Float
	case MetadataBoolean:
		return *v.Boolean
	case MetadataDate:
		return v.Date.UTC().Format(DateLayout)
	}
	return nil
}

// Render formats the value for prompts; missing values render as N/A.
func (v *MetadataValue) Render() string {
	switch v.Type() {
	case MetadataString:
		return *v.String
	case MetadataInt:
		return strconv.FormatInt(*v.Int, 10)
	case MetadataFloat:
		return strconv.FormatFloat(*v.Float, 'f', -1, 64)
	case MetadataBoolean:
		return strconv.FormatBool(*v.Boolean)
	case MetadataDate:
		return v.Date.UTC().Format(DateLayout)
	}
	return "N/A"
}

// StringValue builds a string-typed value.
func StringValue(s string) MetadataValue { return MetadataValue{String: &s} }

// IntValue builds an int-typed value.
func IntValue(i int64) MetadataValue { return MetadataValue{Int: &i} }

// FloatValue builds a float-typed value.
func FloatValue(f float64) MetadataValue { return MetadataValue{Float: &f} }

// BooleanValue builds a boolean-typed value.
func BooleanValue(b bool) MetadataValue { return MetadataValue{Boolean: &b} }

// DateValue builds a date-typed value truncated to the UTC day.
func DateValue(t time.Time) MetadataValue {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return MetadataValue{Date: &d}
}

// MetadataEntry is a value joined with its definition for output.
type MetadataEntry struct {
	MetadataUUID string       `json:"metadata_uuid"`
	Name         string       `json:"metadata_name"`
	Type         MetadataType `json:"metadata_type"`
	Value        any          `json:"metadata_value"`
	Comments     string       `json:"comments,omitempty"`
}

// NewMetadataEntry joins v with def.
func NewMetadataEntry(def *MetadataDefinition, v *MetadataValue) MetadataEntry {
	e := MetadataEntry{
		MetadataUUID: def.UUID,
		Name:         def.Name,
		Type:         def.Type,
	}
	if v != nil {
		e.Value = v.Value()
		e.Comments = v.Comments
	}
	return e
}

// RenderValue formats an entry value for prompts.
func (e MetadataEntry) RenderValue() string {
	switch x := e.Value.(type) {
	case nil:
		return "N/A"
	case string:
		if x == "" {
			return "N/A"
		}
		return x
	case time.Time:
		return x.UTC().Format(DateLayout)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
