package domain

import (
	"fmt"
	"strings"
	"time"
)

// Synonym maps a case-sensitive query term to an alternative phrasing.
type Synonym struct {
	UUID      string    `json:"synonym_uuid"`
	Name      string    `json:"synonym_name"`
	Value     string    `json:"synonym_value"`
	Comments  string    `json:"comments"`
	CreatedAt time.Time `json:"created_date"`
	UpdatedAt time.Time `json:"updated_date"`
}

// Validate checks required fields.
func (s *Synonym) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: synonym_name is required", ErrValidation)
	}
	if strings.TrimSpace(s.Value) == "" {
		return fmt.Errorf("%w: synonym_value is required", ErrValidation)
	}
	return nil
}

// Expansion is the result of rewriting a query with synonyms.
type Expansion struct {
	OriginalQuery  string `json:"original_query"`
	ProcessedQuery string `json:"processed_query"`
}
