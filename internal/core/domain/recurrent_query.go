package domain

import (
	"fmt"
	"strings"
	"time"
)

// RecurrentQuery is a saved, re-runnable search definition.
type RecurrentQuery struct {
	UUID      string     `json:"recurrent_query_uuid"`
	Name      string     `json:"recurrent_query_name"`
	QueryType string     `json:"query_type"`
	Content   string     `json:"query_content"`
	Tags      []string   `json:"query_tags"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	UserUUID  string     `json:"user_uuid"`
	Comments  string     `json:"comments"`
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_date"`
	UpdatedBy string     `json:"updated_by"`
	UpdatedAt time.Time  `json:"updated_date"`
}

// Validate checks required fields and the date window.
func (q *RecurrentQuery) Validate() error {
	switch {
	case strings.TrimSpace(q.Name) == "":
		return fmt.Errorf("%w: recurrent_query_name is required", ErrValidation)
	case strings.TrimSpace(q.QueryType) == "":
		return fmt.Errorf("%w: query_type is required", ErrValidation)
	case strings.TrimSpace(q.Content) == "":
		return fmt.Errorf("%w: query_content is required", ErrValidation)
	}
	if q.StartDate != nil && q.EndDate != nil && q.EndDate.Before(*q.StartDate) {
		return fmt.Errorf("%w: end_date is before start_date", ErrValidation)
	}
	return nil
}

// RecurrentQueryFilter narrows a listing; empty fields match everything.
type RecurrentQueryFilter struct {
	UUID     string
	UserUUID string
}
