package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

const dateLayout = "2006-01-02"

// recurrentQueryBody carries dates as YYYY-MM-DD.
type recurrentQueryBody struct {
	Name      string   `json:"recurrent_query_name"`
	QueryType string   `json:"query_type"`
	Content   string   `json:"query_content"`
	Tags      []string `json:"query_tags"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	UserUUID  string   `json:"user_uuid"`
	Comments  string   `json:"comments"`
}

func (b recurrentQueryBody) toDomain() (domain.RecurrentQuery, error) {
	q := domain.RecurrentQuery{
		Name:      b.Name,
		QueryType: b.QueryType,
		Content:   b.Content,
		Tags:      b.Tags,
		UserUUID:  b.UserUUID,
		Comments:  b.Comments,
	}
	var err error
	if q.StartDate, err = optionalDate("start_date", b.StartDate); err != nil {
		return q, err
	}
	if q.EndDate, err = optionalDate("end_date", b.EndDate); err != nil {
		return q, err
	}
	return q, nil
}

func optionalDate(field, v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD, got %q", domain.ErrValidation, field, v)
	}
	return &t, nil
}

func (s *Server) listRecurrentQueries(c *gin.Context) {
	qs, err := s.svc.RecurrentQuery.List(c.Request.Context(), domain.RecurrentQueryFilter{
		UUID:     c.Query("uuid"),
		UserUUID: c.Query("user_uuid"),
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"recurrent_queries": qs})
}

func (s *Server) createRecurrentQuery(c *gin.Context) {
	q, good := s.bindRecurrentQuery(c)
	if !good {
		return
	}
	created, err := s.svc.RecurrentQuery.Create(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"recurrent_query": created})
}

func (s *Server) getRecurrentQuery(c *gin.Context) {
	q, err := s.svc.RecurrentQuery.Get(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"recurrent_query": q})
}

func (s *Server) updateRecurrentQuery(c *gin.Context) {
	q, good := s.bindRecurrentQuery(c)
	if !good {
		return
	}
	q.UUID = c.Param("uuid")
	updated, err := s.svc.RecurrentQuery.Update(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"recurrent_query": updated})
}

func (s *Server) deleteRecurrentQuery(c *gin.Context) {
	if err := s.svc.RecurrentQuery.Delete(c.Request.Context(), c.Param("uuid")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"recurrent_query_uuid": c.Param("uuid")})
}

func (s *Server) bindRecurrentQuery(c *gin.Context) (domain.RecurrentQuery, bool) {
	var body recurrentQueryBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return domain.RecurrentQuery{}, false
	}
	q, err := body.toDomain()
	if err != nil {
		fail(c, err)
		return domain.RecurrentQuery{}, false
	}
	return q, true
}
