package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

func (s *Server) listSynonyms(c *gin.Context) {
	syns, err := s.svc.Synonyms.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"synonyms": syns})
}

func (s *Server) addSynonym(c *gin.Context) {
	var syn domain.Synonym
	if err := c.ShouldBindJSON(&syn); err != nil {
		badRequest(c, err)
		return
	}
	created, err := s.svc.Synonyms.Add(c.Request.Context(), syn)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"synonym": created})
}

func (s *Server) updateSynonym(c *gin.Context) {
	var syn domain.Synonym
	if err := c.ShouldBindJSON(&syn); err != nil {
		badRequest(c, err)
		return
	}
	syn.UUID = c.Param("uuid")
	updated, err := s.svc.Synonyms.Update(c.Request.Context(), syn)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"synonym": updated})
}

func (s *Server) deleteSynonym(c *gin.Context) {
	if err := s.svc.Synonyms.Delete(c.Request.Context(), c.Param("uuid")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"synonym_uuid": c.Param("uuid")})
}

func (s *Server) expandQuery(c *gin.Context) {
	exp, err := s.svc.Synonyms.Expand(c.Request.Context(), c.Query("query"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"original_query": exp.OriginalQuery, "processed_query": exp.ProcessedQuery})
}
