package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

func (s *Server) listDefinitions(c *gin.Context) {
	defs, err := s.svc.Metadata.ListDefinitions(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"metadata": defs})
}

func (s *Server) addDefinition(c *gin.Context) {
	var def domain.MetadataDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		badRequest(c, err)
		return
	}
	created, err := s.svc.Metadata.AddDefinition(c.Request.Context(), def)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"metadata": created})
}

func (s *Server) updateDefinition(c *gin.Context) {
	var def domain.MetadataDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		badRequest(c, err)
		return
	}
	def.UUID = c.Param("uuid")
	updated, err := s.svc.Metadata.UpdateDefinition(c.Request.Context(), def)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"metadata": updated})
}

func (s *Server) deleteDefinition(c *gin.Context) {
	cascade := c.Query("cascade") == "true"
	if err := s.svc.Metadata.DeleteDefinition(c.Request.Context(), c.Param("uuid"), cascade); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"metadata_uuid": c.Param("uuid")})
}

type computeBody struct {
	DocumentUUID string `json:"document_uuid"`
	MetadataUUID string `json:"metadata_uuid"`
}

func (s *Server) computeMetadata(c *gin.Context) {
	var body computeBody
	if err := bindOptionalJSON(c, &body); err != nil {
		badRequest(c, err)
		return
	}
	report, err := s.svc.Metadata.Compute(c.Request.Context(), body.DocumentUUID, body.MetadataUUID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"report": report})
}
