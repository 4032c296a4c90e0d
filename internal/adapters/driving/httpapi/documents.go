package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

func (s *Server) issueUpload(c *gin.Context) {
	var req domain.UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ticket, err := s.svc.Blob.IssueUploadURL(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{
		"presigned_url": ticket.PresignedURL,
		"file_name":     ticket.FileName,
		"expiration":    ticket.Expiration,
		"bucket":        ticket.Bucket,
		"key":           ticket.Key,
	})
}

func (s *Server) downloadDocument(c *gin.Context) {
	expiration := 0
	if v := c.Query("expiration"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			fail(c, fmt.Errorf("%w: expiration must be an integer", domain.ErrValidation))
			return
		}
		expiration = n
	}
	ticket, err := s.svc.Blob.IssueDownloadURL(c.Request.Context(), c.Param("uuid"), expiration)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"presigned_url": ticket.PresignedURL,
		"document_name": ticket.DocumentName,
		"expiration":    ticket.Expiration,
	})
}

func (s *Server) searchDocuments(c *gin.Context) {
	var req domain.DocumentListRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	docs, err := s.svc.Documents.List(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"documents": docs, "count": len(docs)})
}

func (s *Server) getDocument(c *gin.Context) {
	doc, err := s.svc.Documents.Get(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"document": doc})
}

type tagsBody struct {
	Tags []string `json:"tags"`
}

func (s *Server) updateTags(c *gin.Context) {
	var body tagsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	doc, err := s.svc.Documents.UpdateTags(c.Request.Context(), c.Param("uuid"), body.Tags)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"document": doc})
}

func (s *Server) deleteDocument(c *gin.Context) {
	if err := s.svc.Documents.Delete(c.Request.Context(), c.Param("uuid")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"document_uuid": c.Param("uuid")})
}

// bindOptionalJSON decodes the body when one is present.
func bindOptionalJSON(c *gin.Context, v any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(v)
}
