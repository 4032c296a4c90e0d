package httpapi

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/logger"
)

// notification is the S3/MinIO event notification envelope.
type notification struct {
	Records []struct {
		EventName string `json:"eventName"`
		S3        struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key  string `json:"key"`
				Size int64  `json:"size"`
				ETag string `json:"eTag"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// storageEvents delivers every record to the orchestrator. Handlers are
// idempotent, so a failed record fails the whole request and the sender
// may redeliver all of them.
func (s *Server) storageEvents(c *gin.Context) {
	var n notification
	if err := c.ShouldBindJSON(&n); err != nil {
		badRequest(c, err)
		return
	}
	if len(n.Records) == 0 {
		fail(c, fmt.Errorf("%w: notification has no records", domain.ErrValidation))
		return
	}

	results := make([]*domain.IngestResult, 0, len(n.Records))
	var firstErr error
	for _, r := range n.Records {
		ev := domain.StorageEvent{
			Bucket: r.S3.Bucket.Name,
			Key:    r.S3.Object.Key,
			Size:   r.S3.Object.Size,
			ETag:   r.S3.Object.ETag,
		}
		res, err := s.svc.Ingestion.HandleEvent(c.Request.Context(), ev)
		if err != nil {
			logger.Warn("event %s/%s: %v", ev.Bucket, ev.Key, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, res)
	}
	if firstErr != nil {
		fail(c, firstErr)
		return
	}
	ok(c, http.StatusOK, gin.H{"results": results})
}

// pipelineEvents streams pipeline events as Server-Sent Events until the
// client disconnects.
func (s *Server) pipelineEvents(c *gin.Context) {
	if s.svc.Events == nil {
		fail(c, fmt.Errorf("%w: pipeline events are not enabled", domain.ErrNotFound))
		return
	}
	events := s.svc.Events.Subscribe(c.Request.Context())

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("Content-Type", "text/event-stream")
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()
	c.Stream(func(_ io.Writer) bool {
		ev, open := <-events
		if !open {
			return false
		}
		c.SSEvent("pipeline", ev)
		return true
	})
}
