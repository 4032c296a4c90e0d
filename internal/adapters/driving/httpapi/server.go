package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driving"
	"github.com/custodia-labs/docpipe/internal/logger"
)

// Services aggregates the driving ports served over HTTP.
type Services struct {
	Blob           driving.BlobGateway
	Documents      driving.DocumentService
	Metadata       driving.MetadataService
	Synonyms       driving.SynonymService
	Retrieval      driving.RetrievalService
	Answers        driving.AnswerService
	RecurrentQuery driving.RecurrentQueryService
	Ingestion      driving.IngestionService

	// Events feeds the pipeline event stream. Optional.
	Events Subscriber
}

// Subscriber delivers pipeline events until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context) <-chan domain.PipelineEvent
}

// Validate ensures all required services are set.
func (s *Services) Validate() error {
	switch {
	case s.Blob == nil:
		return errors.New("httpapi: blob gateway is required")
	case s.Documents == nil:
		return errors.New("httpapi: document service is required")
	case s.Metadata == nil:
		return errors.New("httpapi: metadata service is required")
	case s.Synonyms == nil:
		return errors.New("httpapi: synonym service is required")
	case s.Retrieval == nil:
		return errors.New("httpapi: retrieval service is required")
	case s.Answers == nil:
		return errors.New("httpapi: answer service is required")
	case s.RecurrentQuery == nil:
		return errors.New("httpapi: recurrent query service is required")
	case s.Ingestion == nil:
		return errors.New("httpapi: ingestion service is required")
	}
	return nil
}

// Server is the docpipe HTTP API.
type Server struct {
	svc    *Services
	auth   *Authenticator
	engine *gin.Engine
}

// NewServer builds the router. A nil authenticator serves every request
// anonymously.
func NewServer(svc *Services, auth *Authenticator) (*Server, error) {
	if err := svc.Validate(); err != nil {
		return nil, err
	}
	if auth == nil {
		auth = &Authenticator{}
	}

	engine := gin.New()
	engine.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		fail(c, fmt.Errorf("%w: panic: %v", domain.ErrInternal, recovered))
	}), requestLogger())
	engine.NoRoute(func(c *gin.Context) {
		fail(c, fmt.Errorf("%w: no route for %s %s", domain.ErrNotFound, c.Request.Method, c.Request.URL.Path))
	})

	s := &Server{svc: svc, auth: auth, engine: engine}
	s.routes()
	return s, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		ok(c, http.StatusOK, gin.H{"status": "healthy"})
	})

	v1 := s.engine.Group("/v1", s.auth.Middleware())
	write := s.auth.RequireSubject()

	v1.POST("/uploads", write, s.issueUpload)
	v1.POST("/events", s.storageEvents)
	v1.GET("/pipeline/events", s.pipelineEvents)

	docs := v1.Group("/documents")
	docs.POST("/search", s.searchDocuments)
	docs.GET("/:uuid", s.getDocument)
	docs.GET("/:uuid/download", s.downloadDocument)
	docs.PUT("/:uuid/tags", write, s.updateTags)
	docs.DELETE("/:uuid", write, s.deleteDocument)

	meta := v1.Group("/metadata")
	meta.GET("", s.listDefinitions)
	meta.POST("", write, s.addDefinition)
	meta.POST("/compute", write, s.computeMetadata)
	meta.PUT("/:uuid", write, s.updateDefinition)
	meta.DELETE("/:uuid", write, s.deleteDefinition)

	syn := v1.Group("/synonyms")
	syn.GET("", s.listSynonyms)
	syn.POST("", write, s.addSynonym)
	syn.GET("/expand", s.expandQuery)
	syn.PUT("/:uuid", write, s.updateSynonym)
	syn.DELETE("/:uuid", write, s.deleteSynonym)

	v1.POST("/chunks/search", s.searchChunks)
	v1.POST("/answers", s.answer)

	rq := v1.Group("/recurrent-queries")
	rq.GET("", s.listRecurrentQueries)
	rq.POST("", write, s.createRecurrentQuery)
	rq.GET("/:uuid", s.getRecurrentQuery)
	rq.PUT("/:uuid", write, s.updateRecurrentQuery)
	rq.DELETE("/:uuid", write, s.deleteRecurrentQuery)
}

// Run serves on addr until ctx is cancelled, then drains in-flight
// requests for up to five seconds.
func (s *Server) Run(ctx context.Context, addr string, readHeaderTimeout time.Duration) error {
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = 10 * time.Second
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down HTTP server: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
