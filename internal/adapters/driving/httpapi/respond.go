package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/logger"
)

const (
	statusOK    = "OK"
	statusError = "ERROR"
)

// errorBody is the failure envelope.
type errorBody struct {
	StatusAPI string      `json:"statusAPI"`
	ErrorKind domain.Kind `json:"error_kind"`
	Message   string      `json:"message"`
}

// ok writes data under statusAPI. Map payloads are merged into the
// envelope; anything else is nested under "data".
func ok(c *gin.Context, status int, data any) {
	body := gin.H{"statusAPI": statusOK}
	switch v := data.(type) {
	case nil:
	case gin.H:
		for k, val := range v {
			body[k] = val
		}
	default:
		body["data"] = v
	}
	c.JSON(status, body)
}

// fail writes the error envelope with the status for its kind.
func fail(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, errorBody{
		StatusAPI: statusError,
		ErrorKind: kind,
		Message:   err.Error(),
	})
}

// badRequest reports a malformed body as a validation error.
func badRequest(c *gin.Context, err error) {
	fail(c, fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err))
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case domain.KindExtraction:
		return http.StatusUnprocessableEntity
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindUpstream:
		return http.StatusBadGateway
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
