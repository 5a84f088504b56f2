package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/sync"
	"github.com/storefront/backend/internal/interfaces/http/dto"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	return c.GetHeader("X-Request-ID")
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 accepted response
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// HandleError converts domain and pipeline errors to HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	code := classifyError(err)
	h.Error(c, dto.GetHTTPStatus(code), code, err.Error())
}

// classifyError maps an error from the sync pipeline to an API error code
func classifyError(err error) string {
	switch {
	case errors.Is(err, sync.ErrSyncAlreadyRunning):
		return dto.ErrCodeSyncRunning
	case errors.Is(err, sync.ErrTimeout):
		return dto.ErrCodeUpstreamTimeout
	case errors.Is(err, sync.ErrAuth),
		errors.Is(err, sync.ErrSourceUnavailable),
		errors.Is(err, sync.ErrMalformedPage):
		return dto.ErrCodeUpstream
	case errors.Is(err, sync.ErrCycleDetected):
		return dto.ErrCodeSyncRejected
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return dto.NormalizeErrorCode(domainErr.Code)
	}
	return dto.ErrCodeInternal
}
