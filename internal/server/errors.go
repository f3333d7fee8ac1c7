package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"nerapi/internal/engine"
	"nerapi/internal/extract"
)

const (
	ErrInvalidInputCode       = "INVALID_INPUT"
	ErrInvalidSchemaCode      = "INVALID_SCHEMA"
	ErrEngineCode             = "ENGINE_ERROR"
	ErrServiceUnavailableCode = "SERVICE_UNAVAILABLE"
	ErrNotFoundCode           = "NOT_FOUND"
	ErrInternalCode           = "INTERNAL_ERROR"
)

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

func respondError(c *gin.Context, status int, code string, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorDetail{Code: code, Message: msg}})
}

// classify maps an extraction failure to its HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case extract.IsClientError(err):
		return http.StatusUnprocessableEntity, ErrInvalidSchemaCode
	case errors.Is(err, engine.ErrUnavailable):
		return http.StatusServiceUnavailable, ErrServiceUnavailableCode
	default:
		return http.StatusInternalServerError, ErrEngineCode
	}
}
