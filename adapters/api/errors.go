package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"geolift/internal/errors"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error      string `json:"error"`
	Kind       string `json:"kind"`
	Field      string `json:"field,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// statusFor maps an error kind to an HTTP status.
func statusFor(code string) int {
	switch code {
	case errors.CodeConfiguration, errors.CodeDomain, errors.CodeValidationError, errors.CodeInvalidInput:
		return http.StatusBadRequest
	case errors.CodeInsufficientData, errors.CodeNumericalFit:
		return http.StatusUnprocessableEntity
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeConfigInvalid:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := statusFor(code)
	resp := ErrorResponse{
		Error:      err.Error(),
		Kind:       code,
		Suggestion: errors.Suggestion(err),
	}
	if field := errors.FieldOf(err); field != "" {
		resp.Field = field
	}
	if status >= http.StatusInternalServerError {
		s.deps.Logger.Error().Err(err).Str("kind", code).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(message string, cause error) error {
	return errors.WithCode(errors.CodeInvalidInput, errors.Wrap(cause, message))
}
