package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code      string
	Component string
	Field     string
	Message   string
	Cause     error
}

func (e *AppError) Error() string {
	prefix := e.Message
	if e.Component != "" {
		prefix = e.Component + ": " + prefix
	}
	if e.Field != "" {
		prefix = fmt.Sprintf("%s (field %s)", prefix, e.Field)
	}
	if e.Cause != nil {
		if prefix == "" {
			return e.Cause.Error()
		}
		return fmt.Sprintf("%s: %v", prefix, e.Cause)
	}
	return prefix
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context. The code of a wrapped
// AppError is carried over so callers can still classify the failure.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:      appErr.Code,
			Component: appErr.Component,
			Field:     appErr.Field,
			Message:   message,
			Cause:     err,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:      code,
			Component: appErr.Component,
			Field:     appErr.Field,
			Message:   appErr.Message,
			Cause:     appErr.Cause,
		}
	}
	return &AppError{Code: code, Cause: err}
}

// IsAppError checks if an error is (or wraps) an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Is reports whether any error in err's chain carries the given code.
func Is(err error, code string) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// Predefined error codes
const (
	// experiment engine kinds
	CodeConfiguration    = "CONFIGURATION_ERROR"
	CodeInsufficientData = "INSUFFICIENT_DATA"
	CodeNumericalFit     = "NUMERICAL_FIT_ERROR"
	CodeDomain           = "DOMAIN_ERROR"

	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeInvalidInput    = "INVALID_INPUT"
)

// Configuration reports an unknown or invalid experiment parameter.
func Configuration(component, field, message string) *AppError {
	return &AppError{Code: CodeConfiguration, Component: component, Field: field, Message: message}
}

// InsufficientData reports a period too short for the requested computation.
func InsufficientData(component, message string) *AppError {
	return &AppError{Code: CodeInsufficientData, Component: component, Message: message}
}

// NumericalFit reports a degenerate fit: zero variance, singular system or a zero standard error.
func NumericalFit(component, message string) *AppError {
	return &AppError{Code: CodeNumericalFit, Component: component, Message: message}
}

// Domain reports a mathematically invalid argument such as a zero MDE.
func Domain(component, field, message string) *AppError {
	return &AppError{Code: CodeDomain, Component: component, Field: field, Message: message}
}

func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string) *AppError {
	return New(CodeDatabaseError, message)
}

func ValidationError(message string) *AppError {
	return New(CodeValidationError, message)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

// Suggestion returns a corrective hint for the error kind, or "" when there is none.
func Suggestion(err error) string {
	switch GetCode(err) {
	case CodeConfiguration, CodeConfigInvalid:
		return "check the experiment parameters against the allowed values"
	case CodeInsufficientData:
		return "extend the pre-period (at least 14 observed days) or the post-period (at least 2 observed days)"
	case CodeNumericalFit:
		return "choose different control markets or increase the ridge penalty"
	case CodeDomain:
		return "use a non-zero minimum detectable effect and probabilities strictly between 0 and 1"
	case CodeNotFound:
		return "verify the identifier"
	}
	return ""
}

// FieldOf returns the offending field recorded on the nearest AppError, if any.
func FieldOf(err error) string {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Field != "" {
			return appErr.Field
		}
		err = stderrors.Unwrap(err)
	}
	return ""
}
