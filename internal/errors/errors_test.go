package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := Configuration("spec", "effect.shape", "unknown shape \"wave\"")
	assert.Equal(t, "spec: unknown shape \"wave\" (field effect.shape)", err.Error())

	wrapped := &AppError{Code: CodeDatabaseError, Message: "insert run", Cause: fmt.Errorf("connection refused")}
	assert.Equal(t, "insert run: connection refused", wrapped.Error())
}

func TestWrap_KeepsKind(t *testing.T) {
	base := InsufficientData("estimator", "pre-period has 5 observed days")
	err := Wrap(base, "estimate chicago")

	assert.Equal(t, CodeInsufficientData, GetCode(err))
	assert.True(t, Is(err, CodeInsufficientData))
	assert.True(t, stderrors.Is(err, base))

	var app *AppError
	assert.True(t, stderrors.As(err, &app))
	assert.Equal(t, "estimator", app.Component)
}

func TestWrap_PlainErrorIsInternal(t *testing.T) {
	err := Wrapf(fmt.Errorf("boom"), "run %d", 3)
	assert.Equal(t, CodeInternalError, GetCode(err))
	assert.Contains(t, err.Error(), "run 3: boom")
	assert.Nil(t, Wrap(nil, "nothing"))
	assert.Nil(t, Wrapf(nil, "nothing %d", 1))
}

func TestWithCode(t *testing.T) {
	err := WithCode(CodeNotFound, Domain("power", "mde", "must be non-zero"))
	assert.Equal(t, CodeNotFound, GetCode(err))
	assert.Nil(t, WithCode(CodeNotFound, nil))

	plain := WithCode(CodeValidationError, fmt.Errorf("bad"))
	assert.Equal(t, CodeValidationError, GetCode(plain))
	assert.Equal(t, "bad", plain.Error())
}

func TestGetCode_Unknown(t *testing.T) {
	assert.Equal(t, "UNKNOWN", GetCode(fmt.Errorf("plain")))
	assert.False(t, IsAppError(fmt.Errorf("plain")))
	assert.True(t, IsAppError(fmt.Errorf("ctx: %w", NotFound("run"))))
}

func TestIs_WalksChain(t *testing.T) {
	err := fmt.Errorf("batch: %w", Wrap(NumericalFit("matching", "singular"), "run 4"))
	assert.True(t, Is(err, CodeNumericalFit))
	assert.False(t, Is(err, CodeDomain))
	assert.False(t, Is(nil, CodeDomain))
}

func TestSuggestion(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{InsufficientData("x", "y"), "extend the pre-period"},
		{NumericalFit("x", "y"), "ridge penalty"},
		{Domain("x", "mde", "y"), "non-zero"},
		{Configuration("x", "f", "y"), "allowed values"},
	}
	for _, tt := range tests {
		assert.Contains(t, Suggestion(tt.err), tt.want)
	}
	assert.Empty(t, Suggestion(fmt.Errorf("plain")))
}

func TestFieldOf(t *testing.T) {
	err := Wrap(Configuration("spec", "effect.shape", "unknown"), "run experiment")
	assert.Equal(t, "effect.shape", FieldOf(err))
	assert.Empty(t, FieldOf(fmt.Errorf("plain")))
}
