package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Is(t *testing.T) {
	err := WithStatus(CodeServer, http.StatusBadGateway, "bad gateway")
	wrapped := fmt.Errorf("list channels: %w", err)

	assert.ErrorIs(t, wrapped, ErrServer)
	assert.NotErrorIs(t, wrapped, ErrAuth)
	assert.Equal(t, CodeServer, CodeOf(wrapped))
}

func TestAppError_UnwrapCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeNetwork, "request failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, "request failed: connection refused", err.Error())
}

func TestCodeOf_Unknown(t *testing.T) {
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("plain")))
	assert.Equal(t, CodeUnknown, CodeOf(nil))
}
