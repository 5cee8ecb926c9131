package sterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	base := errors.New("boom")
	wrapped := fmt.Errorf("wrap: %w", New(NetworkError, "fetch", base, "status=500"))

	code, ok := CodeOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, NetworkError, code)

	_, ok = CodeOf(base)
	assert.False(t, ok)
}

func TestReason(t *testing.T) {
	e := New(ParseError, "decode", nil, "bad json")
	assert.Equal(t, "Error:ParseError", e.Reason())

	e2 := New(ShutdownInProgress, "shutdown", nil, "")
	assert.Equal(t, "ShutdownInProgress", e2.Reason())
}

func TestErrorStringIncludesCause(t *testing.T) {
	cause := errors.New("connection refused")
	e := New(NetworkError, "http_specs_adapter.fetch", cause, "status=0")
	assert.Contains(t, e.Error(), "connection refused")
	assert.Contains(t, e.Error(), "http_specs_adapter.fetch")
}
