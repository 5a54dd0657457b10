package resilience

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(NewTransientError(eris.New("429"), 429)))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(eris.New("read tcp: i/o timeout")))
	assert.False(t, IsTransient(eris.New("malformed page")))
}

func TestIsTransient_TerminalWinsOverWrappedTransient(t *testing.T) {
	inner := NewTransientError(eris.New("conn reset"), 0)
	err := NewTerminalError(inner)
	assert.False(t, IsTransient(err))
	assert.True(t, IsTerminal(err))
}

func TestIsValidation(t *testing.T) {
	err := NewValidationError("ticket_number", eris.New("unparseable"))
	assert.True(t, IsValidation(err))
	assert.False(t, IsTransient(err))
	assert.False(t, IsTerminal(err))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "code=%d", code)
	}
	for _, code := range []int{200, 400, 401, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "code=%d", code)
	}
}
