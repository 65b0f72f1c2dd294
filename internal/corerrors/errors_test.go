package corerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	retryable := Transport("dispatch", "send", CodeTransportTimeout, true, "timed out", nil)
	nonRetryable := Transport("dispatch", "send", CodeTransport4xx, false, "bad request", nil)

	assert.True(t, IsRetryable(retryable))
	assert.False(t, IsRetryable(nonRetryable))
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestCodeOf(t *testing.T) {
	err := Validation("scoring", "Score", CodeMissingSlot, "missing bill", nil)
	assert.Equal(t, CodeMissingSlot, CodeOf(err))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Internal("ledger", "Record", "db write failed", cause)
	assert.ErrorIs(t, err, cause)
}
