package providers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExternalWrapsSentinel(t *testing.T) {
	cause := errors.New("connection refused")
	err := External("esign", "create_request", cause)

	assert.ErrorIs(t, err, ErrExternal)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "esign create_request: connection refused", err.Error())
	assert.Same(t, err, External("other", "op", err))
	assert.NoError(t, External("esign", "noop", nil))
}
