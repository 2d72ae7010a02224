package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsUsageErrorDistinguishesUserErrorsFromInternalErrors(t *testing.T) {
	assert.True(t, isUsageError(newUserError("missing --owner-id")))
	assert.False(t, isUsageError(errors.New("connection refused")))
}

func TestNewUserErrorFormatsMessage(t *testing.T) {
	err := newUserError("no such version: %s", "v-123")
	assert.Equal(t, "no such version: v-123", err.Error())
}
