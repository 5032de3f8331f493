package cog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsChannelAllowed(t *testing.T) {
	allowed := map[string]string{"general": "123", "bots": "456"}

	assert.True(t, isChannelAllowed("123", allowed))
	assert.True(t, isChannelAllowed("456", allowed))
	assert.False(t, isChannelAllowed("789", allowed))

	// No restrictions means every channel is allowed.
	assert.True(t, isChannelAllowed("789", nil))
	assert.True(t, isChannelAllowed("789", map[string]string{}))
}
