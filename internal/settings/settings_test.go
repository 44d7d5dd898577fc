package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStore_MaskedAPIKey(t *testing.T) {
	s := New("  AIzaSyExample1234 ", true)
	assert.Equal(t, "AIzaSyExample1234", s.APIKey())
	assert.Equal(t, "*************1234", s.MaskedAPIKey())
	assert.True(t, s.HasCredentials())

	s.SetAPIKey("abc")
	assert.Equal(t, "***", s.MaskedAPIKey())

	s.SetAPIKey("")
	assert.Empty(t, s.MaskedAPIKey())
}
