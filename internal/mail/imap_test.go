package mail

import (
	"context"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-archivist/internal/model"
)

func TestID_RoundTrip(t *testing.T) {
	id := FormatID(1700000000, imap.UID(42))
	assert.Equal(t, "1700000000:42", id)

	validity, uid, err := ParseID(id)
	require.NoError(t, err)
	assert.Equal(t, uint32(1700000000), validity)
	assert.Equal(t, imap.UID(42), uid)
}

func TestParseID_Malformed(t *testing.T) {
	for _, id := range []string{"", "42", "x:1", "1:y", "1:0"} {
		_, _, err := ParseID(id)
		assert.Error(t, err, id)
	}
}

func TestClient_NoCredentials(t *testing.T) {
	c := NewClient(Config{Host: "imap.example.com"})
	assert.False(t, c.Configured())

	_, err := c.Fetch(context.Background(), model.DateWindow{})
	assert.ErrorIs(t, err, ErrNoCredentials)
}
