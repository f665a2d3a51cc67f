package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCredentials(t *testing.T) {
	t.Run("parses entries", func(t *testing.T) {
		creds, err := ParseCredentials("a@x.io:secret:1, B@x.io:other:2")
		require.NoError(t, err)
		require.Len(t, creds, 2)

		id, ok := creds.Authenticate("a@x.io", "secret")
		assert.True(t, ok)
		assert.Equal(t, 1, id)

		// Email lookup is case-insensitive.
		id, ok = creds.Authenticate("b@X.IO", "other")
		assert.True(t, ok)
		assert.Equal(t, 2, id)
	})

	t.Run("rejects wrong password and unknown email", func(t *testing.T) {
		creds, err := ParseCredentials("a@x.io:secret:1")
		require.NoError(t, err)

		_, ok := creds.Authenticate("a@x.io", "wrong")
		assert.False(t, ok)
		_, ok = creds.Authenticate("nobody@x.io", "secret")
		assert.False(t, ok)
	})

	t.Run("malformed entries error", func(t *testing.T) {
		_, err := ParseCredentials("a@x.io:secret")
		assert.Error(t, err)
		_, err = ParseCredentials("a@x.io:secret:notanumber")
		assert.Error(t, err)
	})
}

func TestCookieSigning(t *testing.T) {
	secret := "test-secret"

	cookie := signOwner(secret, 42)
	id, ok := verifyOwner(secret, cookie)
	require.True(t, ok)
	assert.Equal(t, 42, id)

	_, ok = verifyOwner("other-secret", cookie)
	assert.False(t, ok, "signature from a different secret must not verify")

	_, ok = verifyOwner(secret, "42.deadbeef")
	assert.False(t, ok)

	_, ok = verifyOwner(secret, "garbage")
	assert.False(t, ok)
}
