package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientHandshakeVerifiesAgainstServerKeypair(t *testing.T) {
	serverKey, err := GenerateKeypair()
	require.NoError(t, err)

	encoded, err := ClientHandshake(serverKey.Public)
	require.NoError(t, err)

	v := NewVerifier(serverKey)
	assert.NoError(t, v.Verify(encoded))
}

func TestVerifyRejectsWrongServerKey(t *testing.T) {
	serverKey, err := GenerateKeypair()
	require.NoError(t, err)
	otherKey, err := GenerateKeypair()
	require.NoError(t, err)

	encoded, err := ClientHandshake(otherKey.Public)
	require.NoError(t, err)

	v := NewVerifier(serverKey)
	assert.ErrorIs(t, v.Verify(encoded), ErrHandshakeFailed)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	serverKey, err := GenerateKeypair()
	require.NoError(t, err)

	v := NewVerifier(serverKey)
	assert.ErrorIs(t, v.Verify("not-base64!!"), ErrHandshakeFailed)
}

func TestAuthCallbackAdapter(t *testing.T) {
	serverKey, err := GenerateKeypair()
	require.NoError(t, err)
	encoded, err := ClientHandshake(serverKey.Public)
	require.NoError(t, err)

	cb := NewVerifier(serverKey).AuthCallback()
	assert.True(t, cb(encoded, ""))
	assert.False(t, cb("garbage", ""))
}
