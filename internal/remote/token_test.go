package remote

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_SignVerify(t *testing.T) {
	secret := []byte("k")
	tok, err := SignToken(secret, "device_1", time.Minute, time.Now())
	require.NoError(t, err)

	device, err := VerifyToken(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, "device_1", device)
}

func TestToken_Expired(t *testing.T) {
	secret := []byte("k")
	tok, err := SignToken(secret, "device_1", time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = VerifyToken(secret, tok)
	assert.Error(t, err)
}

func TestToken_WrongSecret(t *testing.T) {
	tok, err := SignToken([]byte("a"), "device_1", time.Minute, time.Now())
	require.NoError(t, err)

	_, err = VerifyToken([]byte("b"), tok)
	assert.Error(t, err)
}

func TestToken_EmptySecret(t *testing.T) {
	_, err := SignToken(nil, "device_1", time.Minute, time.Now())
	assert.Error(t, err)
}
