package credentials_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CRT-AUTO/bridge-core/pkg/credentials"
)

func TestEncryptor_RoundTrip(t *testing.T) {
	enc, err := credentials.NewEncryptor([]byte("an-app-secret-of-any-length"))
	require.NoError(t, err)

	original := "EAAGm0PX4ZCp...long-lived-page-access-token"
	ciphertext, err := enc.Encrypt(original)
	require.NoError(t, err)
	assert.NotEqual(t, original, ciphertext)

	plaintext, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, original, plaintext)
}

func TestEncryptor_EmptyStringRoundTrips(t *testing.T) {
	enc, err := credentials.NewEncryptor([]byte("secret"))
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", ciphertext)

	plaintext, err := enc.Decrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", plaintext)
}

func TestEncryptor_DifferentSecretsCannotDecrypt(t *testing.T) {
	encA, err := credentials.NewEncryptor([]byte("secret-a"))
	require.NoError(t, err)
	encB, err := credentials.NewEncryptor([]byte("secret-b"))
	require.NoError(t, err)

	ciphertext, err := encA.Encrypt("access-token")
	require.NoError(t, err)

	_, err = encB.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestEncryptor_NonDeterministicCiphertext(t *testing.T) {
	enc, err := credentials.NewEncryptor([]byte("secret"))
	require.NoError(t, err)

	a, err := enc.Encrypt("same-plaintext")
	require.NoError(t, err)
	b, err := enc.Encrypt("same-plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "GCM nonce must differ between calls")
}

func TestNewEncryptor_RejectsEmptySecret(t *testing.T) {
	_, err := credentials.NewEncryptor(nil)
	assert.Error(t, err)
}
