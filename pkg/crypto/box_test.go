package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sb-console/engine/pkg/crypto"
	apperrors "github.com/sb-console/engine/pkg/errors"
)

func TestRoundTrip(t *testing.T) {
	secret, err := crypto.Encrypt("super secret connection string", "hunter2")
	require.NoError(t, err)

	plain, err := crypto.Decrypt(secret, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "super secret connection string", plain)
}

func TestWrongPasswordFailsDecryption(t *testing.T) {
	secret, err := crypto.Encrypt("top secret", "correct-password")
	require.NoError(t, err)

	_, err = crypto.Decrypt(secret, "wrong-password")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindDecryptionFailed, apperrors.KindOf(err))
}

func TestEncryptRejectsEmptyInput(t *testing.T) {
	_, err := crypto.Encrypt("", "pw")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))

	_, err = crypto.Encrypt("plaintext", "")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))
}

func TestDecryptRejectsMalformedCiphertext(t *testing.T) {
	secret, err := crypto.Encrypt("payload", "pw")
	require.NoError(t, err)
	secret.CiphertextB64 = "not-base64!!!"

	_, err = crypto.Decrypt(secret, "pw")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))
}

func TestEncryptingTwiceYieldsDifferentCiphertext(t *testing.T) {
	a, err := crypto.Encrypt("same plaintext", "pw")
	require.NoError(t, err)
	b, err := crypto.Encrypt("same plaintext", "pw")
	require.NoError(t, err)

	assert.NotEqual(t, a.CiphertextB64, b.CiphertextB64)
	assert.NotEqual(t, a.SaltB64, b.SaltB64)
}
