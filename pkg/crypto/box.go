// Package crypto implements the Crypto Box: symmetric encryption for
// operator-entered secrets (connection strings, client secrets) at rest in
// the console's config files. Keys are derived per-operation with
// PBKDF2-HMAC-SHA256 and never retained past the call that used them.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/sb-console/engine/pkg/errors"
)

const (
	pbkdf2Iterations = 100_000
	saltSize         = 32
	keySize          = 32 // AES-256
	nonceSize        = 12 // GCM standard nonce
)

// GenerateSalt returns a fresh random salt suitable for deriveKey. Callers
// that encrypt multiple secrets under one password may reuse a salt they
// generated and stored themselves; Encrypt always generates its own.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, errors.New(errors.KindEncryptionFailed, "failed to generate salt", err)
	}
	return salt, nil
}

// deriveKey derives a 32-byte AES-256 key from password and salt. The
// returned key is the caller's responsibility to zero after use via Zero.
func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keySize, sha256.New)
}

// Zero overwrites key's bytes in place. Call this as soon as a derived key
// is no longer needed.
func Zero(key []byte) {
	for i := range key {
		key[i] = 0
	}
}

// EncryptedSecret is the at-rest representation of an encrypted string: the
// salt used to derive the key, stored separately from the ciphertext, and
// the base64(nonce‖ciphertext‖tag) payload produced by AES-256-GCM.
type EncryptedSecret struct {
	SaltB64       string
	CiphertextB64 string
}

// Encrypt derives a key from password and a fresh random salt, then seals
// plaintext with AES-256-GCM under a fresh random 12-byte nonce. The wire
// layout of CiphertextB64 is base64(nonce ‖ ciphertext ‖ tag); the
// authentication tag is appended by the AEAD itself.
func Encrypt(plaintext, password string) (EncryptedSecret, error) {
	if plaintext == "" || password == "" {
		return EncryptedSecret{}, errors.InvalidInput("plaintext and password must both be non-empty")
	}

	salt, err := GenerateSalt()
	if err != nil {
		return EncryptedSecret{}, err
	}

	key := deriveKey(password, salt)
	defer Zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return EncryptedSecret{}, errors.New(errors.KindEncryptionFailed, "failed to construct AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return EncryptedSecret{}, errors.New(errors.KindEncryptionFailed, "failed to construct GCM", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return EncryptedSecret{}, errors.New(errors.KindEncryptionFailed, "failed to generate nonce", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return EncryptedSecret{
		SaltB64:       base64.StdEncoding.EncodeToString(salt),
		CiphertextB64: base64.StdEncoding.EncodeToString(sealed),
	}, nil
}

// Decrypt reverses Encrypt. A wrong password or tampered ciphertext fails
// GCM's authentication check and is reported as DecryptionFailed; a
// malformed base64 payload or a payload shorter than one nonce is reported
// as InvalidInput.
func Decrypt(secret EncryptedSecret, password string) (string, error) {
	if password == "" {
		return "", errors.InvalidInput("password must be non-empty")
	}

	salt, err := base64.StdEncoding.DecodeString(secret.SaltB64)
	if err != nil {
		return "", errors.InvalidInput("salt is not valid base64")
	}

	raw, err := base64.StdEncoding.DecodeString(secret.CiphertextB64)
	if err != nil {
		return "", errors.InvalidInput("ciphertext is not valid base64")
	}
	if len(raw) < nonceSize {
		return "", errors.InvalidInput("ciphertext shorter than one nonce")
	}

	key := deriveKey(password, salt)
	defer Zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errors.New(errors.KindDecryptionFailed, "failed to construct AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.New(errors.KindDecryptionFailed, "failed to construct GCM", err)
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.New(errors.KindDecryptionFailed, "authentication failed: wrong password or tampered ciphertext", err)
	}
	return string(plaintext), nil
}
