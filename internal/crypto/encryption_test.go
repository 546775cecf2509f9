package crypto_test

import (
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/pagware/payment-gateway/internal/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEncryptor(t *testing.T) *crypto.Encryptor {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	enc, err := crypto.NewEncryptor(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	return enc
}

func TestNewEncryptor(t *testing.T) {
	t.Run("rejects malformed base64 key", func(t *testing.T) {
		_, err := crypto.NewEncryptor("not base64!!!")
		assert.Error(t, err)
	})

	t.Run("rejects wrong key length", func(t *testing.T) {
		short := base64.StdEncoding.EncodeToString(make([]byte, 16))
		_, err := crypto.NewEncryptor(short)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "32 bytes")
	})
}

func TestEncryptDecrypt(t *testing.T) {
	enc := newTestEncryptor(t)

	t.Run("round trips plaintext", func(t *testing.T) {
		for _, plaintext := range []string{
			"whsec_merchant_secret",
			"a",
			`{"provider":"pix","key":"value"}`,
			"emoji 🔑 and unicode",
		} {
			ciphertext, err := enc.Encrypt(plaintext)
			require.NoError(t, err)

			decrypted, err := enc.Decrypt(ciphertext)
			require.NoError(t, err)
			assert.Equal(t, plaintext, decrypted)
		}
	})

	t.Run("same plaintext yields different ciphertexts", func(t *testing.T) {
		a, err := enc.Encrypt("repeated secret")
		require.NoError(t, err)
		b, err := enc.Encrypt("repeated secret")
		require.NoError(t, err)

		assert.NotEqual(t, a, b)
	})

	t.Run("rejects empty plaintext", func(t *testing.T) {
		_, err := enc.Encrypt("")
		assert.Error(t, err)
	})

	t.Run("tampered ciphertext fails authentication", func(t *testing.T) {
		ciphertext, err := enc.Encrypt("secret")
		require.NoError(t, err)

		raw, err := base64.StdEncoding.DecodeString(ciphertext)
		require.NoError(t, err)
		raw[len(raw)-1] ^= 0x01

		_, err = enc.Decrypt(base64.StdEncoding.EncodeToString(raw))
		assert.ErrorIs(t, err, crypto.ErrDecryptFailed)
	})

	t.Run("wrong key fails the same way as tampering", func(t *testing.T) {
		other := newTestEncryptor(t)

		ciphertext, err := enc.Encrypt("secret")
		require.NoError(t, err)

		_, err = other.Decrypt(ciphertext)
		assert.ErrorIs(t, err, crypto.ErrDecryptFailed)
	})

	t.Run("malformed input fails generically", func(t *testing.T) {
		for _, input := range []string{"", "!!!", base64.StdEncoding.EncodeToString([]byte("short"))} {
			_, err := enc.Decrypt(input)
			assert.ErrorIs(t, err, crypto.ErrDecryptFailed)
		}
	})
}

func TestHash(t *testing.T) {
	enc := newTestEncryptor(t)

	t.Run("is deterministic", func(t *testing.T) {
		assert.Equal(t, enc.Hash("api-key-secret"), enc.Hash("api-key-secret"))
	})

	t.Run("verifies its own output", func(t *testing.T) {
		digest := enc.Hash("api-key-secret")
		assert.True(t, enc.VerifyHash("api-key-secret", digest))
	})

	t.Run("rejects a different input", func(t *testing.T) {
		digest := enc.Hash("api-key-secret")
		assert.False(t, enc.VerifyHash("other-secret", digest))
	})

	t.Run("rejects malformed digests", func(t *testing.T) {
		assert.False(t, enc.VerifyHash("input", "not-base64!!!"))
	})
}
