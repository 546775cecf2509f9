package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	gcmNonceSize = 12
	gcmTagSize   = 16
)

// ErrDecryptFailed covers every decryption failure mode. Malformed input,
// a bad authentication tag and a wrong key all surface identically so
// callers cannot be used as a padding/auth oracle.
var ErrDecryptFailed = errors.New("decryption failed")

// Encryptor provides authenticated encryption for secrets at rest and
// one-way hashing for lookups. The master key is process-wide configuration
// loaded once at startup.
type Encryptor struct {
	key []byte
}

// NewEncryptor builds an Encryptor from a base64-encoded 256-bit master key.
func NewEncryptor(masterKeyBase64 string) (*Encryptor, error) {
	key, err := base64.StdEncoding.DecodeString(masterKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("master key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(key))
	}
	return &Encryptor{key: key}, nil
}

// Encrypt seals plaintext with AES-256-GCM under a fresh random nonce and
// returns base64(nonce || tag || ciphertext). Two calls with the same
// plaintext produce different outputs.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("plaintext cannot be empty")
	}

	aead, err := e.newGCM()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	// Seal appends ciphertext||tag; the stored layout is nonce||tag||ciphertext.
	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]

	out := make([]byte, 0, gcmNonceSize+gcmTagSize+len(ciphertext))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ciphertext...)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Every failure mode returns ErrDecryptFailed.
func (e *Encryptor) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrDecryptFailed
	}
	if len(raw) < gcmNonceSize+gcmTagSize {
		return "", ErrDecryptFailed
	}

	nonce := raw[:gcmNonceSize]
	tag := raw[gcmNonceSize : gcmNonceSize+gcmTagSize]
	ciphertext := raw[gcmNonceSize+gcmTagSize:]

	aead, err := e.newGCM()
	if err != nil {
		return "", ErrDecryptFailed
	}

	sealed := make([]byte, 0, len(ciphertext)+gcmTagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}

	return string(plaintext), nil
}

// Hash returns the deterministic base64 SHA-256 digest of input.
func (e *Encryptor) Hash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// VerifyHash recomputes the digest and compares in constant time.
func (e *Encryptor) VerifyHash(input, digest string) bool {
	expected, err := base64.StdEncoding.DecodeString(digest)
	if err != nil {
		return false
	}
	sum := sha256.Sum256([]byte(input))
	return subtle.ConstantTimeCompare(sum[:], expected) == 1
}

func (e *Encryptor) newGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
