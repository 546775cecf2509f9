package services

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagware/payment-gateway/internal/crypto"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEncryptor(t *testing.T) *crypto.Encryptor {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	enc, err := crypto.NewEncryptor(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	return enc
}

func encryptSecret(t *testing.T, enc *crypto.Encryptor, secret string) string {
	t.Helper()
	out, err := enc.Encrypt(secret)
	require.NoError(t, err)
	return out
}
