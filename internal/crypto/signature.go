// Package crypto holds the signing and secret-handling primitives shared by
// webhook admission, outbound delivery and the audit trail.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// ComputeSignature returns the base64 HMAC-SHA256 of message under secret.
func ComputeSignature(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature against the expected MAC for message.
// The comparison is constant time; a malformed base64 signature verifies
// as false rather than erroring.
func VerifySignature(secret, message, signature string) bool {
	provided, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hmac.Equal(provided, mac.Sum(nil))
}

// InboundMessage builds the canonical string providers sign on inbound
// webhooks: "{ts}.{nonce}.{method}.{path}.{sha256HexOfBody}". The format is
// wire contract and must stay bit-reproducible.
func InboundMessage(timestamp int64, nonce, method, path string, body []byte) string {
	bodyHash := sha256.Sum256(body)
	return fmt.Sprintf("%d.%s.%s.%s.%s", timestamp, nonce, method, path, hex.EncodeToString(bodyHash[:]))
}

// OutboundMessage builds the canonical string the gateway signs on outbound
// merchant webhooks: "{ts}.{nonce}.{jsonPayload}".
func OutboundMessage(timestamp int64, nonce string, payload []byte) string {
	return fmt.Sprintf("%d.%s.%s", timestamp, nonce, payload)
}
