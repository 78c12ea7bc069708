package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// SignatureHeader carries Sign(secret, body) on every delivery
	SignatureHeader = "X-Proctor-Signature"
	signaturePrefix = "sha256="
)

func mac(secret string, payload []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return h.Sum(nil)
}

// Sign returns the hex HMAC-SHA256 of payload prefixed with "sha256="
func Sign(secret string, payload []byte) string {
	return signaturePrefix + hex.EncodeToString(mac(secret, payload))
}

// Verify checks a signature produced by Sign. Receivers use it to
// authenticate deliveries.
func Verify(secret string, payload []byte, signature string) bool {
	encoded, ok := strings.CutPrefix(signature, signaturePrefix)
	if !ok {
		return false
	}
	got, err := hex.DecodeString(encoded)
	if err != nil {
		return false
	}
	return hmac.Equal(got, mac(secret, payload))
}
