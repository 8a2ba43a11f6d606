package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const signaturePrefix = "sha256="

// errSignature is deliberately generic so responses leak nothing.
var errSignature = errors.New("webhook verification failed")

// verifySignature checks an HMAC-SHA256 signature of body. The header value
// may be "sha256=<hex>" or bare hex.
func verifySignature(body []byte, header, secret string) error {
	if secret == "" || header == "" {
		return errSignature
	}
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(header), signaturePrefix))
	if err != nil {
		return errSignature
	}
	if !hmac.Equal(got, mac(body, secret)) {
		return errSignature
	}
	return nil
}

// Sign returns the "sha256=<hex>" signature senders put in the signature header.
func Sign(body []byte, secret string) string {
	return signaturePrefix + hex.EncodeToString(mac(body, secret))
}

func mac(body []byte, secret string) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return h.Sum(nil)
}
