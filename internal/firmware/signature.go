package firmware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the webhook body HMAC.
const SignatureHeader = "X-Hub-Signature"

const signaturePrefix = "sha256="

// VerifySignature checks header, of the form "sha256=<hex>", against the
// HMAC-SHA256 of body under secret. The comparison is constant-time.
func VerifySignature(body []byte, header, secret string) error {
	if header == "" {
		return ErrSignatureMissing
	}
	hexSum, ok := strings.CutPrefix(header, signaturePrefix)
	if !ok {
		return ErrSignatureInvalid
	}
	got, err := hex.DecodeString(hexSum)
	if err != nil {
		return ErrSignatureInvalid
	}
	if !hmac.Equal(got, sum(body, secret)) {
		return ErrSignatureInvalid
	}
	return nil
}

// Sign returns the header value VerifySignature accepts for body.
func Sign(body []byte, secret string) string {
	return signaturePrefix + hex.EncodeToString(sum(body, secret))
}

func sum(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
