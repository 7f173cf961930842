// Package signature verifies inbound webhook deliveries against the app
// secret using the provider's HMAC header scheme.
package signature

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"strings"
)

var (
	ErrMissingSignature = errors.New("MISSING_SIGNATURE")
	ErrMalformedHeader  = errors.New("MALFORMED_HEADER")
	ErrInvalidSignature = errors.New("INVALID_SIGNATURE")
)

// Headers is the subset of an inbound request's headers the verifier reads.
// SHA256 takes precedence over SHA1 when both are present.
type Headers struct {
	SHA256 string // X-Hub-Signature-256
	SHA1   string // X-Hub-Signature
}

// Verify checks body against the configured header using the app secret.
// body must be the exact raw bytes received on the wire — re-marshaling
// the parsed JSON before verifying would compute the HMAC over different
// bytes than the provider signed.
func Verify(headers Headers, body []byte, appSecret []byte) error {
	if headers.SHA256 != "" {
		return verify(headers.SHA256, body, appSecret)
	}
	if headers.SHA1 != "" {
		return verify(headers.SHA1, body, appSecret)
	}
	return ErrMissingSignature
}

func verify(header string, body, appSecret []byte) error {
	algo, hexDigest, ok := strings.Cut(header, "=")
	if !ok || algo == "" || hexDigest == "" {
		return ErrMalformedHeader
	}

	want, err := hex.DecodeString(hexDigest)
	if err != nil {
		return ErrMalformedHeader
	}

	newHash := hasherFor(algo)
	if newHash == nil {
		return ErrMalformedHeader
	}

	mac := hmac.New(newHash, appSecret)
	mac.Write(body)
	got := mac.Sum(nil)

	if !hmac.Equal(got, want) {
		return ErrInvalidSignature
	}
	return nil
}

func hasherFor(algo string) func() hash.Hash {
	switch algo {
	case "sha256":
		return sha256.New
	case "sha1":
		return sha1.New
	default:
		return nil
	}
}
