package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Fingerprint canonicalizes raw JSON per RFC 8785 before hashing it, so two
// byte-different-but-semantically-identical redeliveries of the same event
// (the provider is allowed to retry a webhook it didn't get a prompt 200
// for) collapse to the same dedupe key.
func Fingerprint(raw []byte) (string, error) {
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
