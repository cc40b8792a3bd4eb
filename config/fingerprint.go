package config

import (
	"crypto/sha256"

	"github.com/mr-tron/base58"
)

// TokenFingerprint returns a short, stable, log-safe identifier for an API
// token: base58(sha256(token)[:8]). Lets operators confirm which credential a
// daemon is running with without ever logging the token itself.
func TokenFingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return base58.Encode(sum[:8])
}
