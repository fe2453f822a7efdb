package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashUserKey returns a filesystem-safe identifier for an owner identity.
// Artifact directories and key-value namespaces are both derived from it.
func HashUserKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ShortHash returns the first 12 characters of HashUserKey, for log fields.
func ShortHash(s string) string {
	if s == "" {
		return ""
	}
	return HashUserKey(s)[:12]
}
