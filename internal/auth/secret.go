// Package auth checks the shared secret that guards the controller's
// internal routes.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"
)

// digest returns the SHA-256 of the trimmed secret.
func digest(secret string) [sha256.Size]byte {
	return sha256.Sum256([]byte(strings.TrimSpace(secret)))
}

// SecretMatches reports whether presented equals expected. Both sides are
// hashed first so the comparison time does not depend on their lengths.
// An empty expected secret never matches.
func SecretMatches(presented, expected string) bool {
	if strings.TrimSpace(expected) == "" {
		return false
	}
	a, b := digest(presented), digest(expected)
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
