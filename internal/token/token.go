// Package token implements the opaque rotating credentials attached to
// sessions. Only the hash of a credential is ever persisted; the raw value is
// handed to the caller exactly once per issuance or rotation.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const secretLength = 32

// Generate returns a fresh random credential and the hash to persist for it.
func Generate() (raw, hash string, err error) {
	buf := make([]byte, secretLength)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate credential: %w", err)
	}
	raw = base64.RawURLEncoding.EncodeToString(buf)
	return raw, Hash(raw), nil
}

// Hash returns the hex-encoded SHA-256 digest of a raw credential.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Compare reports whether raw hashes to storedHash, in constant time.
func Compare(storedHash, raw string) bool {
	actual := Hash(raw)
	if len(storedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(actual)) == 1
}
