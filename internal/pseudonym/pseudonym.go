// Package pseudonym derives stable opaque tokens from raw student identifiers.
//
// A token is the lowercase hex SHA-256 digest of salt || raw identifier. The raw
// identifier is never retained by this package and must not be persisted by callers.
package pseudonym

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/noah-isme/gema-tutor-analytics/internal/sentinel"
)

// SaltLength is the number of random bytes in a generated salt.
const SaltLength = 32

// TokenLength is the length of every pseudonym in hex characters.
const TokenLength = sha256.Size * 2

var tokenPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// NewSalt returns SaltLength bytes from the system CSPRNG.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// Pseudonymize maps rawID to its pseudonym under salt.
func Pseudonymize(rawID, salt []byte) (string, error) {
	if len(bytes.TrimSpace(rawID)) == 0 {
		return "", fmt.Errorf("%w: raw identifier is empty", sentinel.ErrInvalidInput)
	}
	if len(salt) == 0 {
		return "", sentinel.ErrNoActiveSalt
	}

	hasher := sha256.New()
	hasher.Write(salt)
	hasher.Write(rawID)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// PseudonymizeString is a convenience wrapper for string identifiers.
func PseudonymizeString(rawID string, salt []byte) (string, error) {
	return Pseudonymize([]byte(rawID), salt)
}

// Verify re-derives the pseudonym of rawID under a historical salt and compares it
// to token in constant time.
func Verify(rawID, salt []byte, token string) bool {
	derived, err := Pseudonymize(rawID, salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(derived), []byte(token)) == 1
}

// Valid reports whether token has the shape of a pseudonym.
func Valid(token string) bool {
	return tokenPattern.MatchString(token)
}

// Short returns the display prefix used in logs and traces.
func Short(token string) string {
	if len(token) <= 16 {
		return token
	}
	return token[:16]
}
