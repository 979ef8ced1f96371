package cryptox

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// EmailHash returns the lookup hash stored in plaintext next to an
// identity record: hex SHA-256 of the trimmed, lowercased address.
func EmailHash(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}
