// Package models defines the identity daemon's persisted rows.
package models

import "time"

// Account is a registered identity. PasswordHash is a PHC-format argon2id
// string; the plaintext is never stored.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// RefreshToken is an opaque, single-use token exchanged for a new token
// pair. Token is the lookup key; rows carry no other identity.
type RefreshToken struct {
	AccountID string
	Token     string
	Expires   time.Time
}
