// Package idgen provides unique identifier generation for domain entities.
// IDs are 20-character, k-sortable, URL-safe strings backed by rs/xid.
package idgen

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/rs/xid"
)

// NewID generates a new unique identifier.
func NewID() string {
	return xid.New().String()
}

// NewRunID generates an identifier for a review run.
func NewRunID() string {
	return NewID()
}

// NewRequestID generates an identifier for an HTTP request.
func NewRequestID() string {
	return NewID()
}

// NewSecureSecret generates a cryptographically random hex secret of the
// given byte length. Used for bootstrapping tenant webhook secrets.
func NewSecureSecret(length int) (string, error) {
	if length <= 0 {
		length = 32
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
