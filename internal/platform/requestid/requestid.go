// Package requestid generates the identifiers that tie one HTTP
// request to its log lines and audit events.
package requestid

import (
	"crypto/rand"
	"encoding/hex"
)

const idBytes = 16

// New returns a random 32-hex-character id.
func New() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
