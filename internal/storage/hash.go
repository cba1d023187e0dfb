package storage

import (
	"crypto/rand"
	"fmt"
)

const hashAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const identityHashLen = 12

// newIdentityHash generates the opaque per-user token handed out at first
// registration. 12 alphanumeric chars gives ~71 bits; collisions are caught
// by the unique column constraint.
func newIdentityHash() (string, error) {
	b := make([]byte, identityHashLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("identity hash: %w", err)
	}
	for i := range b {
		b[i] = hashAlphabet[int(b[i])%len(hashAlphabet)]
	}
	return string(b), nil
}
