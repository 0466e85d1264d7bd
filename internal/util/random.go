package util

import (
	"crypto/rand"
	"errors"
)

// RandomBytes generates n cryptographically secure random bytes using crypto/rand.
// Used throughout the key hierarchy for salts, nonces, and the master vault key.
//
// Returns an error if n <= 0 or if the system's cryptographic random number generator fails.
func RandomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, errors.New("invalid length")
	}
	data := make([]byte, n)
	if _, err := rand.Read(data); err != nil {
		return nil, err
	}
	return data, nil
}
