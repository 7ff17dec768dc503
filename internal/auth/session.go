package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// SessionLength is the number of characters in a session token.
	SessionLength = 128

	sessionAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var alphabetSize = big.NewInt(int64(len(sessionAlphabet)))

// NewSessionToken returns SessionLength characters drawn uniformly from
// [a-zA-Z0-9] using crypto/rand.
func NewSessionToken() (string, error) {
	token := make([]byte, SessionLength)
	for i := range token {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("failed to generate session token: %w", err)
		}
		token[i] = sessionAlphabet[n.Int64()]
	}
	return string(token), nil
}
