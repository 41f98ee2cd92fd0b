package utils

import (
	"crypto/rand"
	"encoding/base64"
)

// OneTimeTokenBytes is the amount of randomness in a one-time token.
const OneTimeTokenBytes = 32

// NewOneTimeToken returns a URL-safe opaque token for password reset or
// email verification. It carries no claims; validity lives in the database.
func NewOneTimeToken() (string, error) {
	buf := make([]byte, OneTimeTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
