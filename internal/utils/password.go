package utils

import "golang.org/x/crypto/bcrypt"

// ErrPasswordTooLong is returned for passwords bcrypt would silently truncate.
var ErrPasswordTooLong = bcrypt.ErrPasswordTooLong

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password. A malformed
// hash is reported as a mismatch.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// IsMalformedHash reports whether hash could never verify any password.
// Used by the login path to log stored digests that need repair.
func IsMalformedHash(hash string) bool {
	_, err := bcrypt.Cost([]byte(hash))
	return err != nil
}
