package auth

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns a bcrypt hash suitable for the admin credential config.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword validates a password against a bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Credential is the shared admin secret. Hash wins over Plain when both are set.
type Credential struct {
	Plain string
	Hash  string
}

func (c Credential) Configured() bool {
	return strings.TrimSpace(c.Hash) != "" || c.Plain != ""
}

// Check compares input against the credential in constant time (plain) or
// through bcrypt (hash).
func (c Credential) Check(input string) bool {
	if hash := strings.TrimSpace(c.Hash); hash != "" {
		return CheckPassword(input, hash)
	}
	if c.Plain == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(input), []byte(c.Plain)) == 1
}
