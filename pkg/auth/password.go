package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Lockout policy applied by the login flow: after MaxFailedLogins consecutive
// failures the account locks for LockoutMinutes.
const (
	MaxFailedLogins = 5
	LockoutMinutes  = 15
)

// PasswordHasher is the credential side of the authentication collaborator.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

// BcryptHasher is the reference PasswordHasher.
type BcryptHasher struct {
	Cost int
}

func (b BcryptHasher) cost() int {
	if b.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return b.Cost
}

func (b BcryptHasher) Hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), b.cost())
	if err != nil {
		return "", fmt.Errorf("password hashing failed: %w", err)
	}
	return string(h), nil
}

func (b BcryptHasher) Compare(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NewOpaqueToken generates a random 32-byte URL-safe token and its SHA-256
// hex hash. The plaintext is shown once; only the hash is stored.
func NewOpaqueToken() (plaintext, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("token generation failed: %w", err)
	}
	plaintext = base64.RawURLEncoding.EncodeToString(buf)
	hash = HashToken(plaintext)
	return plaintext, hash, nil
}

// HashToken returns the lowercase hex SHA-256 of a plaintext token.
func HashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
