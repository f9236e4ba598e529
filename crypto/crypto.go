// Package crypto holds password hashing and the random secrets handed out to
// users: temporary passwords and password-reset tokens.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt cost used by HashPassword. Tests lower it.
var PasswordCost = bcrypt.DefaultCost

var (
	dummyOnce sync.Once
	dummyHash string
)

const (
	tempPasswordLength = 10
	tempPasswordChars  = "abcdefghijkmnpqrstuvwxyz23456789"
)

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// DummyHash is compared against when a login names an unknown user so both
// paths spend the same time in bcrypt.
func DummyHash() string {
	dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), PasswordCost)
		if err == nil {
			dummyHash = string(h)
		}
	})
	return dummyHash
}

// TempPassword returns a random lower-case alphanumeric password without
// look-alike characters.
func TempPassword() (string, error) {
	max := big.NewInt(int64(len(tempPasswordChars)))
	b := make([]byte, tempPasswordLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		b[i] = tempPasswordChars[n.Int64()]
	}
	return string(b), nil
}

// NewToken returns a 32-byte random token, hex encoded.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashToken is what gets stored for a reset token; the raw token only
// travels in the email.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
