package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72
	maxUsernameLength = 32
)

var (
	ErrInvalidUsername = errors.New("invalid username")
	ErrWeakPassword    = errors.New("password too weak")
)

// NormalizeUsername returns the canonical lowercase form of a dashboard
// operator username. Usernames are ASCII letters and digits with interior
// dot, dash, or underscore separators.
func NormalizeUsername(raw string) (string, error) {
	username := strings.TrimSpace(strings.ToLower(raw))
	if username == "" {
		return "", fmt.Errorf("%w: username is required", ErrInvalidUsername)
	}
	if len(username) > maxUsernameLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidUsername, maxUsernameLength)
	}
	for i := 0; i < len(username); i++ {
		c := username[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '.' || c == '-' || c == '_':
			if i == 0 || i == len(username)-1 {
				return "", fmt.Errorf("%w: separator at edge", ErrInvalidUsername)
			}
		default:
			return "", fmt.Errorf("%w: character %q not allowed", ErrInvalidUsername, c)
		}
	}
	return username, nil
}

// ValidatePassword checks minimal password requirements. bcrypt only hashes
// the first 72 bytes, so overly long inputs are rejected rather than
// silently truncated.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: at least %d characters required", ErrWeakPassword, minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("%w: longer than %d characters", ErrWeakPassword, maxPasswordLength)
	}
	return nil
}

// HashPassword hashes one plaintext password for storage in the catalog.
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyPassword verifies a plaintext candidate against a bcrypt hash.
func VerifyPassword(passwordHash, candidate string) bool {
	if strings.TrimSpace(passwordHash) == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(candidate)) == nil
}
