package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor used to hash the configured key.
const defaultCost = 12

// ErrInvalidAPIKey is returned by Verify when the presented key does not match.
var ErrInvalidAPIKey = errors.New("auth: invalid API key")

// APIKeyVerifier checks bearer keys for machine routes such as the scheduled
// credit reset. Only the bcrypt hash of the configured key is kept in memory;
// CompareHashAndPassword runs in constant time.
type APIKeyVerifier struct {
	hash []byte
}

// NewAPIKeyVerifier hashes key with the default cost.
func NewAPIKeyVerifier(key string) (*APIKeyVerifier, error) {
	return newAPIKeyVerifierWithCost(key, defaultCost)
}

// NewAPIKeyVerifierForTest uses bcrypt.MinCost so tests in other packages
// stay fast. Do not use in production.
func NewAPIKeyVerifierForTest(key string) (*APIKeyVerifier, error) {
	return newAPIKeyVerifierWithCost(key, bcrypt.MinCost)
}

func newAPIKeyVerifierWithCost(key string, cost int) (*APIKeyVerifier, error) {
	if key == "" {
		return nil, errors.New("auth: API key must not be empty")
	}
	if len(key) > 72 {
		// bcrypt silently truncates longer input.
		return nil, fmt.Errorf("auth: API key must be 72 bytes or fewer")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return nil, fmt.Errorf("auth: hashing API key: %w", err)
	}
	return &APIKeyVerifier{hash: hash}, nil
}

// Verify returns nil when presented matches the configured key.
func (v *APIKeyVerifier) Verify(presented string) error {
	if presented == "" {
		return ErrInvalidAPIKey
	}
	err := bcrypt.CompareHashAndPassword(v.hash, []byte(presented))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidAPIKey
		}
		return fmt.Errorf("auth: comparing API key: %w", err)
	}
	return nil
}
