package auth

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher implements PasswordAuthenticator with a fixed cost
type BcryptHasher struct {
	cost int

	dummyOnce sync.Once
	dummyHash string
}

// NewBcryptHasher returns a hasher, cost 0 selects the package default
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = passwordHashCost()
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &BcryptHasher{cost: cost}
}

// Cost returns the bcrypt work factor
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// HashPassword will generate a password hash
func (h *BcryptHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	return string(b), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func (h *BcryptHasher) ComparePasswordAndHash(password, hash string) error {
	return ComparePasswordAndHash(password, hash)
}

// DummyCompare burns the same time as a real comparison. Used when the
// account does not exist so response times do not reveal it.
func (h *BcryptHasher) DummyCompare(password string) {
	h.dummyOnce.Do(func() {
		h.dummyHash, _ = h.HashPassword(uuid.NewString())
	})
	_ = ComparePasswordAndHash(password, h.dummyHash)
}

// HashPassword will generate a password hash using the default cost
func HashPassword(password string) (string, error) {
	return NewBcryptHasher(0).HashPassword(password)
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}
