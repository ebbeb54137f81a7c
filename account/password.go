package account

import (
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

// Hasher turns plaintext passwords into salted one-way hashes.
type Hasher interface {
	Hash(password string) (string, error)
}

type bcryptHasher struct {
	cost int
}

func (h bcryptHasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("password: hash: %w", err)
	}
	return string(bytes), nil
}

type argon2idHasher struct{}

func (argon2idHasher) Hash(password string) (string, error) {
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return "", fmt.Errorf("password: hash: %w", err)
	}
	return hash, nil
}

// NewHasher returns the hasher for scheme ("bcrypt" or "argon2id").
func NewHasher(scheme string, bcryptCost int) (Hasher, error) {
	switch scheme {
	case "", "bcrypt":
		if bcryptCost == 0 {
			bcryptCost = bcrypt.DefaultCost
		}
		if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
			return nil, fmt.Errorf("password: bcrypt cost %d out of range", bcryptCost)
		}
		return bcryptHasher{cost: bcryptCost}, nil
	case "argon2id":
		return argon2idHasher{}, nil
	}
	return nil, fmt.Errorf("password: unknown scheme %q", scheme)
}

// CheckPassword compares password against a stored hash of either scheme.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	if strings.HasPrefix(hash, "$argon2id$") {
		match, err := argon2id.ComparePasswordAndHash(password, hash)
		return err == nil && match
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
