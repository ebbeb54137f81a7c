package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultExpiration applies when a token is generated with a non-positive lifetime.
const DefaultExpiration = 3600 * time.Second

// ErrInvalidToken covers every verification failure: bad signature,
// undecodable payload, expiry, wrong purpose or missing subject.
var ErrInvalidToken = errors.New("token: invalid or expired")

// Purpose tags what a token authorizes.
type Purpose string

const (
	PurposeConfirm     Purpose = "confirm"
	PurposeReset       Purpose = "reset"
	PurposeChangeEmail Purpose = "change_email"
)

// Claims is the signed payload.
type Claims struct {
	Purpose  Purpose `json:"purpose"`
	UserID   uint    `json:"uid"`
	NewEmail string  `json:"new_email,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies account-action tokens with a process-wide secret.
type Codec struct {
	key []byte
	now func() time.Time
}

type Option func(*Codec)

// WithClock replaces time.Now for both signing and verification.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

func New(secret string, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("token: secret is empty")
	}

	c := &Codec{key: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Generate signs a token for purpose and userID that expires after expiration.
// newEmail is only meaningful for PurposeChangeEmail.
func (c *Codec) Generate(purpose Purpose, userID uint, newEmail string, expiration time.Duration) (string, error) {
	if expiration <= 0 {
		expiration = DefaultExpiration
	}

	now := c.now()
	claims := &Claims{
		Purpose:  purpose,
		UserID:   userID,
		NewEmail: newEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Verify decodes tokenString and checks that it was issued for purpose.
// Every failure is reported as ErrInvalidToken.
func (c *Codec) Verify(tokenString string, purpose Purpose) (*Claims, error) {
	if len(tokenString) == 0 {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Purpose != purpose || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
