package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Purpose string

const (
	PurposeAccess        Purpose = "access"
	PurposeRefresh       Purpose = "refresh"
	PurposeEmailConfirm  Purpose = "email_confirm"
	PurposePasswordReset Purpose = "password_reset"
)

var (
	ErrTokenInvalid      = errors.New("token is invalid")
	ErrTokenExpired      = errors.New("token has expired")
	ErrTokenWrongPurpose = errors.New("token has wrong purpose")
)

type TokenClaims struct {
	Purpose Purpose `json:"purpose"`
	jwt.RegisteredClaims
}

// ExpiresAtTime returns the expiry of the token, or the zero time when the claim is absent.
func (c *TokenClaims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

type TokenCodecOption func(*TokenCodec)

// WithClock overrides the time source used for issuing and validating tokens.
func WithClock(now func() time.Time) TokenCodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// TokenCodec signs and verifies purpose-tagged HS256 tokens. The secret lives in a
// memguard enclave and is only decrypted for the duration of a sign or verify call.
type TokenCodec struct {
	secret *memguard.Enclave
	now    func() time.Time
}

func NewTokenCodec(secret string, opts ...TokenCodecOption) (*TokenCodec, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}

	c := &TokenCodec{
		secret: memguard.NewEnclave([]byte(secret)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *TokenCodec) Issue(subject string, purpose Purpose, ttl time.Duration) (string, error) {
	now := c.now()
	claims := &TokenClaims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	key, err := c.secret.Open()
	if err != nil {
		return "", fmt.Errorf("open token secret: %w", err)
	}
	defer key.Destroy()

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key.Bytes())
}

func (c *TokenCodec) Verify(tokenString string, expected Purpose) (*TokenClaims, error) {
	key, err := c.secret.Open()
	if err != nil {
		return nil, fmt.Errorf("open token secret: %w", err)
	}
	defer key.Destroy()

	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key.Bytes(), nil
	}, jwt.WithTimeFunc(c.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	if claims.Purpose != expected {
		return nil, ErrTokenWrongPurpose
	}

	return claims, nil
}
