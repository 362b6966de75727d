// Package token issues and verifies the signed session tokens that carry a
// request principal. Verification never distinguishes between malformed,
// expired, and wrongly signed input: all of them yield ok == false so the
// HTTP layer can answer with a single uniform 401.
package token

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"clipstream/pkg/domain"
)

const defaultTTL = 24 * time.Hour

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Codec signs and verifies HS256 session tokens.
type Codec struct {
	secret []byte
	ttl    time.Duration
}

// NewCodec builds a codec from a shared secret. A non-positive ttl falls
// back to 24 hours.
func NewCodec(secret string, ttl time.Duration) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Codec{secret: []byte(secret), ttl: ttl}, nil
}

// Issue signs a token for the principal.
func (c *Codec) Issue(p domain.Principal) (string, error) {
	now := time.Now().UTC()
	claims := sessionClaims{
		Email: p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// IssueExpiring signs a token with an explicit ttl. Used by tests and by
// logout to compute remaining revocation windows.
func (c *Codec) IssueExpiring(p domain.Principal, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := sessionClaims{
		Email: p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify parses and checks a token, returning the principal it carries.
// ok is false for malformed, expired, or wrongly signed tokens.
func (c *Codec) Verify(tokenString string) (domain.Principal, bool) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return c.secret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return domain.Principal{}, false
	}
	return domain.Principal{UserID: claims.Subject, Email: claims.Email}, true
}

// Remaining reports how long a token stays valid. Zero when the token is
// invalid or already expired.
func (c *Codec) Remaining(tokenString string) time.Duration {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return c.secret, nil
	})
	if err != nil || claims.ExpiresAt == nil {
		return 0
	}
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining < 0 {
		return 0
	}
	return remaining
}
