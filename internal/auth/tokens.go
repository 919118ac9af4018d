package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated user carried by a session token.
type Identity struct {
	UserID   string
	Username string
	Email    string
}

// Claims is the JWT payload of a session token.
type Claims struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret   []byte
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenIssuer builds an issuer. An empty audience disables the audience
// claim and its check.
func NewTokenIssuer(secret, audience string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:   []byte(strings.TrimSpace(secret)),
		audience: strings.TrimSpace(audience),
		ttl:      ttl,
		now:      time.Now,
	}
}

// TTL is the lifetime of issued tokens.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token for id and returns it with its expiry.
func (i *TokenIssuer) Issue(id Identity) (string, time.Time, error) {
	if len(i.secret) == 0 {
		return "", time.Time{}, errors.New("missing JWT secret")
	}
	if id.UserID == "" {
		return "", time.Time{}, errors.New("missing subject")
	}

	now := i.now()
	expires := now.Add(i.ttl)
	claims := Claims{
		Username: id.Username,
		Email:    id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	if i.audience != "" {
		claims.Audience = jwt.ClaimStrings{i.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses tokenString and returns the identity it carries.
func (i *TokenIssuer) Verify(tokenString string) (Identity, error) {
	if len(i.secret) == 0 {
		return Identity{}, errors.New("missing JWT secret")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil || !token.Valid {
		return Identity{}, errors.New("invalid token")
	}

	if i.audience != "" && !containsAudience(claims.Audience, i.audience) {
		return Identity{}, errors.New("invalid audience")
	}

	if claims.Subject == "" {
		return Identity{}, errors.New("missing subject")
	}

	return Identity{UserID: claims.Subject, Username: claims.Username, Email: claims.Email}, nil
}

func containsAudience(claims jwt.ClaimStrings, expected string) bool {
	for _, aud := range claims {
		if aud == expected {
			return true
		}
	}
	return false
}
