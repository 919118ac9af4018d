package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SessionCookie holds the session token for browser clients.
const SessionCookie = "session"

type contextKey string

const identityKey contextKey = "authIdentity"

// GetIdentity retrieves the authenticated user from context.
func GetIdentity(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	if value, ok := ctx.Value(identityKey).(Identity); ok && value.UserID != "" {
		return value, true
	}
	return Identity{}, false
}

// GetUserID retrieves the authenticated subject from context.
func GetUserID(ctx context.Context) (string, bool) {
	id, ok := GetIdentity(ctx)
	return id.UserID, ok
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FailureHandler decides the response when a protected route is requested
// without a valid token. It must abort the gin context.
type FailureHandler func(c *gin.Context, err error)

// AbortUnauthorized answers 401 with a JSON error body.
func AbortUnauthorized(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
}

// JWTMiddleware validates the bearer token or session cookie and injects the
// user identity. onFailure defaults to AbortUnauthorized.
func JWTMiddleware(issuer *TokenIssuer, onFailure FailureHandler) gin.HandlerFunc {
	if onFailure == nil {
		onFailure = AbortUnauthorized
	}

	return func(c *gin.Context) {
		tokenString, err := extractToken(c)
		if err != nil {
			onFailure(c, err)
			return
		}

		id, err := issuer.Verify(tokenString)
		if err != nil {
			onFailure(c, err)
			return
		}

		setIdentity(c, id)
		c.Next()
	}
}

// OptionalJWTMiddleware injects the identity when a valid token is present
// and lets every request through.
func OptionalJWTMiddleware(issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString, err := extractToken(c); err == nil {
			if id, err := issuer.Verify(tokenString); err == nil {
				setIdentity(c, id)
			}
		}
		c.Next()
	}
}

func setIdentity(c *gin.Context, id Identity) {
	c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
	c.Set(string(identityKey), id)
}

// extractToken prefers the Authorization header and falls back to the
// session cookie.
func extractToken(c *gin.Context) (string, error) {
	if header := c.Request.Header.Get("Authorization"); header != "" {
		return extractBearerToken(header)
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil && strings.TrimSpace(cookie) != "" {
		return strings.TrimSpace(cookie), nil
	}
	return "", errors.New("authorization required")
}

func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header required")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("token missing")
	}
	return token, nil
}
