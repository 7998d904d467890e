// Package authz derives request-scoped authorization contexts from verified
// users or signed-token claims. It never rejects a request by itself;
// deciding authenticated-vs-anonymous access belongs to the caller.
package authz

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"auth-service/internal/domain"
)

const capabilityPrefix = "ROLE_"

// ErrInvalidToken is returned when a bearer token cannot be verified.
var ErrInvalidToken = errors.New("invalid token")

// Context is the ephemeral capability set of a verified identity. It is
// built once per request and owned by the caller; nothing here persists.
type Context struct {
	UserID       string
	Username     string
	Email        string
	Capabilities []string
}

// TokenClaims is the claim set expected inside a signed access token.
type TokenClaims struct {
	PreferredUsername string   `json:"preferred_username"`
	Email             string   `json:"email"`
	Roles             []string `json:"roles"`
	jwt.RegisteredClaims
}

// Capability normalizes a role name to its capability label, e.g.
// "admin" -> "ROLE_ADMIN".
func Capability(role string) string {
	return capabilityPrefix + strings.ToUpper(strings.TrimSpace(role))
}

// FromUser builds a context from a locally verified user.
func FromUser(user *domain.User) *Context {
	c := &Context{
		UserID:   strconv.FormatInt(user.ID, 10),
		Username: user.Username,
		Email:    user.Email,
	}
	for _, role := range user.Roles {
		c.Capabilities = append(c.Capabilities, Capability(role))
	}
	return c
}

// FromClaims builds a context from a signed token's claim set. An absent
// roles claim yields an empty capability set; a roleless principal is still
// a valid one.
func FromClaims(claims *TokenClaims) *Context {
	c := &Context{
		UserID:   claims.Subject,
		Username: claims.PreferredUsername,
		Email:    claims.Email,
	}
	for _, role := range claims.Roles {
		c.Capabilities = append(c.Capabilities, Capability(role))
	}
	return c
}

// ParseToken verifies an HMAC-signed token and derives a context from its
// claims. Token issuance happens elsewhere; this side only consumes.
func ParseToken(raw string, secret []byte) (*Context, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return FromClaims(claims), nil
}

// HasCapability reports whether the context grants the given role.
func (c *Context) HasCapability(role string) bool {
	want := Capability(role)
	for _, label := range c.Capabilities {
		if label == want {
			return true
		}
	}
	return false
}
