// Package identity verifies bearer tokens issued by the identity provider.
package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Maruf346/PingMe/internal/model"
)

// ErrAuthFailed indicates a rejected handshake token. The connection is
// closed without registering.
var ErrAuthFailed = errors.New("authentication failed")

// Verifier resolves a bearer token to the authenticated user.
type Verifier interface {
	VerifyToken(token string) (model.UserID, error)
}

// JWTVerifier verifies HS256 tokens signed with a key shared with the
// identity provider.
type JWTVerifier struct {
	signKey []byte
}

// NewJWTVerifier creates a verifier for the given signing key.
func NewJWTVerifier(signKey []byte) *JWTVerifier {
	return &JWTVerifier{signKey: signKey}
}

// VerifyToken parses and validates the token and returns the subject user ID.
func (v *JWTVerifier) VerifyToken(token string) (model.UserID, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrAuthFailed
		}
		return v.signKey, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrAuthFailed
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrAuthFailed
	}
	return model.UserID(claims.Subject), nil
}

// Issue creates a signed HS256 token for the given subject. Used by the
// smoke-test client; production tokens come from the identity provider.
func Issue(signKey []byte, userID model.UserID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   string(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signKey)
}
