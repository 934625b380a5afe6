// Package auth verifies the bearer tokens the main application issues and
// resolves them to user identities for both the WebSocket handshake and the
// HTTP API. Tokens are HS256 JWTs sharing the application's signing secret.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every verification failure: missing, malformed,
// expired, or wrongly signed credentials.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the JWT payload shared with the main application.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// Verifier issues and verifies HS256 tokens. Issue exists for tests and
// tooling; production tokens come from the main application.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier with the given shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Issue mints a token for the given user, valid for the given duration.
func (v *Verifier) Issue(userID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token string, returning the user ID.
func (v *Verifier) Verify(tokenString string) (int64, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID <= 0 {
		return 0, fmt.Errorf("%w: missing user_id claim", ErrInvalidToken)
	}
	return claims.UserID, nil
}

// FromRequest extracts the bearer token from an HTTP request: the
// Authorization header first, then the token query parameter (browsers
// cannot set headers on WebSocket upgrades).
func FromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimPrefix(h, "Bearer ")
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// Authenticate resolves a request to a user ID or fails with ErrInvalidToken.
func (v *Verifier) Authenticate(r *http.Request) (int64, error) {
	tokenString := FromRequest(r)
	if tokenString == "" {
		return 0, fmt.Errorf("%w: no credentials presented", ErrInvalidToken)
	}
	return v.Verify(tokenString)
}
