// Package auth verifies client identity tokens before a JoinRoom is
// honored.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

// Identity is a verified user, as asserted by the token issuer.
type Identity struct {
	UserID   string
	UserName string
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoIdentity   = errors.New("token carries no user identity")
)

// Verifier checks HMAC-signed JWTs. Token issuance lives elsewhere; this
// side only validates and extracts the (userId, userName) pair.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a token, returning the identity from its
// sub and name claims.
func (v *Verifier) Verify(token string) (*Identity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	userID, _ := claims["sub"].(string)
	if userID == "" {
		return nil, ErrNoIdentity
	}
	userName, _ := claims["name"].(string)
	if userName == "" {
		userName = userID
	}
	return &Identity{UserID: userID, UserName: userName}, nil
}
