// Package jwtx signs and verifies the short-lived service tokens the
// surrounding application presents when calling this service. The token is a
// plain HS256 JWT whose subject is the user the call acts on behalf of.
package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultServiceTokenTTL bounds how long a minted service token stays valid.
// Calls are server-to-server and immediate, so the window is short.
const DefaultServiceTokenTTL = 2 * time.Minute

// ErrInvalidToken reports a token that failed signature, issuer, audience or
// expiry checks. Callers get no further detail.
var ErrInvalidToken = errors.New("jwtx: invalid service token")

// Claims are the verified contents of a service token.
type Claims struct {
	jwt.RegisteredClaims
}

// UserID returns the user the token acts on behalf of.
func (c Claims) UserID() string { return c.Subject }

// Signer mints service tokens. It lives here so the surrounding application
// can import one package for both halves of the handshake and so tests can
// mint tokens without duplicating claim layout.
type Signer struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

// Sign mints a token for userID valid from now.
func (s Signer) Sign(userID string, now time.Time) (string, error) {
	if len(s.Secret) == 0 {
		return "", errors.New("jwtx: signer secret is empty")
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultServiceTokenTTL
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.Issuer,
			Audience:  jwt.ClaimStrings{s.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.Secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: failed to sign service token: %w", err)
	}
	return signed, nil
}

// Verifier checks service tokens presented by callers.
type Verifier struct {
	Secret   []byte
	Issuer   string
	Audience string
}

// Verify parses and validates raw, returning its claims.
func (v Verifier) Verify(raw string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(t *jwt.Token) (any, error) { return v.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.Issuer),
		jwt.WithAudience(v.Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
