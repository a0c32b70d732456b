// Package auth holds the credential plumbing: password hashing, session
// tokens, purpose-scoped link tokens and the middleware that turns a session
// cookie into an account id on the request context.
//
// SESSION FLOW:
//  1. POST /auth/login checks the password and issues a session JWT
//  2. The JWT goes into the HttpOnly "token" cookie
//  3. On every request the middleware validates the cookie and stores the
//     account id in the request context
//
// A session JWT is stateless: subject = account id, exp = issue time + TTL,
// signed HS256 with the server secret. No lookup is needed to validate it.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "classplanner"

// DefaultSessionTTL applies when no TTL is configured.
const DefaultSessionTTL = 7 * 24 * time.Hour

// TokenService issues and validates session tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService. The secret should be at least 32
// random bytes in production (openssl rand -hex 32). A zero ttl means
// DefaultSessionTTL.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is how long an issued session stays valid.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Generate signs a session token for accountID.
func (s *TokenService) Generate(accountID int64) (string, error) {
	return s.GenerateWithDuration(accountID, s.ttl)
}

// GenerateWithDuration signs a session token with a custom lifetime.
func (s *TokenService) GenerateWithDuration(accountID int64, d time.Duration) (string, error) {
	if accountID <= 0 {
		return "", fmt.Errorf("auth: cannot issue a session for account %d", accountID)
	}
	now := time.Now()

	c := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(accountID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d)),
		Issuer:    issuer,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate verifies a session token and returns its account id.
//
// Checks: HS256 signature (WithValidMethods blocks the "alg: none" trick),
// expiry present and in the future, issuer is ours, subject is a positive
// integer.
func (s *TokenService) Validate(tokenStr string) (int64, error) {
	var c jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenStr, &c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, fmt.Errorf("auth: token expired")
		}
		return 0, fmt.Errorf("auth: invalid token: %w", err)
	}

	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("auth: token has no valid subject")
	}
	return id, nil
}
