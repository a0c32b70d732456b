package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/classplanner/internal/apperror"
)

// Purpose scopes a link token to one flow. A token issued for one purpose
// never redeems for another.
type Purpose string

const (
	PurposeEmailConfirm  Purpose = "email-confirm"
	PurposePasswordReset Purpose = "password-reset"
)

// LinkMaxAge is how long emailed links stay valid.
const LinkMaxAge = 24 * time.Hour

// LinkTokens issues and redeems signed tokens for emailed links
// (email confirmation, password reset).
//
// Each purpose signs with its own key, HMAC-SHA256(secret, purpose), and the
// purpose is also the token audience. Age is checked against the issued-at
// claim at redeem time, so the caller picks the max age, not the issuer.
type LinkTokens struct {
	secret []byte
	now    func() time.Time
}

func NewLinkTokens(secret string) (*LinkTokens, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: link secret must be at least 16 characters")
	}
	return &LinkTokens{secret: []byte(secret), now: time.Now}, nil
}

// WithClock swaps the clock. Tests only.
func (l *LinkTokens) WithClock(now func() time.Time) *LinkTokens {
	l.now = now
	return l
}

func (l *LinkTokens) key(p Purpose) []byte {
	mac := hmac.New(sha256.New, l.secret)
	mac.Write([]byte(p))
	return mac.Sum(nil)
}

// Issue signs payload (an email address, in practice) for purpose.
func (l *LinkTokens) Issue(payload string, p Purpose) (string, error) {
	c := jwt.RegisteredClaims{
		Subject:  payload,
		Audience: jwt.ClaimStrings{string(p)},
		IssuedAt: jwt.NewNumericDate(l.now()),
		Issuer:   issuer,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(l.key(p))
	if err != nil {
		return "", fmt.Errorf("auth: signing %s token: %w", p, err)
	}
	return signed, nil
}

// Redeem verifies token for purpose and returns its payload. Anything wrong
// (bad signature, other purpose, older than maxAge) is apperror.InvalidToken.
func (l *LinkTokens) Redeem(token string, p Purpose, maxAge time.Duration) (string, error) {
	var c jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &c,
		func(*jwt.Token) (any, error) { return l.key(p), nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(string(p)),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(l.now),
	)
	if err != nil || c.IssuedAt == nil || c.Subject == "" {
		return "", apperror.InvalidToken(string(p))
	}
	if l.now().Sub(c.IssuedAt.Time) > maxAge {
		return "", apperror.InvalidToken(string(p))
	}
	return c.Subject, nil
}
