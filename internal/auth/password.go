// Stored hashes are bcrypt's self-describing form, salt and cost included:
//
//	$2a$12$<22-char salt><31-char hash>

package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when none is configured.
// Aim for ~250ms per hash on production hardware.
const DefaultCost = 12

// ErrPasswordMismatch is returned by Verify when the password is wrong.
var ErrPasswordMismatch = errors.New("auth: invalid password")

// PasswordService hashes and verifies passwords with bcrypt.
//
// The cost is a field so tests can use bcrypt.MinCost (4) and run in
// milliseconds instead of a quarter second per hash.
type PasswordService struct {
	cost int
}

// NewPasswordService returns a PasswordService with the given cost. Zero
// means DefaultCost; anything outside bcrypt's range is clamped into it.
func NewPasswordService(cost int) *PasswordService {
	switch {
	case cost == 0:
		cost = DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &PasswordService{cost: cost}
}

// Cost returns the work factor in use.
func (p *PasswordService) Cost() int {
	return p.cost
}

// Hash returns the bcrypt hash of plaintext.
//
// bcrypt silently ignores everything past 72 bytes, so longer passwords are
// rejected instead of being quietly truncated.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		return "", fmt.Errorf("auth: password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil when plaintext matches hash and ErrPasswordMismatch
// when it doesn't. The comparison is constant-time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
