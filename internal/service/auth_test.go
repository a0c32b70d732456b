package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/classplanner/internal/apperror"
	"github.com/sakif/classplanner/internal/mail"
)

func appMessage(t *testing.T, err error) string {
	t.Helper()
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr), "not an AppError: %v", err)
	return appErr.Message
}

func appField(t *testing.T, err error) string {
	t.Helper()
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr), "not an AppError: %v", err)
	return appErr.Field
}

// ====================================================================
// Register / confirm / login
// ====================================================================

func TestRegister_ConfirmThenLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	account, err := f.auth.Register(ctx, RegisterInput{
		Email: "Ada@Example.com", Password: "password123", Confirm: "password123",
	})
	require.NoError(t, err)

	sent := f.mailer.last(t)
	assert.Equal(t, "ada@example.com", sent.Recipient)
	assert.Equal(t, mail.ConfirmSubject, sent.Subject)
	assert.Contains(t, sent.Body, "http://planner.test/auth/confirm/")

	_, err = f.auth.Login(ctx, "ada@example.com", "password123")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.Equal(t, msgUnverified, appMessage(t, err))

	confirmed, err := f.auth.ConfirmEmail(ctx, tokenFrom(t, sent.Body))
	require.NoError(t, err)
	assert.True(t, confirmed.Equal(account))

	session, err := f.auth.Login(ctx, "ADA@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, account.ID(), session.Account.ID())
	assert.NotEmpty(t, session.Token)

	who, err := f.auth.Identify(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, account.ID(), who.ID())
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name  string
		in    RegisterInput
		field string
	}{
		{"bad email", RegisterInput{Email: "not-an-email", Password: "password123", Confirm: "password123"}, "email"},
		{"short password", RegisterInput{Email: "a@example.com", Password: "short", Confirm: "short"}, "password"},
		{"mismatch", RegisterInput{Email: "a@example.com", Password: "password123", Confirm: "password124"}, "confirm"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.auth.Register(context.Background(), tc.in)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, tc.field, appField(t, err))
		})
	}
	assert.Empty(t, f.mailer.sent)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.verified(t, "ada@example.com")

	_, err := f.auth.Register(context.Background(), RegisterInput{
		Email: "ADA@example.com", Password: "password123", Confirm: "password123",
	})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestRegister_MailFailureKeepsAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mailer.err = errMailDown

	account, err := f.auth.Register(ctx, RegisterInput{
		Email: "ada@example.com", Password: "password123", Confirm: "password123",
	})
	assert.ErrorIs(t, err, errMailDown)
	require.NotNil(t, account)

	found, err := f.entities.AccountByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.False(t, found.IsAnonymous())
}

func TestLogin_BadCredentialsLookTheSame(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.verified(t, "ada@example.com")

	_, wrongPassword := f.auth.Login(ctx, "ada@example.com", "nope-nope")
	_, unknownEmail := f.auth.Login(ctx, "bob@example.com", "password123")

	for _, err := range []error{wrongPassword, unknownEmail} {
		assert.ErrorIs(t, err, apperror.ErrUnauthorized)
		assert.Equal(t, msgBadCredentials, appMessage(t, err))
	}
}

// ====================================================================
// Link tokens
// ====================================================================

func TestConfirmEmail_ExpiredLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.auth.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "password123", Confirm: "password123"})
	require.NoError(t, err)
	token := tokenFrom(t, f.mailer.last(t).Body)

	f.now = f.now.Add(25 * time.Hour)
	_, err = f.auth.ConfirmEmail(ctx, token)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)
}

func TestConfirmEmail_RejectsResetToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.verified(t, "ada@example.com")

	require.NoError(t, f.auth.ForgotPassword(ctx, "ada@example.com"))
	reset := tokenFrom(t, f.mailer.last(t).Body)

	_, err := f.auth.ConfirmEmail(ctx, reset)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)
}

func TestForgotPassword_UnknownEmailSendsNothing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.auth.ForgotPassword(context.Background(), "ghost@example.com"))
	assert.Empty(t, f.mailer.sent)
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.verified(t, "ada@example.com")

	require.NoError(t, f.auth.ForgotPassword(ctx, "ada@example.com"))
	sent := f.mailer.last(t)
	assert.Equal(t, mail.ResetSubject, sent.Subject)
	token := tokenFrom(t, sent.Body)

	err := f.auth.ResetPassword(ctx, token, ResetPasswordInput{Password: "new-password", Confirm: "different"})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	require.NoError(t, f.auth.ResetPassword(ctx, token, ResetPasswordInput{Password: "new-password", Confirm: "new-password"}))

	_, err = f.auth.Login(ctx, "ada@example.com", "password123")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	_, err = f.auth.Login(ctx, "ada@example.com", "new-password")
	assert.NoError(t, err)
}

// ====================================================================
// Logged-in account
// ====================================================================

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ada := f.verified(t, "ada@example.com")

	err := f.auth.ChangePassword(ctx, ada, ChangePasswordInput{Current: "wrong", Password: "new-password", Confirm: "new-password"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "current", appField(t, err))

	require.NoError(t, f.auth.ChangePassword(ctx, ada, ChangePasswordInput{
		Current: "password123", Password: "new-password", Confirm: "new-password",
	}))
	_, err = f.auth.Login(ctx, "ada@example.com", "new-password")
	assert.NoError(t, err)

	err = f.auth.ChangePassword(ctx, f.entities.Anonymous(), ChangePasswordInput{})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestIdentify_InvalidTokenIsAnonymous(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		who, err := f.auth.Identify(ctx, token)
		require.NoError(t, err)
		assert.True(t, who.IsAnonymous(), "token %q", token)
	}
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ada := f.verified(t, "ada@example.com")

	me, err := f.auth.Me(ctx, ada)
	require.NoError(t, err)
	assert.Equal(t, "ada", me.DisplayName)

	me, err = f.auth.UpdateProfile(ctx, ada, "  Ada Lovelace ")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", me.DisplayName)

	_, err = f.auth.UpdateProfile(ctx, ada, "   ")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}
