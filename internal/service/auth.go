package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/classplanner/internal/apperror"
	"github.com/sakif/classplanner/internal/auth"
	"github.com/sakif/classplanner/internal/mail"
	"github.com/sakif/classplanner/internal/model"
)

const (
	msgBadCredentials = "Incorrect email or password."
	msgUnverified     = "Your email hasn't been verified yet."
)

// AuthService owns the account lifecycle: registration, email confirmation,
// login, and password changes.
//
//	AuthHandler (HTTP) → AuthService → model.Entities (store)
//	                               ↘ TokenService / LinkTokens (JWT)
//	                               ↘ mail.Sender
type AuthService struct {
	entities *model.Entities
	sessions *auth.TokenService
	links    *auth.LinkTokens
	mailer   mail.Sender
	baseURL  string
	logger   *slog.Logger
}

func NewAuthService(
	entities *model.Entities,
	sessions *auth.TokenService,
	links *auth.LinkTokens,
	mailer mail.Sender,
	baseURL string,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		entities: entities,
		sessions: sessions,
		links:    links,
		mailer:   mailer,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger,
	}
}

type RegisterInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Confirm  string `json:"confirm" validate:"required,eqfield=Password"`
}

type ResetPasswordInput struct {
	Password string `json:"password" validate:"required,min=8,max=72"`
	Confirm  string `json:"confirm" validate:"required,eqfield=Password"`
}

type ChangePasswordInput struct {
	Current  string `json:"current" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Confirm  string `json:"confirm" validate:"required,eqfield=Password"`
}

// Session is a successful login: the account and its session JWT.
type Session struct {
	Account *model.Account
	Token   string
}

// Register creates an unverified account and mails it a confirmation link.
// The account stays in place if the mail can't be sent.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.Account, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	account, err := s.entities.CreateAccount(ctx, in.Email, in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: registering: %w", err)
	}
	s.logger.Info("account registered", slog.Int64("accountID", account.ID()))

	email, err := account.Email(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.sendLink(ctx, email, auth.PurposeEmailConfirm); err != nil {
		return account, err
	}
	return account, nil
}

// ConfirmEmail redeems an email-confirm token and marks the account verified.
func (s *AuthService) ConfirmEmail(ctx context.Context, token string) (*model.Account, error) {
	email, err := s.links.Redeem(token, auth.PurposeEmailConfirm, auth.LinkMaxAge)
	if err != nil {
		return nil, err
	}
	account, err := s.entities.AccountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if account.IsAnonymous() {
		return nil, apperror.NotFound("account", email)
	}
	if err := account.SetVerified(ctx, true); err != nil {
		return nil, fmt.Errorf("service/auth: verifying account %d: %w", account.ID(), err)
	}
	s.logger.Info("email confirmed", slog.Int64("accountID", account.ID()))
	return account, nil
}

// Login checks credentials and issues a session token. Unknown email and
// wrong password fail the same way.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	account, err := s.entities.AccountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	ok, err := account.CheckPassword(ctx, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.Unauthorized(msgBadCredentials)
	}

	verified, err := account.Verified(ctx)
	if err != nil {
		return nil, err
	}
	if !verified {
		return nil, apperror.Unauthorized(msgUnverified)
	}

	token, err := s.sessions.Generate(account.ID())
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing session for %d: %w", account.ID(), err)
	}
	s.logger.Info("account logged in", slog.Int64("accountID", account.ID()))
	return &Session{Account: account, Token: token}, nil
}

// ForgotPassword mails a reset link when the address belongs to an account.
// The caller gets the same answer either way.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	account, err := s.entities.AccountByEmail(ctx, email)
	if err != nil {
		return err
	}
	if account.IsAnonymous() {
		s.logger.Debug("password reset for unknown email")
		return nil
	}
	addr, err := account.Email(ctx)
	if err != nil {
		return err
	}
	return s.sendLink(ctx, addr, auth.PurposePasswordReset)
}

// ResetPassword redeems a password-reset token and sets the new password.
func (s *AuthService) ResetPassword(ctx context.Context, token string, in ResetPasswordInput) error {
	email, err := s.links.Redeem(token, auth.PurposePasswordReset, auth.LinkMaxAge)
	if err != nil {
		return err
	}
	if err := validateInput(in); err != nil {
		return err
	}
	account, err := s.entities.AccountByEmail(ctx, email)
	if err != nil {
		return err
	}
	if account.IsAnonymous() {
		return apperror.NotFound("account", email)
	}
	if err := account.SetPassword(ctx, in.Password); err != nil {
		return fmt.Errorf("service/auth: resetting password for %d: %w", account.ID(), err)
	}
	s.logger.Info("password reset", slog.Int64("accountID", account.ID()))
	return nil
}

// ChangePassword sets a new password for a logged-in account that proves it
// knows the current one.
func (s *AuthService) ChangePassword(ctx context.Context, actor *model.Account, in ChangePasswordInput) error {
	if actor.IsAnonymous() {
		return apperror.Unauthorized("authentication required")
	}
	if err := validateInput(in); err != nil {
		return err
	}
	ok, err := actor.CheckPassword(ctx, in.Current)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.ValidationFailed("current", "current password is incorrect")
	}
	if err := actor.SetPassword(ctx, in.Password); err != nil {
		return fmt.Errorf("service/auth: changing password for %d: %w", actor.ID(), err)
	}
	return nil
}

// Identify turns a session token into the account it names. Any invalid
// token, or one for an account that no longer exists, is anonymous.
func (s *AuthService) Identify(ctx context.Context, token string) (*model.Account, error) {
	if token == "" {
		return s.entities.Anonymous(), nil
	}
	id, err := s.sessions.Validate(token)
	if err != nil {
		return s.entities.Anonymous(), nil
	}
	return s.Account(ctx, id)
}

// Account resolves an id taken from a validated session.
func (s *AuthService) Account(ctx context.Context, id int64) (*model.Account, error) {
	account := s.entities.Account(id)
	exists, err := account.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return s.entities.Anonymous(), nil
	}
	return account, nil
}

// Me returns the logged-in account's snapshot.
func (s *AuthService) Me(ctx context.Context, actor *model.Account) (*model.AccountView, error) {
	if actor.IsAnonymous() {
		return nil, apperror.Unauthorized("authentication required")
	}
	return actor.View(ctx)
}

// UpdateProfile changes the display name.
func (s *AuthService) UpdateProfile(ctx context.Context, actor *model.Account, displayName string) (*model.AccountView, error) {
	if actor.IsAnonymous() {
		return nil, apperror.Unauthorized("authentication required")
	}
	if err := actor.SetDisplayName(ctx, displayName); err != nil {
		return nil, err
	}
	return actor.View(ctx)
}

func (s *AuthService) sendLink(ctx context.Context, email string, p auth.Purpose) error {
	token, err := s.links.Issue(email, p)
	if err != nil {
		return err
	}

	var subject, body string
	switch p {
	case auth.PurposeEmailConfirm:
		subject = mail.ConfirmSubject
		body, err = mail.ConfirmBody(s.baseURL + "/auth/confirm/" + token)
	case auth.PurposePasswordReset:
		subject = mail.ResetSubject
		body, err = mail.ResetBody(s.baseURL + "/auth/reset/" + token)
	default:
		return fmt.Errorf("service/auth: no mail for purpose %q", p)
	}
	if err != nil {
		return fmt.Errorf("service/auth: rendering %s mail: %w", p, err)
	}

	if err := s.mailer.Send(ctx, subject, email, body); err != nil {
		s.logger.Error("sending mail failed",
			slog.String("purpose", string(p)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("service/auth: sending %s mail: %w", p, err)
	}
	return nil
}
