package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/classplanner/internal/auth"
	"github.com/sakif/classplanner/internal/service"
)

// AuthHandler serves registration, login, and the account endpoints.
//
// The session is a JWT in an HttpOnly cookie, so scripts in the page can't
// read it. SameSite=Lax keeps it off cross-site POSTs.
type AuthHandler struct {
	auth         *service.AuthService
	sessionTTL   time.Duration
	secureCookie bool
	logger       *slog.Logger
}

func NewAuthHandler(svc *service.AuthService, sessionTTL time.Duration, secureCookie bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, sessionTTL: sessionTTL, secureCookie: secureCookie, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type profileRequest struct {
	DisplayName string `json:"displayName"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// HandleRegister creates an account and mails a confirmation link.
//
// HTTP: POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	account, err := h.auth.Register(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	view, err := account.View(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// HandleConfirm redeems the emailed confirmation link.
//
// HTTP: GET /auth/confirm/{token}
func (h *AuthHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	account, err := h.auth.ConfirmEmail(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	view, err := account.View(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleLogin checks credentials and sets the session cookie.
//
// HTTP: POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	session, err := h.auth.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.setSession(w, session.Token, int(h.sessionTTL.Seconds()))
	view, err := session.Account.View(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleLogout clears the session cookie. JWTs are stateless, so a copied
// token stays valid until it expires. Anonymous requests get the same answer.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if id, ok := auth.AccountIDFromContext(r.Context()); ok {
		h.logger.Info("session ended", slog.Int64("accountID", id))
	}
	h.setSession(w, "", -1)
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

// HandleForgot mails a reset link. The answer is the same whether or not
// the address is registered.
//
// HTTP: POST /auth/forgot
func (h *AuthHandler) HandleForgot(w http.ResponseWriter, r *http.Request) {
	var in emailRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.auth.ForgotPassword(r.Context(), in.Email); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, messageResponse{
		Message: "If that address is registered, a reset link is on its way.",
	})
}

// HandleReset sets a new password from an emailed reset link.
//
// HTTP: POST /auth/reset/{token}
func (h *AuthHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	var in service.ResetPasswordInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.auth.ResetPassword(r.Context(), chi.URLParam(r, "token"), in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "password updated"})
}

// HandleMe returns the logged-in account.
//
// HTTP: GET /api/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	me, err := actor(r, h.auth)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	view, err := h.auth.Me(r.Context(), me)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleUpdateMe changes the display name.
//
// HTTP: PUT /api/me
func (h *AuthHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var in profileRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	me, err := actor(r, h.auth)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	view, err := h.auth.UpdateProfile(r.Context(), me, in.DisplayName)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleChangePassword
//
// HTTP: POST /api/account/password
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var in service.ChangePasswordInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	me, err := actor(r, h.auth)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.auth.ChangePassword(r.Context(), me, in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "password updated"})
}

func (h *AuthHandler) setSession(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
