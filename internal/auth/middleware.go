package auth

import (
	"context"
	"net/http"
)

// contextKey is unexported so no other package can read or shadow our
// context values.
type contextKey string

const accountIDKey contextKey = "accountID"

// CookieName is the session cookie.
const CookieName = "token"

// RequireAuth rejects requests without a valid session cookie with 401 and
// stores the account id in the context for the rest.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := extractAccountID(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccountID(r.Context(), id)))
		})
	}
}

// OptionalAuth records the account id when a valid session is present and
// lets anonymous requests through untouched.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, err := extractAccountID(r, tokens); err == nil {
				r = r.WithContext(WithAccountID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithAccountID returns ctx carrying the acting account id.
func WithAccountID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, accountIDKey, id)
}

// AccountIDFromContext returns the acting account id, or (0, false) for an
// anonymous request.
func AccountIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(accountIDKey).(int64)
	return id, ok && id > 0
}

func extractAccountID(r *http.Request, tokens *TokenService) (int64, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return 0, err
	}
	return tokens.Validate(cookie.Value)
}
