package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/dukerupert/chorepoints/internal/auth"
)

// SessionCookieName is the cookie carrying the session token for browser
// clients. API clients send "Authorization: Bearer <token>" instead.
const SessionCookieName = "chorepoints_session"

// SessionResolver turns an opaque session token into a caller.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (auth.Caller, error)
}

// RequireAuth resolves the session token and stores the caller in the
// request context. Requests without a valid session get 401.
func RequireAuth(sessions SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r)
			if token == "" {
				unauthorized(w)
				return
			}

			caller, err := sessions.Resolve(r.Context(), token)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := auth.WithCaller(r.Context(), caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionToken returns the bearer token, or the session cookie when no
// Authorization header is present.
func SessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="chorepoints"`)
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"unauthenticated","message":"authentication required"}`))
}
