package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/z-chat/backend/pkg/utils"
)

type contextKey string

const principalKey contextKey = "principal_id"

// SessionValidator checks a session token and returns its principal.
type SessionValidator interface {
	Validate(token string) (int64, bool)
}

// RequireSession rejects requests without a live session cookie with 401.
// Validation extends the session, so every authenticated request keeps it
// alive.
func RequireSession(sessions SessionValidator, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				utils.RespondUnauthorized(w)
				return
			}

			principalID, ok := sessions.Validate(cookie.Value)
			if !ok {
				zerolog.Ctx(r.Context()).Debug().Msg("session rejected")
				utils.RespondUnauthorized(w)
				return
			}

			ctx := WithPrincipal(r.Context(), principalID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithPrincipal stores the authenticated principal id in ctx.
func WithPrincipal(ctx context.Context, principalID int64) context.Context {
	return context.WithValue(ctx, principalKey, principalID)
}

// PrincipalID returns the principal stored by RequireSession.
func PrincipalID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(principalKey).(int64)
	return id, ok
}
