package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	apiContext "memberpay/internal/api/context"
	apierrors "memberpay/internal/pkg/errors"
	"memberpay/internal/platform/auth"
)

// JobsAuth guards the internal job endpoints with a bearer token carrying a
// required scope.
type JobsAuth struct {
	tokenSvc *auth.TokenService
	scope    string
}

func NewJobsAuth(tokenSvc *auth.TokenService, scope string) *JobsAuth {
	return &JobsAuth{tokenSvc: tokenSvc, scope: scope}
}

func (m *JobsAuth) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			apierrors.WriteError(w, http.StatusUnauthorized, apierrors.ErrCodeUnauthorized, "Missing authorization header", nil)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			apierrors.WriteError(w, http.StatusUnauthorized, apierrors.ErrCodeUnauthorized, "Invalid authorization header format", nil)
			return
		}

		claims, err := m.tokenSvc.Authorize(parts[1], m.scope)
		if err != nil {
			msg := "Invalid or expired token"
			if errors.Is(err, auth.ErrMissingScope) {
				msg = "Token lacks the required scope"
			}
			apierrors.WriteError(w, http.StatusUnauthorized, apierrors.ErrCodeUnauthorized, msg, nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Claims, claims)
		next(w, r.WithContext(ctx))
	}
}

// ClaimsFrom returns the claims JobsAuth stored on the request, or nil.
func ClaimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(apiContext.Claims).(*auth.Claims)
	return claims
}
