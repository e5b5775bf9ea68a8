package middleware

import (
	"context"
	"errors"
	"net/http"

	"rainbow-buyers/internal/model"
	"rainbow-buyers/internal/token"
)

type tokenVerifier interface {
	Verify(tokenString string, expected token.Type) (*token.Claims, error)
}

type contextKey string

const authClaimsContextKey contextKey = "auth_claims"

type AuthMiddleware struct {
	verifier tokenVerifier
	cookies  Cookies
}

func NewAuthMiddleware(verifier tokenVerifier, cookies Cookies) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, cookies: cookies}
}

// RequireAuth answers 401 and clears the access cookie when the access token is
// missing, expired or invalid.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := AccessToken(r)
		if raw == "" {
			m.cookies.Clear(w, AccessTokenCookie)
			writeEnvelope(w, http.StatusUnauthorized, "Unauthorized", nil)
			return
		}

		claims, err := m.verifier.Verify(raw, token.TypeAccess)
		if err != nil {
			m.cookies.Clear(w, AccessTokenCookie)
			message := "Invalid token"
			if errors.Is(err, token.ErrExpired) {
				message = "Token expired"
			}
			writeEnvelope(w, http.StatusUnauthorized, message, nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func (m *AuthMiddleware) RequireRoles(allowed ...model.Role) func(http.Handler) http.Handler {
	roleSet := make(map[model.Role]struct{}, len(allowed))
	for _, role := range allowed {
		roleSet[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeEnvelope(w, http.StatusUnauthorized, "Unauthorized", nil)
				return
			}

			if _, exists := roleSet[claims.Role]; !exists {
				writeEnvelope(w, http.StatusForbidden, "Insufficient permissions", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func WithClaims(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, authClaimsContextKey, claims)
}

func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(authClaimsContextKey).(*token.Claims)
	return claims, ok
}
