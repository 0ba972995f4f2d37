package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/atlas-agent/atlas/internal/api"
)

type claimsKey struct{}

// RequireToken admits requests carrying a bearer token that m accepts and
// records its claims on the request context.
func RequireToken(m *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				api.WriteError(w, api.ErrMissingCredentials)
				return
			}
			claims, err := m.Validate(raw)
			if err != nil {
				api.WriteError(w, api.ErrRejectedToken)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

// ClientClaims returns the claims RequireToken accepted, or nil on an open API.
func ClientClaims(ctx context.Context) *AccessClaims {
	claims, _ := ctx.Value(claimsKey{}).(*AccessClaims)
	return claims
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
