package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/resto-billing/internal/common"
)

var errNoToken = errors.New("auth: token missing")

// Middleware guards administrative routes.
type Middleware struct {
	Verifier *Verifier
}

// RequireAdmin rejects requests without a valid admin bearer token and stores
// the token subject on the request context.
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Verifier == nil {
			common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "authentication not configured", nil)
			return
		}
		subject, err := m.Verifier.ParseAdmin(bearerToken(r))
		if err != nil {
			if common.WriteAppError(w, err) {
				return
			}
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithSubject(r.Context(), subject)))
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
