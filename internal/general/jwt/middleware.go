package jwt

import (
	"net/http"

	"shipease/internal/domain/user"
)

// AuthMiddlewareFunc admits requests carrying a valid bearer token for one of
// allowedRoles and stores the claims on the request context.
func AuthMiddlewareFunc(mgr *Manager, allowedRoles ...user.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticate(mgr, r)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="shipease"`)
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			if err := RoleAllowed(claims, allowedRoles...); err != nil {
				http.Error(w, err.Error(), http.StatusForbidden)
				return
			}
			next(w, r.WithContext(InjectClaims(r.Context(), claims)))
		}
	}
}

func authenticate(mgr *Manager, r *http.Request) (*Claims, error) {
	raw, err := FromAuthorization(r)
	if err != nil {
		return nil, err
	}
	_, claims, err := mgr.ParseAndValidate(raw)
	return claims, err
}

// RequireClaims returns the claims stored by AuthMiddlewareFunc, or nil.
func RequireClaims(r *http.Request) *Claims {
	c, _ := FromContext(r.Context())
	return c
}
