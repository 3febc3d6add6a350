package jwt

import (
	"fmt"
	"strings"
	"time"

	"shipease/internal/domain/user"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims carry the caller's role next to the registered claims. The subject
// is the rider, driver or admin id.
type Claims struct {
	Role user.Role `json:"role"`
	jwtlib.RegisteredClaims
}

var (
	_ jwtlib.Claims          = (*Claims)(nil)
	_ jwtlib.ClaimsValidator = (*Claims)(nil)
)

func NewUserClaims(userID string, role user.Role, ttl time.Duration) *Claims {
	now := time.Now().UTC()
	return &Claims{
		Role: role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
}

// Validate runs after the registered claims are checked during parsing.
func (c *Claims) Validate() error {
	if strings.TrimSpace(c.Subject) == "" {
		return ErrEmptySubject
	}
	if !c.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrRoleForbidden, c.Role)
	}
	return nil
}
