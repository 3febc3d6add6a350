package jwt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"shipease/internal/domain/user"
)

var (
	ErrBadAuthMsg      = errors.New("invalid auth message")
	ErrBadTokenWrap    = errors.New("token must be 'Bearer <token>'")
	ErrSubjectMismatch = errors.New("token subject does not match the connection")
)

// AuthFrame is the first frame a driver or rider socket sends.
type AuthFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// ValidateWSAuth checks a socket's auth frame. A non-blank subject must equal
// the token's subject.
func ValidateWSAuth(frame []byte, mgr *Manager, subject string, allowedRoles ...user.Role) (*Claims, error) {
	var msg AuthFrame
	if err := json.Unmarshal(frame, &msg); err != nil || !strings.EqualFold(strings.TrimSpace(msg.Type), "auth") {
		return nil, ErrBadAuthMsg
	}

	scheme, raw, ok := strings.Cut(strings.TrimSpace(msg.Token), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return nil, ErrBadTokenWrap
	}

	_, claims, err := mgr.ParseAndValidate(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if err := RoleAllowed(claims, allowedRoles...); err != nil {
		return nil, err
	}
	if subject != "" && subject != claims.Subject {
		return nil, fmt.Errorf("%w: %s", ErrSubjectMismatch, subject)
	}
	return claims, nil
}
