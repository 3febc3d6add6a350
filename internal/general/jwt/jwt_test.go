package jwt

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shipease/internal/domain/user"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	mgr := NewManager("test-secret", time.Hour)

	token, claims, err := mgr.IssueUserToken("driver-7", user.RoleDriver)
	require.NoError(t, err)
	assert.Equal(t, "driver-7", claims.Subject)

	_, parsed, err := mgr.ParseAndValidate(token)
	require.NoError(t, err)
	assert.Equal(t, user.RoleDriver, parsed.Role)
	assert.NoError(t, RoleAllowed(parsed, user.RoleDriver, user.RoleAdmin))
	assert.ErrorIs(t, RoleAllowed(parsed, user.RoleRider), ErrRoleForbidden)

	_, _, err = NewManager("other-secret", time.Hour).ParseAndValidate(token)
	assert.Error(t, err)

	_, _, err = mgr.IssueUserToken("", user.RoleRider)
	assert.ErrorIs(t, err, ErrEmptySubject)
	_, _, err = mgr.IssueUserToken("x", user.Role("PILOT"))
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	mgr := NewManager("test-secret", -time.Minute)
	token, _, err := mgr.IssueUserToken("rider-1", user.RoleRider)
	require.NoError(t, err)

	_, _, err = mgr.ParseAndValidate(token)
	assert.Error(t, err)
}

func TestClaimsValidateRejectsForgedRole(t *testing.T) {
	mgr := NewManager("test-secret", time.Hour)
	sign := func(c *Claims) string {
		tok, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, c).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		return tok
	}

	_, _, err := mgr.ParseAndValidate(sign(NewUserClaims("x", user.Role("PILOT"), time.Hour)))
	assert.ErrorIs(t, err, ErrRoleForbidden)

	_, _, err = mgr.ParseAndValidate(sign(NewUserClaims(" ", user.RoleRider, time.Hour)))
	assert.ErrorIs(t, err, ErrEmptySubject)
}

func TestFromAuthorization(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	_, err := FromAuthorization(r)
	assert.ErrorIs(t, err, ErrNoAuthHeader)

	r.Header.Set("Authorization", "Basic abc")
	_, err = FromAuthorization(r)
	assert.ErrorIs(t, err, ErrBadAuthScheme)

	r.Header.Set("Authorization", "Bearer   ")
	_, err = FromAuthorization(r)
	assert.ErrorIs(t, err, ErrEmptyToken)

	r.Header.Set("Authorization", "Bearer abc.def")
	tok, err := FromAuthorization(r)
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)

	q := httptest.NewRequest(http.MethodGet, "/ws?Authorization=Bearer%20xyz", nil)
	tok, err = FromAuthorization(q)
	require.NoError(t, err)
	assert.Equal(t, "xyz", tok)
}

func TestAuthMiddleware(t *testing.T) {
	mgr := NewManager("test-secret", time.Hour)
	riderToken, _, err := mgr.IssueUserToken("rider-1", user.RoleRider)
	require.NoError(t, err)
	driverToken, _, err := mgr.IssueUserToken("driver-1", user.RoleDriver)
	require.NoError(t, err)

	var seen *Claims
	h := AuthMiddlewareFunc(mgr, user.RoleRider)(func(w http.ResponseWriter, r *http.Request) {
		seen = RequireClaims(r)
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + driverToken, http.StatusForbidden},
		{"ok", "Bearer " + riderToken, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/bookings/bk-1/match", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
			}
		})
	}
	require.NotNil(t, seen)
	assert.Equal(t, "rider-1", seen.Subject)
}

func TestValidateWSAuth(t *testing.T) {
	mgr := NewManager("test-secret", time.Hour)
	token, _, err := mgr.IssueUserToken("driver-1", user.RoleDriver)
	require.NoError(t, err)
	frame := []byte(`{"type":"auth","token":"Bearer ` + token + `"}`)

	claims, err := ValidateWSAuth(frame, mgr, "driver-1", user.RoleDriver)
	require.NoError(t, err)
	assert.Equal(t, "driver-1", claims.Subject)

	claims, err = ValidateWSAuth([]byte(`{"type":"AUTH","token":"bearer `+token+`"}`), mgr, "", user.RoleDriver)
	require.NoError(t, err)
	assert.Equal(t, user.RoleDriver, claims.Role)

	_, err = ValidateWSAuth([]byte(`{"type":"hello"}`), mgr, "", user.RoleDriver)
	assert.ErrorIs(t, err, ErrBadAuthMsg)
	_, err = ValidateWSAuth([]byte(`not json`), mgr, "", user.RoleDriver)
	assert.ErrorIs(t, err, ErrBadAuthMsg)

	_, err = ValidateWSAuth([]byte(`{"type":"auth","token":"`+token+`"}`), mgr, "", user.RoleDriver)
	assert.ErrorIs(t, err, ErrBadTokenWrap)

	_, err = ValidateWSAuth(frame, mgr, "driver-1", user.RoleRider)
	assert.ErrorIs(t, err, ErrRoleForbidden)

	_, err = ValidateWSAuth(frame, mgr, "driver-2", user.RoleDriver)
	assert.ErrorIs(t, err, ErrSubjectMismatch)
}
