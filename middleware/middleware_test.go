package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const testSecret = "test-secret"

func signed(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}
	return token
}

func staffOnly() http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, _ := GetStaffNameFromContext(r.Context())
		w.Header().Set("X-Staff", name)
		w.WriteHeader(http.StatusNoContent)
	})
	return Authenticate(testSecret)(RequireStaff(ok))
}

func TestAuthenticateAcceptsStaffToken(t *testing.T) {
	token := signed(t, jwt.MapClaims{
		ClaimRole: RoleStaff,
		ClaimName: "lea",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}, testSecret)

	req := httptest.NewRequest(http.MethodPost, "/tournaments/1/advance", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	staffOnly().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("X-Staff") != "lea" {
		t.Errorf("staff name not propagated: %q", rec.Header().Get("X-Staff"))
	}
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	expired := signed(t, jwt.MapClaims{ClaimRole: RoleStaff, "exp": time.Now().Add(-time.Hour).Unix()}, testSecret)
	foreign := signed(t, jwt.MapClaims{ClaimRole: RoleStaff}, "other-secret")

	for name, header := range map[string]string{
		"missing": "",
		"expired": "Bearer " + expired,
		"foreign": "Bearer " + foreign,
		"garbage": "Bearer not-a-token",
	} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		staffOnly().ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", name, rec.Code)
		}
	}
}

func TestRequireStaffRejectsOtherRoles(t *testing.T) {
	token := signed(t, jwt.MapClaims{ClaimRole: "viewer"}, testSecret)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	staffOnly().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestRateLimitPerIP(t *testing.T) {
	h := RateLimit(1, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("unexpected status sequence %v", codes)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("another IP must have its own bucket, got %d", rec.Code)
	}
}
