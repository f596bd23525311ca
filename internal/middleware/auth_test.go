package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testSecret = "test-secret"

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken(testSecret, UserClaims{UserID: "driver", Role: RoleDriver}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := ParseToken(testSecret, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "driver" || claims.Role != RoleDriver {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := ParseToken("other-secret", token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for a wrong secret, got %v", err)
	}

	expired, _ := IssueToken(testSecret, UserClaims{UserID: "driver", Role: RoleDriver}, -time.Minute)
	if _, err := ParseToken(testSecret, expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for an expired token, got %v", err)
	}
}

func TestAuthAndRequireRole(t *testing.T) {
	var seen UserClaims
	handler := Auth(testSecret)(RequireRole(RoleDriver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetUserFromContext(r)
		w.WriteHeader(http.StatusNoContent)
	})))

	driverToken, _ := IssueToken(testSecret, UserClaims{UserID: "driver", Role: RoleDriver}, time.Hour)
	riderToken, _ := IssueToken(testSecret, UserClaims{UserID: "rider", Role: RoleRider}, time.Hour)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Token " + driverToken, http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"rider", "Bearer " + riderToken, http.StatusForbidden},
		{"driver", "Bearer " + driverToken, http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/driver/location", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.status, rec.Code)
		}
	}
	if seen.UserID != "driver" {
		t.Fatalf("expected driver claims in context, got %+v", seen)
	}
}
