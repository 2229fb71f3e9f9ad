package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestVerifyJWTRoundTrip(t *testing.T) {
	token, err := SignJWT("secret", TokenClaims{Sub: "owner-1", Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("SignJWT error: %v", err)
	}
	claims, err := VerifyJWT("secret", token)
	if err != nil {
		t.Fatalf("VerifyJWT error: %v", err)
	}
	if claims.Sub != "owner-1" {
		t.Fatalf("sub = %q", claims.Sub)
	}
	if _, err := VerifyJWT("other", token); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestVerifyJWTExpired(t *testing.T) {
	token, _ := SignJWT("secret", TokenClaims{Sub: "owner-1", Exp: time.Now().Add(-time.Minute).Unix()})
	if _, err := VerifyJWT("secret", token); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestAuthJWT(t *testing.T) {
	valid, _ := SignJWT("secret", TokenClaims{Sub: "owner-1", Locale: "id"})
	anonymous, _ := SignJWT("secret", TokenClaims{})

	var owner, locale string
	h := AuthJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner = OwnerIDFromContext(r.Context())
		locale = LocaleFromContext(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"no subject", "Bearer " + anonymous, http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
		})
	}
	if owner != "owner-1" || locale != "id" {
		t.Fatalf("context owner=%q locale=%q", owner, locale)
	}
}
