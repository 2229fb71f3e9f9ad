package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"genstudio/internal/catalog"
	"genstudio/internal/http/handlers"
	"genstudio/internal/middleware"
	"genstudio/internal/resolver"
)

const testSecret = "router-secret"

func newTestRouter(t *testing.T, static http.Handler) http.Handler {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default: %v", err)
	}
	app := &handlers.App{Resolver: resolver.New(cat), Logger: zerolog.Nop()}
	return NewRouter(app, Options{
		JWTSecret:       testSecret,
		DefaultLocale:   "en",
		RateLimitPerMin: 2,
		Logger:          zerolog.Nop(),
		Static:          static,
	})
}

func bearer(t *testing.T, sub string) string {
	t.Helper()
	token, err := middleware.SignJWT(testSecret, middleware.TokenClaims{Sub: sub, Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	return "Bearer " + token
}

func TestPublicRoutes(t *testing.T) {
	router := newTestRouter(t, nil)

	for _, path := range []string{"/v1/healthz", "/v1/openapi.json", "/v1/docs", "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s = %d", path, rec.Code)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Fatalf("GET %s: missing X-Request-ID", path)
		}
	}
}

func TestAPIRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Authorization", bearer(t, "owner-1"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"items"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestRateLimitIsPerOwner(t *testing.T) {
	router := newTestRouter(t, nil)

	call := func(owner string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
		req.Header.Set("Authorization", bearer(t, owner))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}
	for i := 0; i < 2; i++ {
		if code := call("owner-1"); code != http.StatusOK {
			t.Fatalf("request %d = %d", i, code)
		}
	}
	if code := call("owner-1"); code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", code)
	}
	if code := call("owner-2"); code != http.StatusOK {
		t.Fatalf("other owner = %d", code)
	}
}

func TestStaticMountedOnlyWhenConfigured(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/a.png", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("without static handler = %d", rec.Code)
	}

	static := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	rec = httptest.NewRecorder()
	newTestRouter(t, static).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/a.png", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("with static handler = %d", rec.Code)
	}
}
