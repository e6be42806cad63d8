package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/vitals/internal/config"
	"github.com/ehr/vitals/internal/platform/auth"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:               "production",
		AuthSigningKey:    strings.Repeat("s", 32),
		DefaultTenant:     "default",
		CORSOrigins:       []string{"http://localhost:3000"},
		RateLimitRPS:      100,
		RateLimitBurst:    200,
		BodyLimit:         "1M",
		RequestTimeout:    time.Second,
		ReadingFutureSkew: 5 * time.Minute,
		MigrationsDir:     "./migrations",
	}
}

func TestNewServer_Routes(t *testing.T) {
	e, err := newServer(testConfig(), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("newServer() error: %v", err)
	}
	registered := make(map[string]bool)
	for _, r := range e.Routes() {
		registered[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"GET /health/db",
		"GET /api/v1/accounts/me",
		"GET /api/v1/patients",
		"POST /api/v1/patients",
		"GET /api/v1/patients/:id",
		"PUT /api/v1/patients/:id",
		"DELETE /api/v1/patients/:id",
		"GET /api/v1/heartrates",
		"POST /api/v1/heartrates",
		"GET /api/v1/heartrates/:id",
		"PUT /api/v1/heartrates/:id",
		"DELETE /api/v1/heartrates/:id",
	} {
		if !registered[want] {
			t.Errorf("route %s not registered", want)
		}
	}
}

func TestNewServer_HealthIsPublic(t *testing.T) {
	e, err := newServer(testConfig(), nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID on response")
	}
}

func TestNewServer_APIRequiresToken(t *testing.T) {
	e, err := newServer(testConfig(), nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{"/api/v1/patients", "/api/v1/heartrates", "/api/v1/accounts/me"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestNewServer_RateLimitBeforeTenantConnection(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRPS = 0.001
	cfg.RateLimitBurst = 1
	e, err := newServer(cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	claims := auth.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.AuthSigningKey))
	if err != nil {
		t.Fatal(err)
	}

	var codes []int
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	// Without a pool the first request fails at the tenant connection; the
	// second must be throttled before reaching it.
	if codes[1] != http.StatusTooManyRequests {
		t.Errorf("expected second request to be throttled, got %v", codes)
	}
}

func TestAuthMiddleware(t *testing.T) {
	dev := testConfig()
	dev.Env = "development"
	dev.AuthSigningKey = ""
	if _, err := authMiddleware(dev); err != nil {
		t.Errorf("development without verifier: %v", err)
	}

	ext := testConfig()
	ext.AuthSigningKey = ""
	if _, err := authMiddleware(ext); err == nil {
		t.Error("external mode without verifier should fail")
	}

	if _, err := authMiddleware(testConfig()); err != nil {
		t.Errorf("signing key: %v", err)
	}
}

func TestMigrationTarget(t *testing.T) {
	cfg := testConfig()

	cmd := &cobra.Command{}
	addMigrationFlags(cmd)
	schema, dir := migrationTarget(cmd, cfg)
	if schema != "tenant_default" || dir != "./migrations" {
		t.Errorf("defaults = %q, %q", schema, dir)
	}

	cmd = &cobra.Command{}
	addMigrationFlags(cmd)
	if err := cmd.Flags().Parse([]string{"--schema", "tenant_clinic", "--dir", "/srv/migrations"}); err != nil {
		t.Fatal(err)
	}
	schema, dir = migrationTarget(cmd, cfg)
	if schema != "tenant_clinic" || dir != "/srv/migrations" {
		t.Errorf("flags = %q, %q", schema, dir)
	}
}
