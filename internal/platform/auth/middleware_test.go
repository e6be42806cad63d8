package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/ehr/vitals/internal/domain/access"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func testClaims(sub string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID: "clinic",
	}
}

func signHS256(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return s
}

// serve runs mw around a handler that captures the principal.
func serve(t *testing.T, mw echo.MiddlewareFunc, authz string) (access.Principal, echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	if authz != "" {
		req.Header.Set(echo.HeaderAuthorization, authz)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	var got access.Principal
	err := mw(func(c echo.Context) error {
		got = PrincipalFromContext(c.Request().Context())
		return nil
	})(c)
	return got, c, err
}

func assertStatus(t *testing.T, err error, code int) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if he.Code != code {
		t.Errorf("expected %d, got %d", code, he.Code)
	}
}

func hsMiddleware(t *testing.T) echo.MiddlewareFunc {
	t.Helper()
	mw, err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})
	if err != nil {
		t.Fatalf("JWTMiddleware() error: %v", err)
	}
	return mw
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, _, err := serve(t, hsMiddleware(t), "")
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	for _, h := range []string{"Token abc123", "Bearer", "Bearer ", "Basic dXNlcjpwYXNz"} {
		t.Run(h, func(t *testing.T) {
			_, _, err := serve(t, hsMiddleware(t), h)
			assertStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	claims := testClaims("user-1")
	claims.Roles = []string{"clinician"}
	p, c, err := serve(t, hsMiddleware(t), "Bearer "+signHS256(t, claims, testSigningKey))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != "user-1" || !p.Clinician || p.Staff {
		t.Errorf("unexpected principal: %+v", p)
	}
	if c.Get("jwt_tenant_id") != "clinic" {
		t.Errorf("expected jwt_tenant_id clinic, got %v", c.Get("jwt_tenant_id"))
	}
	if c.Get("jwt_verified") != true {
		t.Error("expected jwt_verified to be set")
	}
}

func TestJWTMiddleware_Rejections(t *testing.T) {
	expired := testClaims("user-1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	noExp := testClaims("user-1")
	noExp.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
	}{
		{"wrong key", signHS256(t, testClaims("user-1"), []byte("other-key"))},
		{"expired", signHS256(t, expired, testSigningKey)},
		{"no expiry", signHS256(t, noExp, testSigningKey)},
		{"no subject", signHS256(t, testClaims(""), testSigningKey)},
		{"garbage", "not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := serve(t, hsMiddleware(t), "Bearer "+tt.token)
			assertStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_IssuerAndAudience(t *testing.T) {
	mw, err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "https://idp", Audience: "vitals"})
	if err != nil {
		t.Fatal(err)
	}
	good := testClaims("user-1")
	good.Issuer = "https://idp"
	good.Audience = jwt.ClaimStrings{"vitals"}
	if _, _, err := serve(t, mw, "Bearer "+signHS256(t, good, testSigningKey)); err != nil {
		t.Errorf("expected valid token to pass, got %v", err)
	}

	bad := good
	bad.Audience = jwt.ClaimStrings{"other"}
	_, _, err = serve(t, mw, "Bearer "+signHS256(t, bad, testSigningKey))
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	mw, err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: func(echo.Context) bool { return true }})
	if err != nil {
		t.Fatal(err)
	}
	p, _, err := serve(t, mw, "")
	if err != nil {
		t.Fatalf("skipped request should pass, got %v", err)
	}
	if p.Authenticated() {
		t.Error("skipped request must stay anonymous")
	}
}

func TestJWTMiddleware_RequiresKeySource(t *testing.T) {
	if _, err := JWTMiddleware(JWTConfig{}); err == nil {
		t.Error("expected error without any key source")
	}
}

func jwksServer(t *testing.T, key *rsa.PrivateKey, kid string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		switch r.URL.Path {
		case "/.well-known/openid-configuration":
			json.NewEncoder(w).Encode(map[string]string{"jwks_uri": "http://" + r.Host + "/jwks"})
		case "/jwks":
			json.NewEncoder(w).Encode(publicJWKS(t, key, kid))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func publicJWKS(t *testing.T, key *rsa.PrivateKey, kid string) jwk.Set {
	t.Helper()
	pub, err := jwk.FromRaw(&key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	if err := pub.Set(jwk.KeyIDKey, kid); err != nil {
		t.Fatal(err)
	}
	if err := pub.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		t.Fatal(err)
	}
	set := jwk.NewSet()
	if err := set.AddKey(pub); err != nil {
		t.Fatal(err)
	}
	return set
}

func signRS256(t *testing.T, claims Claims, key *rsa.PrivateKey, kid string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestJWTMiddleware_JWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	var hits int32
	srv := jwksServer(t, key, "k1", &hits)

	mw, err := JWTMiddleware(JWTConfig{JWKSURL: srv.URL + "/jwks"})
	if err != nil {
		t.Fatal(err)
	}
	token := "Bearer " + signRS256(t, testClaims("user-9"), key, "k1")
	for i := 0; i < 3; i++ {
		p, _, err := serve(t, mw, token)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if p.ID != "user-9" {
			t.Errorf("unexpected principal %+v", p)
		}
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("expected JWKS fetched once, got %d", hits)
	}

	_, _, err = serve(t, mw, "Bearer "+signRS256(t, testClaims("user-9"), key, "unknown"))
	assertStatus(t, err, http.StatusUnauthorized)

	// HS256 tokens must not be accepted when verifying against JWKS.
	_, _, err = serve(t, mw, "Bearer "+signHS256(t, testClaims("user-9"), testSigningKey))
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_OIDCDiscovery(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	srv := jwksServer(t, key, "k1", nil)

	mw, err := JWTMiddleware(JWTConfig{Issuer: srv.URL})
	if err != nil {
		t.Fatalf("discovery failed: %v", err)
	}
	claims := testClaims("user-3")
	claims.Issuer = srv.URL
	if _, _, err := serve(t, mw, "Bearer "+signRS256(t, claims, key, "k1")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	t.Run("anonymous request becomes dev staff", func(t *testing.T) {
		p, _, err := serve(t, DevAuthMiddleware(nil), "")
		if err != nil {
			t.Fatal(err)
		}
		if p.ID != "dev-user" || !p.Staff {
			t.Errorf("unexpected dev principal %+v", p)
		}
	})
	t.Run("token delegated to verifier", func(t *testing.T) {
		p, _, err := serve(t, DevAuthMiddleware(hsMiddleware(t)), "Bearer "+signHS256(t, testClaims("owner-1"), testSigningKey))
		if err != nil {
			t.Fatal(err)
		}
		if p.ID != "owner-1" || p.Staff {
			t.Errorf("expected token principal, got %+v", p)
		}
	})
	t.Run("token without verifier rejected", func(t *testing.T) {
		_, _, err := serve(t, DevAuthMiddleware(nil), "Bearer abc")
		assertStatus(t, err, http.StatusUnauthorized)
	})
}
