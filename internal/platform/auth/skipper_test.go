package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper(t *testing.T) {
	tests := []struct {
		path string
		skip bool
	}{
		{"/health", true},
		{"/health/db", true},
		{"/health/extra", false},
		{"/api/v1/patients", false},
		{"/api/v1/heartrates/:id", false},
		{"/api/v1/accounts/me", false},
		{"/", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
			c.SetPath(tt.path)
			if got := AuthSkipper(c); got != tt.skip {
				t.Errorf("AuthSkipper(%s) = %v, want %v", tt.path, got, tt.skip)
			}
		})
	}
}

func TestAuthSkipper_UsesRoutePath(t *testing.T) {
	// The raw URL is public but the matched route is not.
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), httptest.NewRecorder())
	c.SetPath("/api/v1/patients")
	if AuthSkipper(c) {
		t.Error("skipper must decide on the route path")
	}
}
