package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/vitals/internal/domain/access"
	"github.com/ehr/vitals/internal/platform/auth"
)

const patientUUID = "3f2504e0-4f89-11d3-9a0c-0305e82c3301"

func runAudit(t *testing.T, method, target string, p access.Principal, handler echo.HandlerFunc) (AuditEntry, string, bool) {
	t.Helper()
	var buf bytes.Buffer
	var got AuditEntry
	recorded := false
	rec := AuditRecorderFunc(func(e AuditEntry) error {
		got = e
		recorded = true
		return nil
	})

	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), p))
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("request_id", "rid-7")
	c.Set("tenant_id", "clinic")

	Audit(zerolog.New(&buf), rec)(handler)(c)
	return got, buf.String(), recorded
}

func TestAudit_RecordsPatientRead(t *testing.T) {
	p := access.Principal{ID: "u1", Clinician: true}
	entry, logged, ok := runAudit(t, http.MethodGet, "/api/v1/patients/"+patientUUID, p, func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if !ok {
		t.Fatal("expected entry to be recorded")
	}
	if entry.Principal != "u1" || entry.TenantID != "clinic" || entry.RequestID != "rid-7" {
		t.Errorf("unexpected identity fields: %+v", entry)
	}
	if entry.Resource != "patients" || entry.ResourceID != patientUUID || entry.PatientID != patientUUID {
		t.Errorf("unexpected resource fields: %+v", entry)
	}
	if entry.Action != "read" || entry.StatusCode != http.StatusOK {
		t.Errorf("unexpected action/status: %+v", entry)
	}
	if len(entry.Roles) != 1 || entry.Roles[0] != access.RoleClinician {
		t.Errorf("expected clinician role, got %v", entry.Roles)
	}
	if !strings.Contains(logged, `"message":"phi_access"`) {
		t.Errorf("expected phi_access log line, got %s", logged)
	}
}

func TestAudit_ForbiddenStatusFromError(t *testing.T) {
	entry, logged, _ := runAudit(t, http.MethodPost, "/api/v1/heartrates?patient="+patientUUID, access.Principal{ID: "u2"}, func(echo.Context) error {
		return echo.NewHTTPError(http.StatusForbidden, "denied")
	})
	if entry.StatusCode != http.StatusForbidden || entry.Action != "create" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.PatientID != patientUUID {
		t.Errorf("expected patient from query, got %q", entry.PatientID)
	}
	if !strings.Contains(logged, `"level":"warn"`) {
		t.Errorf("expected warn level for forbidden, got %s", logged)
	}
}

func TestAudit_SkipsNonAPIPaths(t *testing.T) {
	_, logged, recorded := runAudit(t, http.MethodGet, "/health", access.Principal{}, func(echo.Context) error { return nil })
	if recorded || logged != "" {
		t.Error("expected /health to be skipped")
	}
}

func TestSplitResourcePath(t *testing.T) {
	tests := []struct {
		path, resource, id string
	}{
		{"/api/v1/heartrates", "heartrates", ""},
		{"/api/v1/heartrates/", "heartrates", ""},
		{"/api/v1/heartrates/" + patientUUID, "heartrates", patientUUID},
		{"/api/v1/accounts/me", "accounts", ""},
		{"/api/v1/", "unknown", ""},
	}
	for _, tt := range tests {
		r, id := splitResourcePath(tt.path)
		if r != tt.resource || id != tt.id {
			t.Errorf("splitResourcePath(%q) = (%q, %q), want (%q, %q)", tt.path, r, id, tt.resource, tt.id)
		}
	}
}

func TestActionFor(t *testing.T) {
	tests := []struct {
		method, id, want string
	}{
		{http.MethodGet, "", "search"},
		{http.MethodGet, patientUUID, "read"},
		{http.MethodPost, "", "create"},
		{http.MethodPut, patientUUID, "update"},
		{http.MethodPatch, patientUUID, "update"},
		{http.MethodDelete, patientUUID, "delete"},
	}
	for _, tt := range tests {
		if got := actionFor(tt.method, tt.id); got != tt.want {
			t.Errorf("actionFor(%s, %q) = %q, want %q", tt.method, tt.id, got, tt.want)
		}
	}
}
