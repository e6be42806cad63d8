package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/vitals/internal/platform/auth"
)

const apiPrefix = "/api/v1/"

// AuditEntry records one access to patient data.
type AuditEntry struct {
	Timestamp  time.Time
	RequestID  string
	TenantID   string
	Principal  string
	Roles      []string
	Resource   string
	ResourceID string
	PatientID  string
	Action     string
	Method     string
	Path       string
	RemoteIP   string
	StatusCode int
}

// AuditRecorder persists audit entries beyond the log stream.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error { return f(entry) }

// Audit emits a "phi_access" event for every request under /api/v1/, after
// the handler ran, and forwards it to recorder when one is given.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, apiPrefix) {
				return next(c)
			}

			err := next(c)

			entry := newAuditEntry(c, err)
			if recorder != nil {
				if recErr := recorder.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", entry.RequestID).Msg("failed to record audit entry")
				}
			}

			evt := logger.Info()
			if entry.StatusCode == http.StatusForbidden {
				evt = logger.Warn()
			}
			evt.
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("tenant_id", entry.TenantID).
				Str("principal", entry.Principal).
				Strs("roles", entry.Roles).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.RemoteIP).
				Int("status", entry.StatusCode).
				Msg("phi_access")

			return err
		}
	}
}

func newAuditEntry(c echo.Context, handlerErr error) AuditEntry {
	req := c.Request()
	p := auth.PrincipalFromContext(req.Context())
	rid, _ := c.Get("request_id").(string)
	tid, _ := c.Get("tenant_id").(string)

	status := c.Response().Status
	if he, ok := handlerErr.(*echo.HTTPError); ok && !c.Response().Committed {
		status = he.Code
	}

	resource, id := splitResourcePath(req.URL.Path)
	entry := AuditEntry{
		Timestamp:  time.Now().UTC(),
		RequestID:  rid,
		TenantID:   tid,
		Principal:  string(p.ID),
		Roles:      p.Roles(),
		Resource:   resource,
		ResourceID: id,
		Action:     actionFor(req.Method, id),
		Method:     req.Method,
		Path:       req.URL.Path,
		RemoteIP:   c.RealIP(),
		StatusCode: status,
	}
	switch {
	case resource == "patients" && id != "":
		entry.PatientID = id
	case c.QueryParam("patient") != "":
		entry.PatientID = c.QueryParam("patient")
	}
	return entry
}

// splitResourcePath turns /api/v1/heartrates/<uuid> into ("heartrates", "<uuid>").
// Non-UUID second segments are not reported as ids.
func splitResourcePath(path string) (string, string) {
	rest := strings.Trim(strings.TrimPrefix(path, apiPrefix), "/")
	resource, id, _ := strings.Cut(rest, "/")
	id, _, _ = strings.Cut(id, "/")
	if _, err := uuid.Parse(id); err != nil {
		id = ""
	}
	if resource == "" {
		resource = "unknown"
	}
	return resource, id
}

func actionFor(method, id string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	if id == "" {
		return "search"
	}
	return "read"
}
