package account

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/vitals/internal/domain/access"
	"github.com/ehr/vitals/internal/platform/auth"
)

type mockRepo struct {
	accounts map[access.PrincipalID]*Account
	failGet  error
}

func newMockRepo() *mockRepo {
	return &mockRepo{accounts: make(map[access.PrincipalID]*Account)}
}

func (m *mockRepo) Upsert(_ context.Context, a *Account) error {
	now := time.Now()
	if existing, ok := m.accounts[a.ID]; ok {
		a.CreatedAt = existing.CreatedAt
	} else {
		a.CreatedAt = now
	}
	a.LastSeenAt = now
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id access.PrincipalID) (*Account, error) {
	if m.failGet != nil {
		return nil, m.failGet
	}
	a, ok := m.accounts[id]
	if !ok {
		return nil, access.NotFound("principal", string(id))
	}
	cp := *a
	return &cp, nil
}

func TestRegister(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	a, err := svc.Register(context.Background(), access.Principal{ID: "u1", Username: "alice", Clinician: true})
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != "u1" || !a.Clinician || a.CreatedAt.IsZero() {
		t.Errorf("unexpected account %+v", a)
	}
	first := a.CreatedAt

	a, err = svc.Register(context.Background(), access.Principal{ID: "u1", Username: "alice2"})
	if err != nil {
		t.Fatal(err)
	}
	if !a.CreatedAt.Equal(first) {
		t.Error("re-registering must keep created_at")
	}
	if repo.accounts["u1"].Username != "alice2" || repo.accounts["u1"].Clinician {
		t.Errorf("expected refreshed flags, got %+v", repo.accounts["u1"])
	}
}

func TestRegister_Unauthenticated(t *testing.T) {
	_, err := NewService(newMockRepo()).Register(context.Background(), access.Principal{})
	if !errors.Is(err, access.ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestMe(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	p := access.Principal{ID: "u1", Username: "alice", Staff: true}

	prof, err := svc.Me(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if prof.Registered || prof.ID != "u1" || len(prof.Roles) != 1 {
		t.Errorf("unexpected unregistered profile %+v", prof)
	}

	svc.Register(context.Background(), p)
	prof, err = svc.Me(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if !prof.Registered || prof.CreatedAt.IsZero() {
		t.Errorf("expected registered profile, got %+v", prof)
	}

	repo.failGet = errors.New("db down")
	if _, err := svc.Me(context.Background(), p); err == nil {
		t.Error("expected store error to propagate")
	}
}

func TestHandler_Me(t *testing.T) {
	h := NewHandler(NewService(newMockRepo()))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/me", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), access.Principal{ID: "u9", Username: "bob"}))
	rec := httptest.NewRecorder()
	if err := h.Me(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["id"] != "u9" || body["username"] != "bob" || body["registered"] != false {
		t.Errorf("unexpected body %v", body)
	}
	if roles, ok := body["roles"].([]interface{}); !ok || len(roles) != 0 {
		t.Errorf("expected empty roles array, got %v", body["roles"])
	}
}

func TestHandler_MeAnonymous(t *testing.T) {
	h := NewHandler(NewService(newMockRepo()))
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/accounts/me", nil), httptest.NewRecorder())
	err := h.Me(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}
