package patient

import (
	"errors"
	"testing"

	"github.com/ehr/vitals/internal/domain/access"
	"github.com/ehr/vitals/internal/platform/query"
)

func strPtr(s string) *string { return &s }

func TestScopePatients(t *testing.T) {
	owner := access.Principal{ID: "u1"}
	staff := access.Principal{ID: "s1", Staff: true}
	clinician := access.Principal{ID: "c1", Clinician: true}

	tests := []struct {
		name      string
		principal access.Principal
		filters   Filters
		wantOwner *access.PrincipalID
		wantExtID *string
		wantPlace string
	}{
		{"owner only sees own", owner, Filters{}, access.OwnerRef("u1"), nil, ""},
		{"staff unrestricted", staff, Filters{}, nil, nil, ""},
		{"clinician unrestricted", clinician, Filters{}, nil, nil, ""},
		{"filters kept for owner", owner, Filters{ExternalID: "ext-1", Place: "ward"}, access.OwnerRef("u1"), strPtr("ext-1"), "ward"},
		{"filters kept for staff", staff, Filters{Place: "ICU"}, nil, nil, "ICU"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ScopePatients(tt.principal, tt.filters)
			if err != nil {
				t.Fatal(err)
			}
			if (f.OwnerID == nil) != (tt.wantOwner == nil) || (f.OwnerID != nil && *f.OwnerID != *tt.wantOwner) {
				t.Errorf("OwnerID = %v, want %v", f.OwnerID, tt.wantOwner)
			}
			if (f.ExternalID == nil) != (tt.wantExtID == nil) || (f.ExternalID != nil && *f.ExternalID != *tt.wantExtID) {
				t.Errorf("ExternalID = %v, want %v", f.ExternalID, tt.wantExtID)
			}
			if f.Place != tt.wantPlace {
				t.Errorf("Place = %q, want %q", f.Place, tt.wantPlace)
			}
		})
	}
}

func TestScopePatients_Unauthenticated(t *testing.T) {
	if _, err := ScopePatients(access.Principal{}, Filters{}); !errors.Is(err, access.ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestFilter_Matches(t *testing.T) {
	mine := &Patient{OwnerID: access.OwnerRef("u1"), Place: "North Ward 3", ExternalID: strPtr("ext-1")}
	theirs := &Patient{OwnerID: access.OwnerRef("u2"), Place: "south"}
	orphan := &Patient{Place: "north"}

	ownerScope, _ := ScopePatients(access.Principal{ID: "u1"}, Filters{})
	staffScope, _ := ScopePatients(access.Principal{ID: "s", Staff: true}, Filters{})
	placeScope, _ := ScopePatients(access.Principal{ID: "s", Staff: true}, Filters{Place: "NORTH"})
	extScope, _ := ScopePatients(access.Principal{ID: "s", Staff: true}, Filters{ExternalID: "ext-1"})

	tests := []struct {
		name   string
		filter Filter
		p      *Patient
		want   bool
	}{
		{"owner sees own", ownerScope, mine, true},
		{"owner does not see others", ownerScope, theirs, false},
		{"owner does not see orphan", ownerScope, orphan, false},
		{"staff sees orphan", staffScope, orphan, true},
		{"place is case-insensitive substring", placeScope, mine, true},
		{"place miss", placeScope, theirs, false},
		{"external id exact", extScope, mine, true},
		{"external id absent", extScope, orphan, false},
		{"nil patient", staffScope, nil, false},
	}
	for _, tt := range tests {
		if got := tt.filter.Matches(tt.p); got != tt.want {
			t.Errorf("%s: Matches = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFilter_Apply(t *testing.T) {
	f, _ := ScopePatients(access.Principal{ID: "u1"}, Filters{ExternalID: "ext-1", Place: "50%"})
	q := query.NewSearchQuery("patient", "id")
	f.Apply(q)

	want := "owner_id = $1 AND external_id = $2 AND place ILIKE '%' || $3 || '%'"
	if q.Where() != want {
		t.Errorf("Where() = %q, want %q", q.Where(), want)
	}
	args := q.Args()
	if len(args) != 3 || args[0] != "u1" || args[1] != "ext-1" || args[2] != `50\%` {
		t.Errorf("unexpected args %v", args)
	}

	staff, _ := ScopePatients(access.Principal{ID: "s", Clinician: true}, Filters{})
	q = query.NewSearchQuery("patient", "id")
	staff.Apply(q)
	if q.Where() != "1=1" {
		t.Errorf("privileged scope should add no clauses, got %q", q.Where())
	}
}
