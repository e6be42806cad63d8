package patient

import (
	"strings"

	"github.com/ehr/vitals/internal/domain/access"
	"github.com/ehr/vitals/internal/platform/query"
)

// Filters are the optional list query parameters. Empty means unset.
type Filters struct {
	ExternalID string
	Place      string
}

// Filter is the resolved visibility and search predicate for a patient
// collection. A nil OwnerID means no ownership constraint.
type Filter struct {
	OwnerID    *access.PrincipalID
	ExternalID *string
	Place      string
}

// ScopePatients narrows the collection to what p may see: everything for
// staff and clinicians, otherwise only patients p owns. Patients whose owner
// is gone are visible only to privileged principals.
func ScopePatients(p access.Principal, f Filters) (Filter, error) {
	if !p.Authenticated() {
		return Filter{}, access.ErrUnauthenticated
	}
	var out Filter
	if !p.Privileged() {
		out.OwnerID = access.OwnerRef(p.ID)
	}
	if f.ExternalID != "" {
		id := f.ExternalID
		out.ExternalID = &id
	}
	out.Place = f.Place
	return out, nil
}

// Matches evaluates the filter against a loaded patient.
func (f Filter) Matches(pt *Patient) bool {
	if pt == nil {
		return false
	}
	if f.OwnerID != nil && (pt.OwnerID == nil || *pt.OwnerID != *f.OwnerID) {
		return false
	}
	if f.ExternalID != nil && (pt.ExternalID == nil || *pt.ExternalID != *f.ExternalID) {
		return false
	}
	if f.Place != "" && !strings.Contains(strings.ToLower(pt.Place), strings.ToLower(f.Place)) {
		return false
	}
	return true
}

// Apply renders the filter onto a query over the patient table.
func (f Filter) Apply(q *query.SearchQuery) {
	if f.OwnerID != nil {
		q.AddEqual("owner_id", string(*f.OwnerID))
	}
	if f.ExternalID != nil {
		q.AddEqual("external_id", *f.ExternalID)
	}
	if f.Place != "" {
		q.AddContains("place", f.Place)
	}
}
