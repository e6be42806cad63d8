package reading

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ehr/vitals/internal/domain/access"
	"github.com/ehr/vitals/internal/platform/query"
)

const DefaultFutureSkew = 5 * time.Minute

// Planner turns reading query parameters into filters and validates reading
// payloads against the clock.
type Planner struct {
	now    func() time.Time
	skew   time.Duration
	strict bool
}

type Option func(*Planner)

func WithClock(now func() time.Time) Option {
	return func(p *Planner) { p.now = now }
}

// WithFutureSkew sets how far past now a recorded_at may lie.
func WithFutureSkew(d time.Duration) Option {
	return func(p *Planner) { p.skew = d }
}

// WithStrictTimeFilters rejects unparsable start/end values instead of
// dropping them.
func WithStrictTimeFilters(strict bool) Option {
	return func(p *Planner) { p.strict = strict }
}

func NewPlanner(opts ...Option) *Planner {
	p := &Planner{now: time.Now, skew: DefaultFutureSkew}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Query holds the raw list parameters. Empty strings are unset.
type Query struct {
	PatientID string
	DeviceID  string
	Start     string
	End       string
}

// Filter is the resolved predicate over readings. Nil fields do not
// constrain. OwnerID restricts to readings whose patient has that owner.
type Filter struct {
	PatientID *uuid.UUID
	DeviceID  *string
	Start     *time.Time
	End       *time.Time
	OwnerID   *access.PrincipalID
}

// ScopeReadings builds the filter for p. Malformed patient or device ids
// are InvalidFilterErrors. Unparsable time bounds are dropped unless the
// planner is strict.
func (pl *Planner) ScopeReadings(p access.Principal, q Query) (Filter, error) {
	if !p.Authenticated() {
		return Filter{}, access.ErrUnauthenticated
	}
	var f Filter

	if q.PatientID != "" {
		id, err := uuid.Parse(q.PatientID)
		if err != nil {
			return Filter{}, &access.InvalidFilterError{Field: "patient", Value: q.PatientID, Reason: "must be a UUID"}
		}
		f.PatientID = &id
	}
	if q.DeviceID != "" {
		if utf8.RuneCountInString(q.DeviceID) > maxDeviceIDLen {
			return Filter{}, &access.InvalidFilterError{
				Field:  "device_id",
				Value:  q.DeviceID,
				Reason: fmt.Sprintf("must be at most %d characters", maxDeviceIDLen),
			}
		}
		d := q.DeviceID
		f.DeviceID = &d
	}

	var err error
	if f.Start, err = pl.bound("start", q.Start, false); err != nil {
		return Filter{}, err
	}
	if f.End, err = pl.bound("end", q.End, true); err != nil {
		return Filter{}, err
	}

	if !p.Privileged() {
		f.OwnerID = access.OwnerRef(p.ID)
	}
	return f, nil
}

func (pl *Planner) bound(field, raw string, upper bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, ok := ParseBound(raw, upper)
	if ok {
		return &t, nil
	}
	if pl.strict {
		return nil, &access.InvalidFilterError{Field: field, Value: raw, Reason: "expected an ISO 8601 date or timestamp"}
	}
	return nil, nil
}

// Matches evaluates the filter against a reading whose patient is owned by
// patientOwner. Both time bounds are inclusive.
func (f Filter) Matches(r *Reading, patientOwner *access.PrincipalID) bool {
	if r == nil {
		return false
	}
	if f.PatientID != nil && r.PatientID != *f.PatientID {
		return false
	}
	if f.DeviceID != nil && (r.DeviceID == nil || *r.DeviceID != *f.DeviceID) {
		return false
	}
	if f.Start != nil && r.RecordedAt.Before(*f.Start) {
		return false
	}
	if f.End != nil && r.RecordedAt.After(*f.End) {
		return false
	}
	if f.OwnerID != nil && (patientOwner == nil || *patientOwner != *f.OwnerID) {
		return false
	}
	return true
}

// Apply renders the filter onto a query over the heart_rate table.
func (f Filter) Apply(q *query.SearchQuery) {
	if f.PatientID != nil {
		q.AddEqual("patient_id", *f.PatientID)
	}
	if f.DeviceID != nil {
		q.AddEqual("device_id", *f.DeviceID)
	}
	if f.Start != nil {
		q.AddCompare("recorded_at", ">=", *f.Start)
	}
	if f.End != nil {
		q.AddCompare("recorded_at", "<=", *f.End)
	}
	if f.OwnerID != nil {
		q.Add(fmt.Sprintf("patient_id IN (SELECT id FROM patient WHERE owner_id = $%d)", q.Idx()), string(*f.OwnerID))
	}
}

// Validate checks a payload and returns the reading it describes. Every
// violated field is reported.
func (pl *Planner) Validate(in Input) (*Reading, error) {
	var errs access.ValidationErrors
	r := &Reading{PatientID: in.PatientID, DeviceID: in.DeviceID, Metadata: in.Metadata}

	if in.PatientID == uuid.Nil {
		errs.Add("patient", "patient is required")
	}

	switch {
	case in.Value == nil:
		errs.Add("value", "value is required")
	case *in.Value < MinBPM || *in.Value > MaxBPM:
		errs.Add("value", fmt.Sprintf("bpm must be between %d and %d", MinBPM, MaxBPM))
	default:
		r.Value = *in.Value
	}

	if in.RecordedAt == "" {
		errs.Add("recorded_at", "recorded_at is required")
	} else if t, ok := ParseTimestamp(in.RecordedAt); !ok {
		errs.Add("recorded_at", "recorded_at must be an ISO 8601 timestamp")
	} else if t.After(pl.now().Add(pl.skew)) {
		errs.Add("recorded_at", "recorded_at cannot be in the far future")
	} else {
		r.RecordedAt = t
	}

	if in.DeviceID != nil {
		switch {
		case *in.DeviceID == "":
			r.DeviceID = nil
		case utf8.RuneCountInString(*in.DeviceID) > maxDeviceIDLen:
			errs.Add("device_id", fmt.Sprintf("device_id must be at most %d characters", maxDeviceIDLen))
		}
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return r, nil
}
