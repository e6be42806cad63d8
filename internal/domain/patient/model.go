package patient

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ehr/vitals/internal/domain/access"
)

const dateLayout = "2006-01-02"

// Date is a calendar date serialised as YYYY-MM-DD.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) *Date {
	return &Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

// UnmarshalJSON reports a malformed date as a type error so the decoder
// attaches the field name.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return &json.UnmarshalTypeError{Value: string(b), Type: reflect.TypeOf(Date{})}
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return &json.UnmarshalTypeError{Value: "string " + strconv.Quote(s), Type: reflect.TypeOf(Date{})}
	}
	d.Time = t
	return nil
}

func (d *Date) timePtr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

func dateFrom(t *time.Time) *Date {
	if t == nil {
		return nil
	}
	return &Date{t.UTC()}
}

// Patient is a monitored person. OwnerID is nil when the owning principal
// was removed.
type Patient struct {
	ID          uuid.UUID           `json:"id"`
	OwnerID     *access.PrincipalID `json:"owner"`
	FirstName   string              `json:"first_name"`
	LastName    string              `json:"last_name"`
	DateOfBirth *Date               `json:"date_of_birth"`
	Sex         string              `json:"sex"`
	Place       string              `json:"place"`
	ExternalID  *string             `json:"external_id"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Target is the authorization view of the patient.
func (p *Patient) Target() access.PatientTarget {
	return access.PatientTarget{PatientID: p.ID, OwnerID: p.OwnerID}
}

// Input is the writable part of a patient. It has no owner field: ownership
// is assigned by the service and never taken from a request body.
type Input struct {
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	DateOfBirth *Date   `json:"date_of_birth"`
	Sex         string  `json:"sex"`
	Place       string  `json:"place"`
	ExternalID  *string `json:"external_id"`
}

// Validate checks required fields and column lengths.
func (in *Input) Validate() error {
	var errs access.ValidationErrors
	in.FirstName = strings.TrimSpace(in.FirstName)
	if in.FirstName == "" {
		errs.Add("first_name", "first_name is required")
	}
	checkLen(&errs, "first_name", in.FirstName, 150)
	checkLen(&errs, "last_name", in.LastName, 150)
	checkLen(&errs, "sex", in.Sex, 10)
	checkLen(&errs, "place", in.Place, 255)
	if in.ExternalID != nil {
		if *in.ExternalID == "" {
			in.ExternalID = nil
		} else {
			checkLen(&errs, "external_id", *in.ExternalID, 128)
		}
	}
	return errs.Err()
}

func checkLen(errs *access.ValidationErrors, field, v string, max int) {
	if utf8.RuneCountInString(v) > max {
		errs.Add(field, fmt.Sprintf("%s must be at most %d characters", field, max))
	}
}

// applyTo copies the writable fields onto p, leaving identity and
// ownership untouched.
func (in *Input) applyTo(p *Patient) {
	p.FirstName = in.FirstName
	p.LastName = in.LastName
	p.DateOfBirth = in.DateOfBirth
	p.Sex = in.Sex
	p.Place = in.Place
	p.ExternalID = in.ExternalID
}
