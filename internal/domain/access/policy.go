package access

import (
	"fmt"

	"github.com/google/uuid"
)

// Operation is the coarse access mode evaluated by the policy.
type Operation string

const (
	Read  Operation = "read"
	Write Operation = "write"
)

// WriteOp is a state-changing operation guarded by AuthorizeWrite.
type WriteOp string

const (
	Create WriteOp = "create"
	Update WriteOp = "update"
	Delete WriteOp = "delete"
)

// Target is the object an access decision is made about. It is either a
// PatientTarget or a ReadingTarget; no other implementations exist.
type Target interface {
	// ControllingOwner resolves the principal whose ownership governs
	// writes to the target. A nil owner with a nil error means "no owner".
	ControllingOwner() (*PrincipalID, error)
	kind() string
}

// PatientTarget is a loaded patient. Its owner controls it directly.
type PatientTarget struct {
	PatientID uuid.UUID
	OwnerID   *PrincipalID
}

func (t PatientTarget) ControllingOwner() (*PrincipalID, error) {
	if t.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient without id", ErrMalformedTarget)
	}
	return t.OwnerID, nil
}

func (t PatientTarget) kind() string { return "patient" }

// ReadingTarget is a loaded reading together with its parent patient.
// Readings never carry ownership; it is always derived from Patient.
type ReadingTarget struct {
	ReadingID uuid.UUID
	PatientID uuid.UUID
	Patient   *PatientTarget
}

func (t ReadingTarget) ControllingOwner() (*PrincipalID, error) {
	if t.Patient == nil {
		return nil, fmt.Errorf("%w: reading %s has no loaded patient", ErrMalformedTarget, t.ReadingID)
	}
	if t.Patient.PatientID != t.PatientID {
		return nil, fmt.Errorf("%w: reading %s belongs to patient %s, got %s",
			ErrMalformedTarget, t.ReadingID, t.PatientID, t.Patient.PatientID)
	}
	return t.Patient.ControllingOwner()
}

func (t ReadingTarget) kind() string { return "reading" }

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Evaluate decides whether principal may perform op on target. It is pure:
// identical inputs always yield identical decisions. Anything it cannot
// resolve is denied.
func Evaluate(p Principal, op Operation, target Target) Decision {
	if !p.Authenticated() {
		return Decision{Allowed: false, Reason: "unauthenticated principal"}
	}
	if target == nil {
		return Decision{Allowed: false, Reason: "no target"}
	}
	owner, err := target.ControllingOwner()
	if err != nil {
		return Decision{Allowed: false, Reason: err.Error()}
	}

	switch op {
	case Read:
		// Reads are narrowed by collection scoping; anything in scope is readable.
		return Decision{Allowed: true, Reason: "read within scope"}
	case Write:
		switch {
		case p.Staff:
			return Decision{Allowed: true, Reason: "staff role"}
		case p.Clinician:
			return Decision{Allowed: true, Reason: "clinician role"}
		case p.Owns(owner):
			return Decision{Allowed: true, Reason: target.kind() + " owner"}
		case owner == nil:
			return Decision{Allowed: false, Reason: target.kind() + " has no owner"}
		default:
			return Decision{Allowed: false, Reason: "not the " + target.kind() + " owner"}
		}
	default:
		return Decision{Allowed: false, Reason: fmt.Sprintf("unknown operation %q", op)}
	}
}

// CanAccess is the boolean form of Evaluate.
func CanAccess(p Principal, op Operation, target Target) bool {
	return Evaluate(p, op, target).Allowed
}

// AuthorizeWrite guards a create, update or delete. For create, target is
// the patient the new object will belong to. It returns ErrUnauthenticated,
// ErrMalformedTarget or ErrForbidden (wrapped) on denial.
func AuthorizeWrite(p Principal, op WriteOp, target Target) error {
	if !p.Authenticated() {
		return ErrUnauthenticated
	}
	switch op {
	case Create, Update, Delete:
	default:
		return fmt.Errorf("%w: unsupported write operation %q", ErrMalformedTarget, op)
	}
	if target == nil {
		return fmt.Errorf("%w: no target for %s", ErrMalformedTarget, op)
	}
	if _, err := target.ControllingOwner(); err != nil {
		return err
	}
	if d := Evaluate(p, Write, target); !d.Allowed {
		return Forbidden(fmt.Sprintf("%s %s denied: %s", op, target.kind(), d.Reason))
	}
	return nil
}
