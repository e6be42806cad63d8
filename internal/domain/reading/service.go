package reading

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/vitals/internal/domain/access"
	"github.com/ehr/vitals/internal/domain/patient"
)

// PatientLookup loads a patient regardless of the caller's scope.
type PatientLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type Service struct {
	repo     Repository
	patients PatientLookup
	planner  *Planner
}

func NewService(repo Repository, patients PatientLookup, planner *Planner) *Service {
	return &Service{repo: repo, patients: patients, planner: planner}
}

var (
	errCreateDenied = access.Forbidden("you are not allowed to add readings for this patient")
	errMoveDenied   = access.Forbidden("you are not allowed to move readings to this patient")
)

// Create validates the payload, loads the patient and checks the caller may
// write to it, in that order.
func (s *Service) Create(ctx context.Context, p access.Principal, in Input) (*Reading, error) {
	if !p.Authenticated() {
		return nil, access.ErrUnauthenticated
	}
	r, err := s.planner.Validate(in)
	if err != nil {
		return nil, err
	}
	pt, err := s.patients.GetByID(ctx, r.PatientID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizePatient(ctx, p, access.Create, pt, errCreateDenied); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns a reading within the caller's scope, loading its patient to
// resolve ownership.
func (s *Service) Get(ctx context.Context, p access.Principal, id uuid.UUID) (*Reading, *patient.Patient, error) {
	scope, err := s.planner.ScopeReadings(p, Query{})
	if err != nil {
		return nil, nil, err
	}
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	pt, err := s.patients.GetByID(ctx, r.PatientID)
	if err != nil {
		return nil, nil, err
	}
	if !scope.Matches(r, pt.OwnerID) {
		return nil, nil, access.NotFound("reading", id.String())
	}
	return r, pt, nil
}

// Update replaces a reading. Moving it to another patient also requires
// write access to the destination.
func (s *Service) Update(ctx context.Context, p access.Principal, id uuid.UUID, in Input) (*Reading, error) {
	current, pt, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeReading(ctx, p, access.Update, current, pt); err != nil {
		return nil, err
	}
	next, err := s.planner.Validate(in)
	if err != nil {
		return nil, err
	}
	if next.PatientID != current.PatientID {
		dest, err := s.patients.GetByID(ctx, next.PatientID)
		if err != nil {
			return nil, err
		}
		if err := s.authorizePatient(ctx, p, access.Update, dest, errMoveDenied); err != nil {
			return nil, err
		}
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	if err := s.repo.Update(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *Service) Delete(ctx context.Context, p access.Principal, id uuid.UUID) error {
	r, pt, err := s.Get(ctx, p, id)
	if err != nil {
		return err
	}
	if err := s.authorizeReading(ctx, p, access.Delete, r, pt); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, p access.Principal, q Query, limit, offset int) ([]*Reading, int, error) {
	f, err := s.planner.ScopeReadings(p, q)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.Search(ctx, f, limit, offset)
}

// authorizePatient checks write access to pt and replaces a denial with
// reason.
func (s *Service) authorizePatient(ctx context.Context, p access.Principal, op access.WriteOp, pt *patient.Patient, reason error) error {
	err := access.AuthorizeWrite(p, op, pt.Target())
	if errors.Is(err, access.ErrForbidden) {
		denied(ctx, p, op, pt.ID, uuid.Nil)
		return reason
	}
	return err
}

func (s *Service) authorizeReading(ctx context.Context, p access.Principal, op access.WriteOp, r *Reading, pt *patient.Patient) error {
	target := pt.Target()
	err := access.AuthorizeWrite(p, op, access.ReadingTarget{ReadingID: r.ID, PatientID: r.PatientID, Patient: &target})
	if errors.Is(err, access.ErrForbidden) {
		denied(ctx, p, op, pt.ID, r.ID)
	}
	return err
}

func denied(ctx context.Context, p access.Principal, op access.WriteOp, patientID, readingID uuid.UUID) {
	evt := zerolog.Ctx(ctx).Warn().
		Str("principal", string(p.ID)).
		Str("patient_id", patientID.String()).
		Str("op", string(op))
	if readingID != uuid.Nil {
		evt = evt.Str("reading_id", readingID.String())
	}
	evt.Msg("reading write denied")
}
