package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/vitals/internal/domain/access"
	"github.com/ehr/vitals/internal/domain/account"
	"github.com/ehr/vitals/internal/platform/db"
)

// Registrar records the creating principal so it can be referenced as owner.
type Registrar interface {
	Register(ctx context.Context, p access.Principal) (*account.Account, error)
}

type Service struct {
	repo      Repository
	registrar Registrar
	inTx      db.TxRunner
}

func NewService(repo Repository, registrar Registrar, inTx db.TxRunner) *Service {
	return &Service{repo: repo, registrar: registrar, inTx: inTx}
}

// Create stores a new patient owned by the caller. Registering the caller
// and inserting the patient happen in one transaction.
func (s *Service) Create(ctx context.Context, p access.Principal, in Input) (*Patient, error) {
	if !p.Authenticated() {
		return nil, access.ErrUnauthenticated
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	pt := &Patient{ID: uuid.New(), OwnerID: access.OwnerRef(p.ID)}
	in.applyTo(pt)
	if err := s.authorize(ctx, p, access.Create, pt); err != nil {
		return nil, err
	}

	err := s.inTx(ctx, func(ctx context.Context) error {
		if _, err := s.registrar.Register(ctx, p); err != nil {
			return err
		}
		return s.repo.Create(ctx, pt)
	})
	if err != nil {
		return nil, err
	}
	return pt, nil
}

// Get returns the patient if it is within the caller's scope. Patients
// outside the scope are reported as not found.
func (s *Service) Get(ctx context.Context, p access.Principal, id uuid.UUID) (*Patient, error) {
	scope, err := ScopePatients(p, Filters{})
	if err != nil {
		return nil, err
	}
	pt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scope.Matches(pt) || !access.CanAccess(p, access.Read, pt.Target()) {
		return nil, access.NotFound("patient", id.String())
	}
	return pt, nil
}

// Update replaces the demographic fields. Ownership is preserved.
// Lookup and permission are checked before the payload is validated.
func (s *Service) Update(ctx context.Context, p access.Principal, id uuid.UUID, in Input) (*Patient, error) {
	pt, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, p, access.Update, pt); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	in.applyTo(pt)
	if err := s.repo.Update(ctx, pt); err != nil {
		return nil, err
	}
	return pt, nil
}

// Delete removes the patient and, through the foreign key, its readings.
func (s *Service) Delete(ctx context.Context, p access.Principal, id uuid.UUID) error {
	pt, err := s.Get(ctx, p, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, p, access.Delete, pt); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, p access.Principal, f Filters, limit, offset int) ([]*Patient, int, error) {
	scope, err := ScopePatients(p, f)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.Search(ctx, scope, limit, offset)
}

func (s *Service) authorize(ctx context.Context, p access.Principal, op access.WriteOp, pt *Patient) error {
	err := access.AuthorizeWrite(p, op, pt.Target())
	if errors.Is(err, access.ErrForbidden) {
		zerolog.Ctx(ctx).Warn().
			Str("principal", string(p.ID)).
			Str("patient_id", pt.ID.String()).
			Str("op", string(op)).
			Msg("patient write denied")
	}
	return err
}
