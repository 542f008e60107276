// Package memory is an in-process store used by tests and by DB_DRIVER=memory.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rms-hub/residency-hub/internal/domain/assessment"
	"github.com/rms-hub/residency-hub/internal/domain/epa"
	"github.com/rms-hub/residency-hub/internal/domain/faculty"
	"github.com/rms-hub/residency-hub/internal/domain/resident"
	"github.com/rms-hub/residency-hub/internal/domain/shared"
	"github.com/rms-hub/residency-hub/internal/domain/site"
	"github.com/rms-hub/residency-hub/internal/infrastructure/persistence"
	"github.com/rms-hub/residency-hub/internal/infrastructure/persistence/seed"
)

// Store keeps every table in maps guarded by one RWMutex.
type Store struct {
	mu sync.RWMutex

	programs     map[shared.ProgramID]resident.Program
	epas         map[shared.EPAID]epa.EPA
	requirements []epa.Requirement
	residents    map[shared.ResidentID]resident.Resident
	faculty      map[shared.FacultyID]faculty.Faculty
	sites        map[shared.ClinicalSiteID]site.ClinicalSite
	assessments  map[shared.AssessmentID]*assessment.Assessment
}

var _ persistence.Backend = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		programs:    make(map[shared.ProgramID]resident.Program),
		epas:        make(map[shared.EPAID]epa.EPA),
		residents:   make(map[shared.ResidentID]resident.Resident),
		faculty:     make(map[shared.FacultyID]faculty.Faculty),
		sites:       make(map[shared.ClinicalSiteID]site.ClinicalSite),
		assessments: make(map[shared.AssessmentID]*assessment.Assessment),
	}
}

// NewSeeded creates a store loaded with seed.Default().
func NewSeeded() *Store {
	s := New()
	_ = s.Seed(context.Background(), seed.Default())
	return s
}

// Seed upserts ds. Requirements are replaced per program.
func (s *Store) Seed(_ context.Context, ds seed.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range ds.Programs {
		s.programs[p.ID] = p
	}
	for _, e := range ds.EPAs {
		s.epas[e.ID] = e
	}
	for _, r := range ds.Residents {
		s.residents[r.ID] = r
	}
	for _, f := range ds.Faculty {
		s.faculty[f.ID] = f
	}
	for _, c := range ds.Sites {
		s.sites[c.ID] = c
	}
	for _, a := range ds.Assessments {
		s.assessments[a.ID] = a.Clone()
	}

	if len(ds.Requirements) > 0 {
		replaced := make(map[shared.ProgramID]bool)
		for _, r := range ds.Requirements {
			replaced[r.ProgramID] = true
		}
		kept := s.requirements[:0:0]
		for _, r := range s.requirements {
			if !replaced[r.ProgramID] {
				kept = append(kept, r)
			}
		}
		s.requirements = append(kept, ds.Requirements...)
	}
	return nil
}

func (s *Store) Repositories() persistence.Repositories {
	return persistence.Repositories{
		Assessments:  AssessmentRepo{s},
		EPAs:         EPARepo{s},
		Requirements: RequirementRepo{s},
		Residents:    ResidentRepo{s},
		Faculty:      FacultyRepo{s},
		Sites:        SiteRepo{s},
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

// ─────────────────────────────────────────────────────────────────────────────
// Assessments
// ─────────────────────────────────────────────────────────────────────────────

type AssessmentRepo struct{ s *Store }

func (r AssessmentRepo) Create(ctx context.Context, a *assessment.Assessment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.assessments[a.ID]; exists {
		return shared.ErrAssessmentExists
	}
	r.s.assessments[a.ID] = a.Clone()
	return nil
}

func (r AssessmentRepo) GetByID(ctx context.Context, id shared.AssessmentID) (*assessment.Assessment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.assessments[id]
	if !ok || a.Deleted {
		return nil, shared.ErrAssessmentNotFound
	}
	return a.Clone(), nil
}

func (r AssessmentRepo) List(ctx context.Context, f assessment.Filter) ([]*assessment.Assessment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f = f.Normalize()
	out := r.s.filter(f.Matches)
	assessment.SortNewestFirst(out)
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r AssessmentRepo) ListByResident(ctx context.Context, residentID shared.ResidentID) ([]*assessment.Assessment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := r.s.filter(func(a *assessment.Assessment) bool {
		return !a.Deleted && a.ResidentID == residentID
	})
	assessment.SortNewestFirst(out)
	return out, nil
}

func (r AssessmentRepo) Acknowledge(ctx context.Context, id shared.AssessmentID, at time.Time) (*assessment.Assessment, error) {
	return r.mutate(ctx, id, func(a *assessment.Assessment) error { return a.Acknowledge(at) })
}

func (r AssessmentRepo) SoftDelete(ctx context.Context, id shared.AssessmentID, by string, at time.Time) (*assessment.Assessment, error) {
	return r.mutate(ctx, id, func(a *assessment.Assessment) error { return a.SoftDelete(by, at) })
}

func (r AssessmentRepo) mutate(ctx context.Context, id shared.AssessmentID, fn func(*assessment.Assessment) error) (*assessment.Assessment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assessments[id]
	if !ok || a.Deleted {
		return nil, shared.ErrAssessmentNotFound
	}
	if err := fn(a); err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

func (s *Store) filter(keep func(*assessment.Assessment) bool) []*assessment.Assessment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*assessment.Assessment, 0)
	for _, a := range s.assessments {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Catalog
// ─────────────────────────────────────────────────────────────────────────────

type EPARepo struct{ s *Store }

func (r EPARepo) ListActive(_ context.Context, specialty shared.SpecialtyCode) ([]epa.EPA, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]epa.EPA, 0, len(r.s.epas))
	for _, e := range r.s.epas {
		if e.Active && e.SpecialtyCode == specialty {
			out = append(out, e)
		}
	}
	epa.SortByDisplayOrder(out)
	return out, nil
}

func (r EPARepo) GetByID(_ context.Context, id shared.EPAID) (*epa.EPA, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.epas[id]
	if !ok {
		return nil, shared.ErrEPANotFound
	}
	return &e, nil
}

type RequirementRepo struct{ s *Store }

func (r RequirementRepo) ListRequirements(_ context.Context, programID shared.ProgramID) ([]epa.Requirement, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]epa.Requirement, 0)
	for _, req := range r.s.requirements {
		if req.ProgramID == programID {
			out = append(out, req)
		}
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Roster
// ─────────────────────────────────────────────────────────────────────────────

type ResidentRepo struct{ s *Store }

func (r ResidentRepo) GetByID(_ context.Context, id shared.ResidentID) (*resident.Resident, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	res, ok := r.s.residents[id]
	if !ok {
		return nil, shared.ErrResidentNotFound
	}
	return &res, nil
}

func (r ResidentRepo) ListActive(_ context.Context, programID shared.ProgramID) ([]resident.Resident, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]resident.Resident, 0, len(r.s.residents))
	for _, res := range r.s.residents {
		if res.Status != resident.StatusActive {
			continue
		}
		if programID != "" && res.ProgramID != programID {
			continue
		}
		out = append(out, res)
	}
	resident.SortForRoster(out)
	return out, nil
}

func (r ResidentRepo) GetProgram(_ context.Context, id shared.ProgramID) (*resident.Program, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.programs[id]
	if !ok {
		return nil, shared.ErrProgramNotFound
	}
	return &p, nil
}

type FacultyRepo struct{ s *Store }

func (r FacultyRepo) GetByID(_ context.Context, id shared.FacultyID) (*faculty.Faculty, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	f, ok := r.s.faculty[id]
	if !ok {
		return nil, shared.ErrFacultyNotFound
	}
	return &f, nil
}

func (r FacultyRepo) ListActive(context.Context) ([]faculty.Faculty, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]faculty.Faculty, 0, len(r.s.faculty))
	for _, f := range r.s.faculty {
		if f.Active {
			out = append(out, f)
		}
	}
	faculty.SortByLastName(out)
	return out, nil
}

type SiteRepo struct{ s *Store }

func (r SiteRepo) GetByID(_ context.Context, id shared.ClinicalSiteID) (*site.ClinicalSite, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.sites[id]
	if !ok {
		return nil, shared.ErrClinicalSiteMissing
	}
	return &c, nil
}

func (r SiteRepo) ListActive(context.Context) ([]site.ClinicalSite, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]site.ClinicalSite, 0, len(r.s.sites))
	for _, c := range r.s.sites {
		if c.Active {
			out = append(out, c)
		}
	}
	site.SortForDisplay(out)
	return out, nil
}
