package query

import (
	"context"

	"github.com/rms-hub/residency-hub/internal/domain/assessment"
	"github.com/rms-hub/residency-hub/internal/domain/epa"
	"github.com/rms-hub/residency-hub/internal/domain/faculty"
	"github.com/rms-hub/residency-hub/internal/domain/resident"
	"github.com/rms-hub/residency-hub/internal/domain/shared"
	"github.com/rms-hub/residency-hub/internal/domain/site"
)

// Catalog - справочники, из которых берутся имена для ответов.
type Catalog struct {
	EPAs      epa.Repository
	Residents resident.Repository
	Faculty   faculty.Repository
	Sites     site.Repository
}

// enricher дополняет оценки именами. Справочники читаются один раз на ключ
// в пределах одного запроса.
type enricher struct {
	cat       Catalog
	epas      map[shared.EPAID]*epa.EPA
	residents map[shared.ResidentID]*resident.Resident
	faculty   map[shared.FacultyID]*faculty.Faculty
	sites     map[shared.ClinicalSiteID]*site.ClinicalSite
}

func newEnricher(cat Catalog) *enricher {
	return &enricher{
		cat:       cat,
		epas:      make(map[shared.EPAID]*epa.EPA),
		residents: make(map[shared.ResidentID]*resident.Resident),
		faculty:   make(map[shared.FacultyID]*faculty.Faculty),
		sites:     make(map[shared.ClinicalSiteID]*site.ClinicalSite),
	}
}

// memo читает значение через load один раз. Отсутствующая запись
// запоминается как nil и не считается ошибкой.
func memo[K comparable, V any](ctx context.Context, cache map[K]*V, key K, load func(context.Context, K) (*V, error)) (*V, error) {
	if v, ok := cache[key]; ok {
		return v, nil
	}
	v, err := load(ctx, key)
	switch {
	case err == nil:
	case shared.IsNotFound(err):
		v = nil
	default:
		return nil, err
	}
	cache[key] = v
	return v, nil
}

func (e *enricher) one(ctx context.Context, a *assessment.Assessment) (AssessmentDTO, error) {
	dto := newAssessmentDTO(a)

	ep, err := memo(ctx, e.epas, a.EPAID, e.cat.EPAs.GetByID)
	if err != nil {
		return dto, err
	}
	if ep != nil {
		dto.EPANumber = ep.ID.String()
		dto.EPAName = ep.Name
		dto.EPACategory = string(ep.Category)
	}

	f, err := memo(ctx, e.faculty, a.AssessorID, e.cat.Faculty.GetByID)
	if err != nil {
		return dto, err
	}
	if f != nil {
		dto.FacultyFirstName = f.FirstName
		dto.FacultyLastName = f.LastName
	}

	r, err := memo(ctx, e.residents, a.ResidentID, e.cat.Residents.GetByID)
	if err != nil {
		return dto, err
	}
	if r != nil {
		dto.ResidentFirstName = r.FirstName
		dto.ResidentLastName = r.LastName
		dto.PGYLevel = r.PGYLevel.String()
	}

	if id := a.Context.ClinicalSiteID; id != nil {
		s, err := memo(ctx, e.sites, *id, e.cat.Sites.GetByID)
		if err != nil {
			return dto, err
		}
		if s != nil {
			name := s.Name
			dto.SiteName = &name
		}
	}
	return dto, nil
}

func (e *enricher) all(ctx context.Context, list []*assessment.Assessment) ([]AssessmentDTO, error) {
	out := make([]AssessmentDTO, 0, len(list))
	for _, a := range list {
		dto, err := e.one(ctx, a)
		if err != nil {
			return nil, err
		}
		out = append(out, dto)
	}
	return out, nil
}
