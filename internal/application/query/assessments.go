package query

import (
	"context"
	"fmt"

	"github.com/rms-hub/residency-hub/internal/domain/assessment"
	"github.com/rms-hub/residency-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASSESSMENT QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// ListAssessmentsQuery - фильтр списка оценок. Пустые поля не фильтруют.
type ListAssessmentsQuery struct {
	ResidentID string
	AssessorID string
	EPAID      int
	// Limit: 0 - значение по умолчанию (50), больше 500 обрезается.
	Limit int
}

// Validate проверяет параметры запроса.
func (q ListAssessmentsQuery) Validate() error {
	ve := shared.NewValidationError("query.ListAssessments")
	if q.EPAID < 0 {
		ve.Add("epa_id", "must be a positive integer")
	}
	if q.Limit < 0 {
		ve.Add("limit", "must not be negative")
	}
	return ve.OrNil()
}

type GetAssessmentQuery struct {
	AssessmentID string
}

type ListUnacknowledgedQuery struct {
	ResidentID string
}

// AssessmentsHandler отвечает на запросы списка и карточки оценки.
type AssessmentsHandler struct {
	assessments assessment.Repository
	catalog     Catalog
	source      Source
}

func NewAssessmentsHandler(assessments assessment.Repository, catalog Catalog) *AssessmentsHandler {
	return &AssessmentsHandler{
		assessments: assessments,
		catalog:     catalog,
		source:      Source{Residents: catalog.Residents, Assessments: assessments},
	}
}

// List возвращает оценки по фильтру, новые первыми.
func (h *AssessmentsHandler) List(ctx context.Context, q ListAssessmentsQuery) ([]AssessmentDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	f := assessment.Filter{
		ResidentID: shared.ResidentID(q.ResidentID),
		AssessorID: shared.FacultyID(q.AssessorID),
		EPAID:      shared.EPAID(q.EPAID),
		Limit:      q.Limit,
	}.Normalize()

	list, err := h.assessments.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	return newEnricher(h.catalog).all(ctx, list)
}

// Get возвращает одну оценку или ErrAssessmentNotFound.
func (h *AssessmentsHandler) Get(ctx context.Context, q GetAssessmentQuery) (*AssessmentDTO, error) {
	id := shared.AssessmentID(q.AssessmentID)
	if !id.IsValid() {
		return nil, shared.ErrAssessmentNotFound
	}
	a, err := h.assessments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dto, err := newEnricher(h.catalog).one(ctx, a)
	if err != nil {
		return nil, err
	}
	return &dto, nil
}

// Unacknowledged возвращает неподтверждённые оценки резидента, новые первыми.
// Список не ограничен лимитом.
func (h *AssessmentsHandler) Unacknowledged(ctx context.Context, q ListUnacknowledgedQuery) ([]AssessmentDTO, error) {
	r, err := h.source.lookupResident(ctx, shared.ResidentID(q.ResidentID))
	if err != nil {
		return nil, err
	}
	all, err := h.assessments.ListByResident(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("list assessments of %s: %w", r.ID, err)
	}
	pending := make([]*assessment.Assessment, 0, len(all))
	f := assessment.Filter{ResidentID: r.ID, OnlyUnacknowledged: true}
	for _, a := range all {
		if f.Matches(a) {
			pending = append(pending, a)
		}
	}
	assessment.SortNewestFirst(pending)
	return newEnricher(h.catalog).all(ctx, pending)
}
