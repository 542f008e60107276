package query

import (
	"context"
	"fmt"

	"github.com/rms-hub/residency-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG QUERIES
// Справочники для форм: EPA, резиденты, преподаватели, клинические базы.
// ══════════════════════════════════════════════════════════════════════════════

type ListEPAsQuery struct {
	// Specialty по умолчанию general_surgery.
	Specialty string
}

type ListResidentsQuery struct {
	// ProgramID пустой - все программы.
	ProgramID string
}

// CatalogHandler отвечает на запросы справочников. Все списки содержат
// только активные записи.
type CatalogHandler struct {
	catalog Catalog
}

func NewCatalogHandler(catalog Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListEPAs возвращает EPA специальности в порядке display_order.
func (h *CatalogHandler) ListEPAs(ctx context.Context, q ListEPAsQuery) ([]EPADTO, error) {
	spec := shared.SpecialtyCode(q.Specialty)
	if spec == "" {
		spec = shared.SpecialtyGeneralSurgery
	}
	list, err := h.catalog.EPAs.ListActive(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("list epas: %w", err)
	}
	out := make([]EPADTO, len(list))
	for i, e := range list {
		out[i] = newEPADTO(e)
	}
	return out, nil
}

// ListResidents возвращает активных резидентов: старшие годы первыми, затем по фамилии.
func (h *CatalogHandler) ListResidents(ctx context.Context, q ListResidentsQuery) ([]ResidentDTO, error) {
	list, err := h.catalog.Residents.ListActive(ctx, shared.ProgramID(q.ProgramID))
	if err != nil {
		return nil, fmt.Errorf("list residents: %w", err)
	}
	out := make([]ResidentDTO, len(list))
	for i, r := range list {
		out[i] = newResidentDTO(r)
	}
	return out, nil
}

func (h *CatalogHandler) ListFaculty(ctx context.Context) ([]FacultyDTO, error) {
	list, err := h.catalog.Faculty.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list faculty: %w", err)
	}
	out := make([]FacultyDTO, len(list))
	for i, f := range list {
		out[i] = newFacultyDTO(f)
	}
	return out, nil
}

func (h *CatalogHandler) ListClinicalSites(ctx context.Context) ([]ClinicalSiteDTO, error) {
	list, err := h.catalog.Sites.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clinical sites: %w", err)
	}
	out := make([]ClinicalSiteDTO, len(list))
	for i, s := range list {
		out[i] = newClinicalSiteDTO(s)
	}
	return out, nil
}
