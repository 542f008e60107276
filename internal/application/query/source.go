package query

import (
	"context"
	"fmt"

	"github.com/rms-hub/residency-hub/internal/domain/assessment"
	"github.com/rms-hub/residency-hub/internal/domain/epa"
	"github.com/rms-hub/residency-hub/internal/domain/progress"
	"github.com/rms-hub/residency-hub/internal/domain/resident"
	"github.com/rms-hub/residency-hub/internal/domain/shared"
)

// Source - порты чтения, из которых считается прогресс.
type Source struct {
	Residents    resident.Repository
	EPAs         epa.Repository
	Requirements epa.RequirementRepository
	Assessments  assessment.Repository
}

// computed - результат расчёта прогресса одного резидента.
type computed struct {
	Resident resident.Resident
	Rows     []progress.EPAProgress
	Summary  progress.Summary
}

// lookupResident возвращает резидента, для которого можно считать прогресс.
// Отчисленный резидент неотличим от отсутствующего.
func (s Source) lookupResident(ctx context.Context, id shared.ResidentID) (*resident.Resident, error) {
	if !id.IsValid() {
		return nil, shared.ErrResidentNotFound
	}
	r, err := s.Residents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.IsTrackable() {
		return nil, shared.ErrResidentNotFound
	}
	return r, nil
}

// compute собирает каталог, требования и оценки резидента и агрегирует их.
// Любая ошибка чтения прерывает расчёт без частичного результата.
func (s Source) compute(ctx context.Context, id shared.ResidentID) (*computed, error) {
	r, err := s.lookupResident(ctx, id)
	if err != nil {
		return nil, err
	}
	prog, err := s.Residents.GetProgram(ctx, r.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("load program %s: %w", r.ProgramID, err)
	}
	epas, err := s.EPAs.ListActive(ctx, prog.SpecialtyCode)
	if err != nil {
		return nil, fmt.Errorf("load epa catalog: %w", err)
	}
	reqs, err := s.Requirements.ListRequirements(ctx, r.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("load requirements: %w", err)
	}
	list, err := s.Assessments.ListByResident(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("load assessments: %w", err)
	}

	rows := progress.Aggregate(epas, list, reqs, r.PGYLevel)
	return &computed{
		Resident: *r,
		Rows:     rows,
		Summary:  progress.Summarize(rows, list),
	}, nil
}

func (c *computed) dto() *ResidentProgressDTO {
	out := &ResidentProgressDTO{
		Resident: newResidentDTO(c.Resident),
		Progress: make([]EPAProgressDTO, len(c.Rows)),
		Stats:    newStatsDTO(c.Summary),
	}
	for i, row := range c.Rows {
		out.Progress[i] = newEPAProgressDTO(row)
	}
	return out
}
