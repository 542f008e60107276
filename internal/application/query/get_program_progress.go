package query

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/rms-hub/residency-hub/internal/domain/shared"
	"github.com/rms-hub/residency-hub/internal/observability"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRAM PROGRESS QUERY
// Сводка прогресса всех активных резидентов программы.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultProgramWorkers - число резидентов, считаемых одновременно.
const DefaultProgramWorkers = 4

type GetProgramProgressQuery struct {
	ProgramID string
}

// ResidentSummaryDTO - строка сводки программы.
type ResidentSummaryDTO struct {
	Resident ResidentDTO `json:"resident"`
	Stats    StatsDTO    `json:"stats"`
}

type ProgramProgressDTO struct {
	ProgramID   string               `json:"program_id"`
	ProgramName string               `json:"program_name"`
	Specialty   string               `json:"specialty"`
	Residents   []ResidentSummaryDTO `json:"residents"`
}

type GetProgramProgressHandler struct {
	source  Source
	workers int
}

// NewGetProgramProgressHandler создаёт обработчик; workers <= 0 означает DefaultProgramWorkers.
func NewGetProgramProgressHandler(source Source, workers int) *GetProgramProgressHandler {
	if workers <= 0 {
		workers = DefaultProgramWorkers
	}
	return &GetProgramProgressHandler{source: source, workers: workers}
}

// Handle считает резидентов параллельно и возвращает их в порядке списка
// резидентов. Первая ошибка отменяет остальные расчёты.
func (h *GetProgramProgressHandler) Handle(ctx context.Context, q GetProgramProgressQuery) (_ *ProgramProgressDTO, err error) {
	ctx, span := observability.StartSpan(ctx, "progress.GetProgramProgress", attribute.String("program_id", q.ProgramID))
	defer func() { observability.EndSpan(span, err) }()

	id := shared.ProgramID(q.ProgramID)
	if !id.IsValid() {
		return nil, shared.ErrProgramNotFound
	}
	prog, err := h.source.Residents.GetProgram(ctx, id)
	if err != nil {
		return nil, err
	}
	roster, err := h.source.Residents.ListActive(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list residents of %s: %w", id, err)
	}

	rows := make([]ResidentSummaryDTO, len(roster))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workers)
	for i := range roster {
		g.Go(func() error {
			c, err := h.source.compute(gctx, roster[i].ID)
			if err != nil {
				return fmt.Errorf("progress of %s: %w", roster[i].ID, err)
			}
			rows[i] = ResidentSummaryDTO{Resident: newResidentDTO(c.Resident), Stats: newStatsDTO(c.Summary)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &ProgramProgressDTO{
		ProgramID:   prog.ID.String(),
		ProgramName: prog.Name,
		Specialty:   string(prog.SpecialtyCode),
		Residents:   rows,
	}, nil
}
