package resident

import (
	"context"

	"github.com/rms-hub/residency-hub/internal/domain/shared"
)

// Repository - чтение резидентов и программ.
type Repository interface {
	// GetByID возвращает ErrResidentNotFound, если резидента нет.
	GetByID(ctx context.Context, id shared.ResidentID) (*Resident, error)

	// ListActive возвращает резидентов со статусом active в порядке SortForRoster.
	// Пустой programID означает все программы.
	ListActive(ctx context.Context, programID shared.ProgramID) ([]Resident, error)

	// GetProgram возвращает ErrProgramNotFound, если программы нет.
	GetProgram(ctx context.Context, id shared.ProgramID) (*Program, error)
}
