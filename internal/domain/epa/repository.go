package epa

import (
	"context"

	"github.com/rms-hub/residency-hub/internal/domain/shared"
)

// Repository - доступ к справочнику EPA.
type Repository interface {
	// ListActive возвращает активные EPA специальности в порядке DisplayOrder.
	ListActive(ctx context.Context, specialty shared.SpecialtyCode) ([]EPA, error)

	// GetByID возвращает ErrEPANotFound, если EPA не существует.
	GetByID(ctx context.Context, id shared.EPAID) (*EPA, error)
}

// RequirementRepository - каталог требований программы.
type RequirementRepository interface {
	// ListRequirements возвращает все строки требований программы.
	// Выбор применимой строки делает Resolve.
	ListRequirements(ctx context.Context, programID shared.ProgramID) ([]Requirement, error)
}
