package assessment

import (
	"context"
	"sort"
	"time"

	"github.com/rms-hub/residency-hub/internal/domain/shared"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Filter - условия выборки оценок. Пустые поля не фильтруют.
type Filter struct {
	ResidentID shared.ResidentID
	AssessorID shared.FacultyID
	EPAID      shared.EPAID
	// OnlyUnacknowledged оставляет только неподтверждённые.
	OnlyUnacknowledged bool
	Limit              int
}

// Normalize применяет лимит по умолчанию и верхнюю границу.
func (f Filter) Normalize() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	return f
}

// Matches проверяет оценку на соответствие фильтру (без учёта лимита).
// Удалённые оценки не проходят никогда.
func (f Filter) Matches(a *Assessment) bool {
	if a.Deleted {
		return false
	}
	if f.ResidentID != "" && a.ResidentID != f.ResidentID {
		return false
	}
	if f.AssessorID != "" && a.AssessorID != f.AssessorID {
		return false
	}
	if f.EPAID != 0 && a.EPAID != f.EPAID {
		return false
	}
	if f.OnlyUnacknowledged && a.Acknowledged {
		return false
	}
	return true
}

// SortNewestFirst сортирует по дате наблюдения по убыванию; при равенстве по ID.
func SortNewestFirst(list []*Assessment) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].AssessmentDate.Equal(list[j].AssessmentDate) {
			return list[i].AssessmentDate.After(list[j].AssessmentDate)
		}
		return list[i].ID > list[j].ID
	})
}

// Repository - хранилище оценок.
type Repository interface {
	// Create сохраняет новую оценку.
	// Возвращает ErrAssessmentExists при совпадении ID.
	Create(ctx context.Context, a *Assessment) error

	// GetByID возвращает ErrAssessmentNotFound для отсутствующей или удалённой оценки.
	GetByID(ctx context.Context, id shared.AssessmentID) (*Assessment, error)

	// List возвращает оценки по фильтру, новые первыми.
	List(ctx context.Context, f Filter) ([]*Assessment, error)

	// ListByResident возвращает все неудалённые оценки резидента без лимита.
	ListByResident(ctx context.Context, residentID shared.ResidentID) ([]*Assessment, error)

	// Acknowledge ставит acknowledged=true и acknowledged_at=at.
	// Возвращает обновлённую запись или ErrAssessmentNotFound.
	Acknowledge(ctx context.Context, id shared.AssessmentID, at time.Time) (*Assessment, error)

	// SoftDelete помечает оценку удалённой.
	// Возвращает ErrAssessmentNotFound, если она отсутствует или уже удалена.
	SoftDelete(ctx context.Context, id shared.AssessmentID, by string, at time.Time) (*Assessment, error)
}
