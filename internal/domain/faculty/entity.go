// Package faculty содержит модель преподавателя (оценщика).
package faculty

import (
	"context"
	"sort"
	"strings"

	"github.com/rms-hub/residency-hub/internal/domain/shared"
)

// Rank - академическое звание.
type Rank string

const (
	RankClinicalInstructor Rank = "clinical_instructor"
	RankInstructor         Rank = "instructor"
	RankAssistantProfessor Rank = "assistant_professor"
	RankAssociateProfessor Rank = "associate_professor"
	RankProfessor          Rank = "professor"
)

// Faculty - преподаватель, который может оценивать резидентов.
type Faculty struct {
	ID            shared.FacultyID
	ProgramID     shared.ProgramID
	FirstName     string
	LastName      string
	Email         string
	Rank          Rank
	IsCoreFaculty bool
	Active        bool
}

func (f Faculty) FullName() string {
	return strings.TrimSpace(f.FirstName + " " + f.LastName)
}

// SortByLastName сортирует по фамилии, затем по имени.
func SortByLastName(list []Faculty) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].LastName != list[j].LastName {
			return list[i].LastName < list[j].LastName
		}
		return list[i].FirstName < list[j].FirstName
	})
}

// Repository - чтение преподавателей.
type Repository interface {
	// GetByID возвращает ErrFacultyNotFound, если записи нет.
	GetByID(ctx context.Context, id shared.FacultyID) (*Faculty, error)
	// ListActive возвращает активных преподавателей в порядке SortByLastName.
	ListActive(ctx context.Context) ([]Faculty, error)
}
