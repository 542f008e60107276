// Package resident содержит модель резидента и программы резидентуры.
package resident

import (
	"sort"
	"strings"

	"github.com/rms-hub/residency-hub/internal/domain/shared"
)

// Status - статус резидента в программе.
type Status string

const (
	StatusActive      Status = "active"
	StatusLeave       Status = "leave"
	StatusRemediation Status = "remediation"
	StatusCompleted   Status = "completed"
	StatusWithdrawn   Status = "withdrawn"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusLeave, StatusRemediation, StatusCompleted, StatusWithdrawn:
		return true
	}
	return false
}

// Resident - обучающийся врач.
type Resident struct {
	ID            shared.ResidentID
	ProgramID     shared.ProgramID
	FirstName     string
	LastName      string
	Email         string
	PGYLevel      shared.TrainingLevel
	Status        Status
	MedicalSchool string
}

// FullName возвращает "Имя Фамилия".
func (r Resident) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// IsTrackable сообщает, можно ли считать прогресс. Отчисленный резидент
// считается удалённым.
func (r Resident) IsTrackable() bool {
	return r.Status != StatusWithdrawn
}

// SortForRoster сортирует по убыванию PGY, затем по фамилии.
func SortForRoster(list []Resident) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].PGYLevel != list[j].PGYLevel {
			return list[i].PGYLevel > list[j].PGYLevel
		}
		if list[i].LastName != list[j].LastName {
			return list[i].LastName < list[j].LastName
		}
		return list[i].ID < list[j].ID
	})
}

// Program - программа резидентуры одной специальности.
type Program struct {
	ID            shared.ProgramID
	Name          string
	SpecialtyCode shared.SpecialtyCode
}
