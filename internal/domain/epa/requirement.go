package epa

import (
	"fmt"

	"github.com/rms-hub/residency-hub/internal/domain/shared"
)

// Requirement - планка для одной EPA на одном году обучения.
// TrainingLevel == nil означает требование к выпуску (graduation).
type Requirement struct {
	ProgramID     shared.ProgramID
	EPAID         shared.EPAID
	TrainingLevel *shared.TrainingLevel
	TargetCount   int
	TargetLevel   shared.EntrustmentLevel
}

// IsGraduation сообщает, является ли строка требованием к выпуску.
func (r Requirement) IsGraduation() bool {
	return r.TrainingLevel == nil
}

// Validate проверяет инварианты строки требования.
func (r Requirement) Validate() error {
	switch {
	case !r.ProgramID.IsValid():
		return shared.WrapError("epa", "ValidateRequirement", shared.ErrInvalidInput, "program is required", nil)
	case !r.EPAID.IsValid():
		return shared.WrapError("epa", "ValidateRequirement", shared.ErrInvalidInput, "epa is required", nil)
	case r.TargetCount < 1:
		return shared.WrapError("epa", "ValidateRequirement", shared.ErrValueOutOfRange,
			fmt.Sprintf("target count %d must be positive", r.TargetCount), nil)
	case !r.TargetLevel.IsValid():
		return shared.ErrInvalidEntrustment
	case r.TrainingLevel != nil && !r.TrainingLevel.IsValid():
		return shared.ErrInvalidPGYLevel
	}
	return nil
}

// Resolve выбирает применимое требование для EPA и года обучения:
// строка с точным совпадением года, иначе строка выпуска, иначе ничего.
// Строка выпуска никогда не суммируется со строкой года.
func Resolve(rows []Requirement, epaID shared.EPAID, level shared.TrainingLevel) (Requirement, bool) {
	var graduation *Requirement
	for i := range rows {
		r := &rows[i]
		if r.EPAID != epaID {
			continue
		}
		if r.TrainingLevel == nil {
			if graduation == nil {
				graduation = r
			}
			continue
		}
		if *r.TrainingLevel == level {
			return *r, true
		}
	}
	if graduation != nil {
		return *graduation, true
	}
	return Requirement{}, false
}

// ResolveAll выбирает требование для каждой EPA из rows за один проход, по
// тем же правилам, что и Resolve.
func ResolveAll(rows []Requirement, level shared.TrainingLevel) map[shared.EPAID]Requirement {
	exact := make(map[shared.EPAID]Requirement)
	graduation := make(map[shared.EPAID]Requirement)
	for _, r := range rows {
		switch {
		case r.TrainingLevel == nil:
			if _, ok := graduation[r.EPAID]; !ok {
				graduation[r.EPAID] = r
			}
		case *r.TrainingLevel == level:
			if _, ok := exact[r.EPAID]; !ok {
				exact[r.EPAID] = r
			}
		}
	}
	for id, r := range graduation {
		if _, ok := exact[id]; !ok {
			exact[id] = r
		}
	}
	return exact
}

// PGY - короткий конструктор указателя на год обучения.
func PGY(n int) *shared.TrainingLevel {
	l := shared.TrainingLevel(n)
	return &l
}
