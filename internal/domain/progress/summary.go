package progress

import (
	"math"

	"github.com/rms-hub/residency-hub/internal/domain/assessment"
	"github.com/rms-hub/residency-hub/internal/domain/shared"
)

// Summary - сводная статистика резидента.
type Summary struct {
	TotalAssessments  int
	EPAsAssessed      int
	UniqueAssessors   int
	AvgLevel          float64
	RequirementsMet   int
	RequirementsTotal int
}

// Summarize сворачивает результат Aggregate. unique_assessors и avg_level
// считаются по сырым (неудалённым) оценкам, поэтому EPA с большим числом
// оценок весит в среднем больше.
func Summarize(rows []EPAProgress, assessments []*assessment.Assessment) Summary {
	var s Summary
	for _, p := range rows {
		s.TotalAssessments += p.Total
		if p.Total > 0 {
			s.EPAsAssessed++
		}
		if p.Requirement != nil {
			s.RequirementsTotal++
			if p.Requirement.IsMet {
				s.RequirementsMet++
			}
		}
	}

	assessors := make(map[shared.FacultyID]struct{})
	sum, n := 0, 0
	for _, a := range assessments {
		if a == nil || a.Deleted {
			continue
		}
		assessors[a.AssessorID] = struct{}{}
		sum += int(a.Level)
		n++
	}
	s.UniqueAssessors = len(assessors)
	if n > 0 {
		s.AvgLevel = RoundTenth(float64(sum) / float64(n))
	}
	return s
}

// RoundTenth округляет до одного знака, половину - от нуля.
func RoundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
