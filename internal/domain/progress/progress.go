// Package progress считает прогресс резидента по EPA: распределение оценок
// по уровням, максимальный уровень, дату последней оценки и выполнение
// применимого требования. Все функции чистые и пересчитываются на каждый запрос.
package progress

import (
	"time"

	"github.com/rms-hub/residency-hub/internal/domain/assessment"
	"github.com/rms-hub/residency-hub/internal/domain/epa"
	"github.com/rms-hub/residency-hub/internal/domain/shared"
)

// LevelCounts - количество оценок на каждом уровне 1..5.
type LevelCounts struct {
	Level1 int
	Level2 int
	Level3 int
	Level4 int
	Level5 int
}

// Sum возвращает общее число оценок.
func (c LevelCounts) Sum() int {
	return c.Level1 + c.Level2 + c.Level3 + c.Level4 + c.Level5
}

// AtOrAbove считает оценки с уровнем >= level.
func (c LevelCounts) AtOrAbove(level shared.EntrustmentLevel) int {
	n := 0
	for _, l := range shared.AllEntrustmentLevels() {
		if l >= level {
			n += c.Get(l)
		}
	}
	return n
}

// Get возвращает счётчик для уровня.
func (c LevelCounts) Get(level shared.EntrustmentLevel) int {
	switch level {
	case shared.LevelObserve:
		return c.Level1
	case shared.LevelDirect:
		return c.Level2
	case shared.LevelIndirect:
		return c.Level3
	case shared.LevelAvailable:
		return c.Level4
	case shared.LevelIndependent:
		return c.Level5
	}
	return 0
}

func (c *LevelCounts) add(level shared.EntrustmentLevel) {
	switch level {
	case shared.LevelObserve:
		c.Level1++
	case shared.LevelDirect:
		c.Level2++
	case shared.LevelIndirect:
		c.Level3++
	case shared.LevelAvailable:
		c.Level4++
	case shared.LevelIndependent:
		c.Level5++
	}
}

// RequirementStatus - снимок применимого требования и его выполнения.
type RequirementStatus struct {
	// TrainingLevel == nil для требования к выпуску.
	TrainingLevel *shared.TrainingLevel
	TargetCount   int
	TargetLevel   shared.EntrustmentLevel
	// CurrentCount - число оценок с уровнем >= TargetLevel.
	CurrentCount int
	IsMet        bool
	Deficit      int
}

// EPAProgress - агрегат по одной EPA.
type EPAProgress struct {
	EPA    epa.EPA
	Total  int
	Counts LevelCounts
	// Highest и LastAssessment равны nil, если Total == 0.
	Highest        *shared.EntrustmentLevel
	LastAssessment *time.Time
	// Requirement равен nil, если требование не найдено.
	Requirement *RequirementStatus
}

// Evaluate сравнивает распределение с требованием.
func Evaluate(req epa.Requirement, counts LevelCounts) RequirementStatus {
	current := counts.AtOrAbove(req.TargetLevel)
	deficit := req.TargetCount - current
	if deficit < 0 {
		deficit = 0
	}
	return RequirementStatus{
		TrainingLevel: req.TrainingLevel,
		TargetCount:   req.TargetCount,
		TargetLevel:   req.TargetLevel,
		CurrentCount:  current,
		IsMet:         current >= req.TargetCount,
		Deficit:       deficit,
	}
}

// Aggregate строит по одной записи на каждую активную EPA из epas в порядке
// DisplayOrder, включая EPA без оценок. Удалённые оценки и оценки по EPA вне
// каталога в строки не попадают.
func Aggregate(epas []epa.EPA, assessments []*assessment.Assessment, requirements []epa.Requirement, level shared.TrainingLevel) []EPAProgress {
	catalog := epa.ActiveOnly(epas)
	epa.SortByDisplayOrder(catalog)

	index := make(map[shared.EPAID]int, len(catalog))
	out := make([]EPAProgress, len(catalog))
	for i, e := range catalog {
		index[e.ID] = i
		out[i] = EPAProgress{EPA: e}
	}

	for _, a := range assessments {
		if a == nil || a.Deleted {
			continue
		}
		i, ok := index[a.EPAID]
		if !ok {
			continue
		}
		p := &out[i]
		p.Total++
		p.Counts.add(a.Level)

		if p.Highest == nil || a.Level > *p.Highest {
			lvl := a.Level
			p.Highest = &lvl
		}
		if p.LastAssessment == nil || a.AssessmentDate.After(*p.LastAssessment) {
			ts := a.AssessmentDate
			p.LastAssessment = &ts
		}
	}

	resolved := epa.ResolveAll(requirements, level)
	for i := range out {
		req, ok := resolved[out[i].EPA.ID]
		if !ok {
			continue
		}
		status := Evaluate(req, out[i].Counts)
		out[i].Requirement = &status
	}
	return out
}
