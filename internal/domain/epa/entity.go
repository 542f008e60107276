// Package epa содержит справочник EPA (Entrustable Professional Activities)
// и требования программы к количеству и уровню оценок.
package epa

import (
	"sort"

	"github.com/rms-hub/residency-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATEGORY
// ══════════════════════════════════════════════════════════════════════════════

// Category группирует EPA по фазе работы с пациентом.
type Category string

const (
	CategoryPreoperative   Category = "preoperative"
	CategoryIntraoperative Category = "intraoperative"
	CategoryPostoperative  Category = "postoperative"
	CategoryLongitudinal   Category = "longitudinal"
	CategoryProfessional   Category = "professional"
)

// IsValid проверяет, что категория известна.
func (c Category) IsValid() bool {
	switch c {
	case CategoryPreoperative, CategoryIntraoperative, CategoryPostoperative,
		CategoryLongitudinal, CategoryProfessional:
		return true
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// EPA
// ══════════════════════════════════════════════════════════════════════════════

// EPA - определение профессиональной активности. Справочные данные:
// не удаляются, только деактивируются.
type EPA struct {
	ID            shared.EPAID
	SpecialtyCode shared.SpecialtyCode
	Name          string
	ShortName     string
	Description   string
	Category      Category
	// DisplayOrder уникален в рамках специальности и задаёт порядок вывода.
	DisplayOrder int
	Active       bool
}

// SortByDisplayOrder сортирует EPA по DisplayOrder, затем по ID.
func SortByDisplayOrder(epas []EPA) {
	sort.SliceStable(epas, func(i, j int) bool {
		if epas[i].DisplayOrder != epas[j].DisplayOrder {
			return epas[i].DisplayOrder < epas[j].DisplayOrder
		}
		return epas[i].ID < epas[j].ID
	})
}

// ActiveOnly возвращает только активные EPA, сохраняя порядок.
func ActiveOnly(epas []EPA) []EPA {
	out := make([]EPA, 0, len(epas))
	for _, e := range epas {
		if e.Active {
			out = append(out, e)
		}
	}
	return out
}
