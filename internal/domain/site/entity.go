// Package site содержит модель клинической базы.
package site

import (
	"context"
	"sort"

	"github.com/rms-hub/residency-hub/internal/domain/shared"
)

// Classification - тип клинической базы.
type Classification string

const (
	ClassPrimary   Classification = "primary"
	ClassAffiliate Classification = "affiliate"
	ClassCommunity Classification = "community"
	ClassVA        Classification = "va"
)

// ClinicalSite - место, где проходит обучение.
type ClinicalSite struct {
	ID              shared.ClinicalSiteID
	Name            string
	Classification  Classification
	InstitutionName string
	Active          bool
}

// SortForDisplay сортирует по типу, затем по названию.
func SortForDisplay(list []ClinicalSite) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Classification != list[j].Classification {
			return list[i].Classification < list[j].Classification
		}
		return list[i].Name < list[j].Name
	})
}

// Repository - чтение клинических баз.
type Repository interface {
	GetByID(ctx context.Context, id shared.ClinicalSiteID) (*ClinicalSite, error)
	ListActive(ctx context.Context) ([]ClinicalSite, error)
}
