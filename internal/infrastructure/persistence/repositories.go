// Package persistence groups the storage backends. Each backend exposes the
// same set of domain repositories through Repositories.
package persistence

import (
	"context"

	"github.com/rms-hub/residency-hub/internal/domain/assessment"
	"github.com/rms-hub/residency-hub/internal/domain/epa"
	"github.com/rms-hub/residency-hub/internal/domain/faculty"
	"github.com/rms-hub/residency-hub/internal/domain/resident"
	"github.com/rms-hub/residency-hub/internal/domain/site"
	"github.com/rms-hub/residency-hub/internal/infrastructure/persistence/seed"
)

// Repositories is the full read/write surface used by the application layer.
type Repositories struct {
	Assessments  assessment.Repository
	EPAs         epa.Repository
	Requirements epa.RequirementRepository
	Residents    resident.Repository
	Faculty      faculty.Repository
	Sites        site.Repository
}

// Seeder loads a dataset into a backend. Loading is idempotent.
type Seeder interface {
	Seed(ctx context.Context, ds seed.Dataset) error
}

// Backend is an opened store.
type Backend interface {
	Seeder
	Repositories() Repositories
	Ping(ctx context.Context) error
	Close() error
}
