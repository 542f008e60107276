// Package gormstore is the embedded SQLite backend built on gorm. It serves
// DB_DRIVER=sqlite and keeps the same schema names as the PostgreSQL backend.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/rms-hub/residency-hub/internal/domain/assessment"
	"github.com/rms-hub/residency-hub/internal/domain/epa"
	"github.com/rms-hub/residency-hub/internal/domain/faculty"
	"github.com/rms-hub/residency-hub/internal/domain/resident"
	"github.com/rms-hub/residency-hub/internal/domain/shared"
	"github.com/rms-hub/residency-hub/internal/domain/site"
	"github.com/rms-hub/residency-hub/internal/infrastructure/persistence"
	"github.com/rms-hub/residency-hub/internal/infrastructure/persistence/seed"
	"github.com/rms-hub/residency-hub/pkg/logger"
)

// Store wraps a gorm connection to a SQLite file (or ":memory:").
type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

var _ persistence.Backend = (*Store)(nil)

// Open connects to path and migrates the schema.
func Open(path string, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         newQueryLogger(log),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gormstore: %w", err)
	}
	// SQLite serialises writers; an in-memory database also exists per connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("gormstore: migrate: %w", err)
	}
	return &Store{db: db, log: log.With(logger.Component("gormstore"))}, nil
}

// EnableQueryLog logs every statement at debug level.
func (s *Store) EnableQueryLog() {
	s.db.Logger = s.db.Logger.LogMode(gormLogger.Info)
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Repositories() persistence.Repositories {
	return persistence.Repositories{
		Assessments:  &AssessmentRepo{db: s.db},
		EPAs:         &EPARepo{db: s.db},
		Requirements: &RequirementRepo{db: s.db},
		Residents:    &ResidentRepo{db: s.db},
		Faculty:      &FacultyRepo{db: s.db},
		Sites:        &SiteRepo{db: s.db},
	}
}

// Seed upserts ds. Requirements of every program present in ds are replaced;
// existing assessments are left as they are.
func (s *Store) Seed(ctx context.Context, ds seed.Dataset) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := func(v any) error {
			return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(v).Error
		}

		for _, p := range ds.Programs {
			m := programModel{ID: p.ID.String(), Name: p.Name, SpecialtyCode: string(p.SpecialtyCode)}
			if err := upsert(&m); err != nil {
				return fmt.Errorf("seed program %s: %w", p.ID, err)
			}
		}
		for _, e := range ds.EPAs {
			m := epaModel{
				ID: int(e.ID), SpecialtyCode: string(e.SpecialtyCode), Name: e.Name, ShortName: e.ShortName,
				Description: e.Description, Category: string(e.Category), DisplayOrder: e.DisplayOrder, Active: e.Active,
			}
			if err := upsert(&m); err != nil {
				return fmt.Errorf("seed epa %d: %w", e.ID, err)
			}
		}

		replaced := map[shared.ProgramID]bool{}
		for _, r := range ds.Requirements {
			if !replaced[r.ProgramID] {
				if err := tx.Where("program_id = ?", r.ProgramID.String()).Delete(&requirementModel{}).Error; err != nil {
					return fmt.Errorf("clear requirements: %w", err)
				}
				replaced[r.ProgramID] = true
			}
			m := requirementModel{ProgramID: r.ProgramID.String(), EPAID: int(r.EPAID), TargetCount: r.TargetCount, TargetLevel: int(r.TargetLevel)}
			if r.TrainingLevel != nil {
				n := r.TrainingLevel.Int()
				m.TrainingLevel = &n
			}
			if err := tx.Create(&m).Error; err != nil {
				return fmt.Errorf("seed requirement epa %d: %w", r.EPAID, err)
			}
		}

		for _, r := range ds.Residents {
			m := residentModel{
				ID: r.ID.String(), ProgramID: r.ProgramID.String(), FirstName: r.FirstName, LastName: r.LastName,
				Email: r.Email, PGYLevel: r.PGYLevel.Int(), Status: string(r.Status), MedicalSchool: r.MedicalSchool,
			}
			if err := upsert(&m); err != nil {
				return fmt.Errorf("seed resident %s: %w", r.ID, err)
			}
		}
		for _, f := range ds.Faculty {
			m := facultyModel{
				ID: f.ID.String(), ProgramID: f.ProgramID.String(), FirstName: f.FirstName, LastName: f.LastName,
				Email: f.Email, Rank: string(f.Rank), IsCoreFaculty: f.IsCoreFaculty, Active: f.Active,
			}
			if err := upsert(&m); err != nil {
				return fmt.Errorf("seed faculty %s: %w", f.ID, err)
			}
		}
		for _, c := range ds.Sites {
			m := siteModel{
				ID: c.ID.String(), Name: c.Name, Classification: string(c.Classification),
				InstitutionName: c.InstitutionName, Active: c.Active,
			}
			if err := upsert(&m); err != nil {
				return fmt.Errorf("seed clinical site %s: %w", c.ID, err)
			}
		}

		for _, a := range ds.Assessments {
			m := fromAssessment(a)
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
				return fmt.Errorf("seed assessment %s: %w", a.ID, err)
			}
		}
		return nil
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ASSESSMENTS
// ══════════════════════════════════════════════════════════════════════════════

type AssessmentRepo struct {
	db *gorm.DB
}

func (r *AssessmentRepo) Create(ctx context.Context, a *assessment.Assessment) error {
	m := fromAssessment(a)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAssessmentExists
		}
		return fmt.Errorf("failed to create assessment: %w", err)
	}
	return nil
}

func (r *AssessmentRepo) GetByID(ctx context.Context, id shared.AssessmentID) (*assessment.Assessment, error) {
	var m assessmentModel
	err := r.db.WithContext(ctx).Where("id = ? AND is_deleted = ?", id.String(), false).Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}
	return m.toDomain(), nil
}

func (r *AssessmentRepo) List(ctx context.Context, f assessment.Filter) ([]*assessment.Assessment, error) {
	f = f.Normalize()
	q := r.db.WithContext(ctx).Where("is_deleted = ?", false)
	if f.ResidentID != "" {
		q = q.Where("resident_id = ?", f.ResidentID.String())
	}
	if f.AssessorID != "" {
		q = q.Where("assessor_id = ?", f.AssessorID.String())
	}
	if f.EPAID != 0 {
		q = q.Where("epa_id = ?", int(f.EPAID))
	}
	if f.OnlyUnacknowledged {
		q = q.Where("resident_acknowledged = ?", false)
	}
	return r.find(q.Order("assessment_date DESC, id DESC").Limit(f.Limit))
}

func (r *AssessmentRepo) ListByResident(ctx context.Context, residentID shared.ResidentID) ([]*assessment.Assessment, error) {
	q := r.db.WithContext(ctx).
		Where("resident_id = ? AND is_deleted = ?", residentID.String(), false).
		Order("assessment_date DESC, id DESC")
	return r.find(q)
}

func (r *AssessmentRepo) find(q *gorm.DB) ([]*assessment.Assessment, error) {
	var rows []assessmentModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	out := make([]*assessment.Assessment, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (r *AssessmentRepo) Acknowledge(ctx context.Context, id shared.AssessmentID, at time.Time) (*assessment.Assessment, error) {
	at = at.UTC()
	return r.update(ctx, id, map[string]any{
		"resident_acknowledged":    true,
		"resident_acknowledged_at": gorm.Expr("MAX(COALESCE(resident_acknowledged_at, ?), ?)", at, at),
		"updated_at":               at,
	})
}

func (r *AssessmentRepo) SoftDelete(ctx context.Context, id shared.AssessmentID, by string, at time.Time) (*assessment.Assessment, error) {
	at = at.UTC()
	var deletedBy *string
	if by != "" {
		deletedBy = &by
	}
	return r.update(ctx, id, map[string]any{
		"is_deleted": true,
		"deleted_at": at,
		"deleted_by": deletedBy,
		"updated_at": at,
	})
}

func (r *AssessmentRepo) update(ctx context.Context, id shared.AssessmentID, values map[string]any) (*assessment.Assessment, error) {
	var out assessmentModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&assessmentModel{}).
			Where("id = ? AND is_deleted = ?", id.String(), false).
			Updates(values)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return shared.ErrAssessmentNotFound
		}
		return tx.Where("id = ?", id.String()).Take(&out).Error
	})
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update assessment %s: %w", id, err)
	}
	return out.toDomain(), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG AND ROSTER
// ══════════════════════════════════════════════════════════════════════════════

type EPARepo struct {
	db *gorm.DB
}

func (r *EPARepo) ListActive(ctx context.Context, specialty shared.SpecialtyCode) ([]epa.EPA, error) {
	var rows []epaModel
	err := r.db.WithContext(ctx).
		Where("specialty_code = ? AND is_active = ?", string(specialty), true).
		Order("display_order, id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list epas: %w", err)
	}
	out := make([]epa.EPA, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (r *EPARepo) GetByID(ctx context.Context, id shared.EPAID) (*epa.EPA, error) {
	var m epaModel
	if err := r.db.WithContext(ctx).Take(&m, "id = ?", int(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrEPANotFound
		}
		return nil, fmt.Errorf("failed to get epa: %w", err)
	}
	e := m.toDomain()
	return &e, nil
}

type RequirementRepo struct {
	db *gorm.DB
}

func (r *RequirementRepo) ListRequirements(ctx context.Context, programID shared.ProgramID) ([]epa.Requirement, error) {
	var rows []requirementModel
	if err := r.db.WithContext(ctx).Where("program_id = ?", programID.String()).Order("epa_id, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list requirements: %w", err)
	}
	out := make([]epa.Requirement, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out, nil
}

type ResidentRepo struct {
	db *gorm.DB
}

func (r *ResidentRepo) GetByID(ctx context.Context, id shared.ResidentID) (*resident.Resident, error) {
	var m residentModel
	if err := r.db.WithContext(ctx).Take(&m, "id = ?", id.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrResidentNotFound
		}
		return nil, fmt.Errorf("failed to get resident: %w", err)
	}
	res := m.toDomain()
	return &res, nil
}

func (r *ResidentRepo) ListActive(ctx context.Context, programID shared.ProgramID) ([]resident.Resident, error) {
	q := r.db.WithContext(ctx).Where("status = ?", string(resident.StatusActive))
	if programID != "" {
		q = q.Where("program_id = ?", programID.String())
	}
	var rows []residentModel
	if err := q.Order("pgy_level DESC, last_name, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list residents: %w", err)
	}
	out := make([]resident.Resident, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (r *ResidentRepo) GetProgram(ctx context.Context, id shared.ProgramID) (*resident.Program, error) {
	var m programModel
	if err := r.db.WithContext(ctx).Take(&m, "id = ?", id.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrProgramNotFound
		}
		return nil, fmt.Errorf("failed to get program: %w", err)
	}
	return &resident.Program{ID: shared.ProgramID(m.ID), Name: m.Name, SpecialtyCode: shared.SpecialtyCode(m.SpecialtyCode)}, nil
}

type FacultyRepo struct {
	db *gorm.DB
}

func (r *FacultyRepo) GetByID(ctx context.Context, id shared.FacultyID) (*faculty.Faculty, error) {
	var m facultyModel
	if err := r.db.WithContext(ctx).Take(&m, "id = ?", id.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrFacultyNotFound
		}
		return nil, fmt.Errorf("failed to get faculty: %w", err)
	}
	f := m.toDomain()
	return &f, nil
}

func (r *FacultyRepo) ListActive(ctx context.Context) ([]faculty.Faculty, error) {
	var rows []facultyModel
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("last_name, first_name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list faculty: %w", err)
	}
	out := make([]faculty.Faculty, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out, nil
}

type SiteRepo struct {
	db *gorm.DB
}

func (r *SiteRepo) GetByID(ctx context.Context, id shared.ClinicalSiteID) (*site.ClinicalSite, error) {
	var m siteModel
	if err := r.db.WithContext(ctx).Take(&m, "id = ?", id.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrClinicalSiteMissing
		}
		return nil, fmt.Errorf("failed to get clinical site: %w", err)
	}
	c := m.toDomain()
	return &c, nil
}

func (r *SiteRepo) ListActive(ctx context.Context) ([]site.ClinicalSite, error) {
	var rows []siteModel
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("site_classification, name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list clinical sites: %w", err)
	}
	out := make([]site.ClinicalSite, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out, nil
}
