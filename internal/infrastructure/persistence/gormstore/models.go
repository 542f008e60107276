package gormstore

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/rms-hub/residency-hub/internal/domain/assessment"
	"github.com/rms-hub/residency-hub/internal/domain/epa"
	"github.com/rms-hub/residency-hub/internal/domain/faculty"
	"github.com/rms-hub/residency-hub/internal/domain/resident"
	"github.com/rms-hub/residency-hub/internal/domain/shared"
	"github.com/rms-hub/residency-hub/internal/domain/site"
)

type programModel struct {
	ID            string `gorm:"column:id;primaryKey"`
	Name          string `gorm:"column:name;not null"`
	SpecialtyCode string `gorm:"column:specialty_code;not null"`
}

func (programModel) TableName() string { return "programs" }

type epaModel struct {
	ID            int    `gorm:"column:id;primaryKey;autoIncrement:false"`
	SpecialtyCode string `gorm:"column:specialty_code;not null;index"`
	Name          string `gorm:"column:name;not null"`
	ShortName     string `gorm:"column:short_name;not null"`
	Description   string `gorm:"column:description"`
	Category      string `gorm:"column:category;not null"`
	DisplayOrder  int    `gorm:"column:display_order;not null"`
	Active        bool   `gorm:"column:is_active"`
}

func (epaModel) TableName() string { return "epas" }

type requirementModel struct {
	ID            uint   `gorm:"column:id;primaryKey"`
	ProgramID     string `gorm:"column:program_id;not null;index"`
	EPAID         int    `gorm:"column:epa_id;not null"`
	TrainingLevel *int   `gorm:"column:training_level"`
	TargetCount   int    `gorm:"column:target_count;not null"`
	TargetLevel   int    `gorm:"column:target_level;not null"`
}

func (requirementModel) TableName() string { return "epa_requirements" }

type residentModel struct {
	ID            string `gorm:"column:id;primaryKey"`
	ProgramID     string `gorm:"column:program_id;not null;index"`
	FirstName     string `gorm:"column:first_name"`
	LastName      string `gorm:"column:last_name"`
	Email         string `gorm:"column:email"`
	PGYLevel      int    `gorm:"column:pgy_level"`
	Status        string `gorm:"column:status"`
	MedicalSchool string `gorm:"column:medical_school"`
}

func (residentModel) TableName() string { return "residents" }

type facultyModel struct {
	ID            string `gorm:"column:id;primaryKey"`
	ProgramID     string `gorm:"column:program_id;not null"`
	FirstName     string `gorm:"column:first_name"`
	LastName      string `gorm:"column:last_name"`
	Email         string `gorm:"column:email"`
	Rank          string `gorm:"column:rank"`
	IsCoreFaculty bool   `gorm:"column:is_core_faculty"`
	Active        bool   `gorm:"column:is_active"`
}

func (facultyModel) TableName() string { return "faculty" }

type siteModel struct {
	ID              string `gorm:"column:id;primaryKey"`
	Name            string `gorm:"column:name;not null"`
	Classification  string `gorm:"column:site_classification;not null"`
	InstitutionName string `gorm:"column:institution_name"`
	Active          bool   `gorm:"column:is_active"`
}

func (siteModel) TableName() string { return "clinical_sites" }

type assessmentModel struct {
	ID               string    `gorm:"column:id;primaryKey"`
	ResidentID       string    `gorm:"column:resident_id;not null;index:idx_assessments_resident"`
	AssessorID       string    `gorm:"column:assessor_id;not null;index"`
	EPAID            int       `gorm:"column:epa_id;not null"`
	EntrustmentLevel int       `gorm:"column:entrustment_level;not null"`
	AssessmentDate   time.Time `gorm:"column:assessment_date;not null;index:idx_assessments_resident"`
	SubmissionDate   time.Time `gorm:"column:submission_date;not null"`

	ClinicalSiteID   *string        `gorm:"column:clinical_site_id"`
	CaseUrgency      *string        `gorm:"column:case_urgency"`
	CaseComplexity   *string        `gorm:"column:case_complexity"`
	PatientASAClass  *int           `gorm:"column:patient_asa_class"`
	DurationMinutes  *int           `gorm:"column:procedure_duration_minutes"`
	Complications    *bool          `gorm:"column:complications_occurred"`
	LocationType     *string        `gorm:"column:location_type"`
	LocationDetails  *string        `gorm:"column:location_details"`
	Narrative        *string        `gorm:"column:narrative_feedback"`
	SpecialtyContext datatypes.JSON `gorm:"column:specialty_context"`
	EntryMethod      string         `gorm:"column:entry_method;not null"`

	Acknowledged   bool       `gorm:"column:resident_acknowledged"`
	AcknowledgedAt *time.Time `gorm:"column:resident_acknowledged_at"`
	Deleted        bool       `gorm:"column:is_deleted;index"`
	DeletedAt      *time.Time `gorm:"column:deleted_at"`
	DeletedBy      *string    `gorm:"column:deleted_by"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
}

func (assessmentModel) TableName() string { return "epa_assessments" }

func allModels() []any {
	return []any{
		&programModel{}, &epaModel{}, &requirementModel{},
		&residentModel{}, &facultyModel{}, &siteModel{}, &assessmentModel{},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Mapping
// ─────────────────────────────────────────────────────────────────────────────

func fromAssessment(a *assessment.Assessment) assessmentModel {
	specialty := a.SpecialtyContext
	if len(specialty) == 0 {
		specialty = json.RawMessage("{}")
	}
	c := a.Context
	return assessmentModel{
		ID:               a.ID.String(),
		ResidentID:       a.ResidentID.String(),
		AssessorID:       a.AssessorID.String(),
		EPAID:            int(a.EPAID),
		EntrustmentLevel: int(a.Level),
		AssessmentDate:   a.AssessmentDate.UTC(),
		SubmissionDate:   a.SubmissionDate.UTC(),
		ClinicalSiteID:   text(c.ClinicalSiteID),
		CaseUrgency:      text(c.CaseUrgency),
		CaseComplexity:   text(c.CaseComplexity),
		PatientASAClass:  c.PatientASAClass,
		DurationMinutes:  c.ProcedureDurationMin,
		Complications:    c.Complications,
		LocationType:     text(c.LocationType),
		LocationDetails:  c.LocationDetails,
		Narrative:        a.NarrativeFeedback,
		SpecialtyContext: datatypes.JSON(specialty),
		EntryMethod:      string(a.EntryMethod),
		Acknowledged:     a.Acknowledged,
		AcknowledgedAt:   utcPtr(a.AcknowledgedAt),
		Deleted:          a.Deleted,
		DeletedAt:        utcPtr(a.DeletedAt),
		DeletedBy:        a.DeletedBy,
		CreatedAt:        a.CreatedAt.UTC(),
		UpdatedAt:        a.UpdatedAt.UTC(),
	}
}

func (m assessmentModel) toDomain() *assessment.Assessment {
	return &assessment.Assessment{
		ID:             shared.AssessmentID(m.ID),
		ResidentID:     shared.ResidentID(m.ResidentID),
		AssessorID:     shared.FacultyID(m.AssessorID),
		EPAID:          shared.EPAID(m.EPAID),
		Level:          shared.EntrustmentLevel(m.EntrustmentLevel),
		AssessmentDate: m.AssessmentDate.UTC(),
		SubmissionDate: m.SubmissionDate.UTC(),
		Context: assessment.Context{
			ClinicalSiteID:       typed[shared.ClinicalSiteID](m.ClinicalSiteID),
			CaseUrgency:          typed[assessment.Urgency](m.CaseUrgency),
			CaseComplexity:       typed[assessment.Complexity](m.CaseComplexity),
			PatientASAClass:      m.PatientASAClass,
			ProcedureDurationMin: m.DurationMinutes,
			Complications:        m.Complications,
			LocationType:         typed[assessment.LocationType](m.LocationType),
			LocationDetails:      m.LocationDetails,
		},
		NarrativeFeedback: m.Narrative,
		SpecialtyContext:  json.RawMessage(m.SpecialtyContext),
		EntryMethod:       assessment.EntryMethod(m.EntryMethod),
		Acknowledged:      m.Acknowledged,
		AcknowledgedAt:    utcPtr(m.AcknowledgedAt),
		Deleted:           m.Deleted,
		DeletedAt:         utcPtr(m.DeletedAt),
		DeletedBy:         m.DeletedBy,
		CreatedAt:         m.CreatedAt.UTC(),
		UpdatedAt:         m.UpdatedAt.UTC(),
	}
}

func (m epaModel) toDomain() epa.EPA {
	return epa.EPA{
		ID:            shared.EPAID(m.ID),
		SpecialtyCode: shared.SpecialtyCode(m.SpecialtyCode),
		Name:          m.Name,
		ShortName:     m.ShortName,
		Description:   m.Description,
		Category:      epa.Category(m.Category),
		DisplayOrder:  m.DisplayOrder,
		Active:        m.Active,
	}
}

func (m requirementModel) toDomain() epa.Requirement {
	r := epa.Requirement{
		ProgramID:   shared.ProgramID(m.ProgramID),
		EPAID:       shared.EPAID(m.EPAID),
		TargetCount: m.TargetCount,
		TargetLevel: shared.EntrustmentLevel(m.TargetLevel),
	}
	if m.TrainingLevel != nil {
		r.TrainingLevel = epa.PGY(*m.TrainingLevel)
	}
	return r
}

func (m residentModel) toDomain() resident.Resident {
	return resident.Resident{
		ID:            shared.ResidentID(m.ID),
		ProgramID:     shared.ProgramID(m.ProgramID),
		FirstName:     m.FirstName,
		LastName:      m.LastName,
		Email:         m.Email,
		PGYLevel:      shared.TrainingLevel(m.PGYLevel),
		Status:        resident.Status(m.Status),
		MedicalSchool: m.MedicalSchool,
	}
}

func (m facultyModel) toDomain() faculty.Faculty {
	return faculty.Faculty{
		ID:            shared.FacultyID(m.ID),
		ProgramID:     shared.ProgramID(m.ProgramID),
		FirstName:     m.FirstName,
		LastName:      m.LastName,
		Email:         m.Email,
		Rank:          faculty.Rank(m.Rank),
		IsCoreFaculty: m.IsCoreFaculty,
		Active:        m.Active,
	}
}

func (m siteModel) toDomain() site.ClinicalSite {
	return site.ClinicalSite{
		ID:              shared.ClinicalSiteID(m.ID),
		Name:            m.Name,
		Classification:  site.Classification(m.Classification),
		InstitutionName: m.InstitutionName,
		Active:          m.Active,
	}
}

func text[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func typed[T ~string](s *string) *T {
	if s == nil {
		return nil
	}
	v := T(*s)
	return &v
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
