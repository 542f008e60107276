// Package query содержит операции чтения (CQRS - Queries): справочники,
// оценки и прогресс резидентов.
package query

import (
	"encoding/json"
	"time"

	"github.com/rms-hub/residency-hub/internal/domain/assessment"
	"github.com/rms-hub/residency-hub/internal/domain/epa"
	"github.com/rms-hub/residency-hub/internal/domain/faculty"
	"github.com/rms-hub/residency-hub/internal/domain/progress"
	"github.com/rms-hub/residency-hub/internal/domain/resident"
	"github.com/rms-hub/residency-hub/internal/domain/site"
)

// ══════════════════════════════════════════════════════════════════════════════
// СПРАВОЧНИКИ
// ══════════════════════════════════════════════════════════════════════════════

// EPADTO - EPA в ответе API.
type EPADTO struct {
	ID           int    `json:"id"`
	EPANumber    string `json:"epa_number"`
	Title        string `json:"title"`
	ShortName    string `json:"short_name"`
	Description  string `json:"description,omitempty"`
	Category     string `json:"category"`
	DisplayOrder int    `json:"display_order"`
}

func newEPADTO(e epa.EPA) EPADTO {
	return EPADTO{
		ID:           int(e.ID),
		EPANumber:    e.ID.String(),
		Title:        e.Name,
		ShortName:    e.ShortName,
		Description:  e.Description,
		Category:     string(e.Category),
		DisplayOrder: e.DisplayOrder,
	}
}

// ResidentDTO - резидент в ответе API.
type ResidentDTO struct {
	ID            string `json:"id"`
	ProgramID     string `json:"program_id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	PGYLevel      string `json:"pgy_level"`
	Status        string `json:"status"`
	MedicalSchool string `json:"medical_school,omitempty"`
}

func newResidentDTO(r resident.Resident) ResidentDTO {
	return ResidentDTO{
		ID:            r.ID.String(),
		ProgramID:     r.ProgramID.String(),
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		Email:         r.Email,
		PGYLevel:      r.PGYLevel.String(),
		Status:        string(r.Status),
		MedicalSchool: r.MedicalSchool,
	}
}

type FacultyDTO struct {
	ID            string `json:"id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	Rank          string `json:"rank"`
	IsCoreFaculty bool   `json:"is_core_faculty"`
}

func newFacultyDTO(f faculty.Faculty) FacultyDTO {
	return FacultyDTO{
		ID:            f.ID.String(),
		FirstName:     f.FirstName,
		LastName:      f.LastName,
		Email:         f.Email,
		Rank:          string(f.Rank),
		IsCoreFaculty: f.IsCoreFaculty,
	}
}

type ClinicalSiteDTO struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	SiteType        string `json:"site_type"`
	InstitutionName string `json:"institution_name"`
}

func newClinicalSiteDTO(s site.ClinicalSite) ClinicalSiteDTO {
	return ClinicalSiteDTO{
		ID:              s.ID.String(),
		Name:            s.Name,
		SiteType:        string(s.Classification),
		InstitutionName: s.InstitutionName,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ОЦЕНКИ
// ══════════════════════════════════════════════════════════════════════════════

// AssessmentDTO - оценка с именами EPA, резидента, оценщика и базы.
// Необязательные поля контекста сериализуются как null, если не заданы.
type AssessmentDTO struct {
	ID               string    `json:"id"`
	ResidentID       string    `json:"resident_id"`
	AssessorID       string    `json:"assessor_id"`
	EPAID            int       `json:"epa_id"`
	EntrustmentLevel int       `json:"entrustment_level"`
	AssessmentDate   time.Time `json:"assessment_date"`
	SubmissionDate   time.Time `json:"submission_date"`

	ClinicalSiteID       *string `json:"clinical_site_id"`
	CaseUrgency          *string `json:"case_urgency"`
	CaseComplexity       *string `json:"case_complexity"`
	PatientASAClass      *int    `json:"patient_asa_class"`
	ProcedureDurationMin *int    `json:"procedure_duration_min"`
	Complications        *bool   `json:"complications"`
	LocationType         *string `json:"location_type"`
	LocationDetails      *string `json:"location_details"`
	NarrativeFeedback    *string `json:"narrative_feedback"`

	SpecialtyContext json.RawMessage `json:"specialty_context"`
	EntryMethod      string          `json:"entry_method"`

	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at"`

	// Поля ниже заполняются из справочников.
	EPANumber         string  `json:"epa_number"`
	EPAName           string  `json:"epa_name"`
	EPACategory       string  `json:"epa_category"`
	FacultyFirstName  string  `json:"faculty_first_name"`
	FacultyLastName   string  `json:"faculty_last_name"`
	ResidentFirstName string  `json:"resident_first_name"`
	ResidentLastName  string  `json:"resident_last_name"`
	PGYLevel          string  `json:"pgy_level,omitempty"`
	SiteName          *string `json:"site_name"`
}

func newAssessmentDTO(a *assessment.Assessment) AssessmentDTO {
	c := a.Context
	dto := AssessmentDTO{
		ID:                   a.ID.String(),
		ResidentID:           a.ResidentID.String(),
		AssessorID:           a.AssessorID.String(),
		EPAID:                int(a.EPAID),
		EntrustmentLevel:     a.Level.Int(),
		AssessmentDate:       a.AssessmentDate,
		SubmissionDate:       a.SubmissionDate,
		ClinicalSiteID:       stringPtr(c.ClinicalSiteID),
		CaseUrgency:          stringPtr(c.CaseUrgency),
		CaseComplexity:       stringPtr(c.CaseComplexity),
		PatientASAClass:      c.PatientASAClass,
		ProcedureDurationMin: c.ProcedureDurationMin,
		Complications:        c.Complications,
		LocationType:         stringPtr(c.LocationType),
		LocationDetails:      c.LocationDetails,
		NarrativeFeedback:    a.NarrativeFeedback,
		SpecialtyContext:     a.SpecialtyContext,
		EntryMethod:          string(a.EntryMethod),
		Acknowledged:         a.Acknowledged,
		AcknowledgedAt:       a.AcknowledgedAt,
	}
	if len(dto.SpecialtyContext) == 0 {
		dto.SpecialtyContext = json.RawMessage("{}")
	}
	return dto
}

func stringPtr[T ~string](p *T) *string {
	if p == nil {
		return nil
	}
	s := string(*p)
	return &s
}

// ══════════════════════════════════════════════════════════════════════════════
// ПРОГРЕСС
// ══════════════════════════════════════════════════════════════════════════════

// RequirementDTO - применимое требование и его выполнение.
type RequirementDTO struct {
	// TrainingLevel равен nil для требования к выпуску.
	TrainingLevel       *string `json:"training_level"`
	TargetCount         int     `json:"target_count"`
	TargetLevel         int     `json:"target_level"`
	CurrentCountAtLevel int     `json:"current_count_at_level"`
	IsMet               bool    `json:"is_met"`
	Deficit             int     `json:"deficit"`
}

// EPAProgressDTO - строка прогресса по одной EPA.
type EPAProgressDTO struct {
	EPAID            int             `json:"epa_id"`
	EPANumber        string          `json:"epa_number"`
	Title            string          `json:"title"`
	ShortName        string          `json:"short_name"`
	Category         string          `json:"category"`
	TotalAssessments int             `json:"total_assessments"`
	Level1           int             `json:"level_1"`
	Level2           int             `json:"level_2"`
	Level3           int             `json:"level_3"`
	Level4           int             `json:"level_4"`
	Level5           int             `json:"level_5"`
	HighestLevel     *int            `json:"highest_level"`
	LastAssessment   *time.Time      `json:"last_assessment"`
	Requirement      *RequirementDTO `json:"requirement"`
}

func newEPAProgressDTO(p progress.EPAProgress) EPAProgressDTO {
	dto := EPAProgressDTO{
		EPAID:            int(p.EPA.ID),
		EPANumber:        p.EPA.ID.String(),
		Title:            p.EPA.Name,
		ShortName:        p.EPA.ShortName,
		Category:         string(p.EPA.Category),
		TotalAssessments: p.Total,
		Level1:           p.Counts.Level1,
		Level2:           p.Counts.Level2,
		Level3:           p.Counts.Level3,
		Level4:           p.Counts.Level4,
		Level5:           p.Counts.Level5,
		LastAssessment:   p.LastAssessment,
	}
	if p.Highest != nil {
		h := p.Highest.Int()
		dto.HighestLevel = &h
	}
	if r := p.Requirement; r != nil {
		req := &RequirementDTO{
			TargetCount:         r.TargetCount,
			TargetLevel:         r.TargetLevel.Int(),
			CurrentCountAtLevel: r.CurrentCount,
			IsMet:               r.IsMet,
			Deficit:             r.Deficit,
		}
		if r.TrainingLevel != nil {
			s := r.TrainingLevel.String()
			req.TrainingLevel = &s
		}
		dto.Requirement = req
	}
	return dto
}

// StatsDTO - сводка по резиденту.
type StatsDTO struct {
	TotalAssessments  int     `json:"total_assessments"`
	EPAsAssessed      int     `json:"epas_assessed"`
	UniqueAssessors   int     `json:"unique_assessors"`
	AvgLevel          float64 `json:"avg_level"`
	RequirementsMet   int     `json:"requirements_met"`
	RequirementsTotal int     `json:"requirements_total"`
}

func newStatsDTO(s progress.Summary) StatsDTO {
	return StatsDTO{
		TotalAssessments:  s.TotalAssessments,
		EPAsAssessed:      s.EPAsAssessed,
		UniqueAssessors:   s.UniqueAssessors,
		AvgLevel:          s.AvgLevel,
		RequirementsMet:   s.RequirementsMet,
		RequirementsTotal: s.RequirementsTotal,
	}
}

// ResidentProgressDTO - полный ответ прогресса резидента. Не содержит времени
// генерации, чтобы одинаковые данные давали одинаковые байты.
type ResidentProgressDTO struct {
	Resident ResidentDTO      `json:"resident"`
	Progress []EPAProgressDTO `json:"progress"`
	Stats    StatsDTO         `json:"stats"`
}
