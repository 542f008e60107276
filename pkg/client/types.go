package client

import (
	"encoding/json"
	"time"
)

// Assessment is an assessment as returned by the API, including the names
// resolved from the catalog.
type Assessment struct {
	ID               string     `json:"id"`
	ResidentID       string     `json:"resident_id"`
	AssessorID       string     `json:"assessor_id"`
	EPAID            int        `json:"epa_id"`
	EntrustmentLevel int        `json:"entrustment_level"`
	AssessmentDate   time.Time  `json:"assessment_date"`
	SubmissionDate   time.Time  `json:"submission_date"`
	ClinicalSiteID   *string    `json:"clinical_site_id"`
	CaseUrgency      *string    `json:"case_urgency"`
	Feedback         *string    `json:"narrative_feedback"`
	Acknowledged     bool       `json:"acknowledged"`
	AcknowledgedAt   *time.Time `json:"acknowledged_at"`

	EPAName          string  `json:"epa_name"`
	FacultyFirstName string  `json:"faculty_first_name"`
	FacultyLastName  string  `json:"faculty_last_name"`
	SiteName         *string `json:"site_name"`
}

// AcknowledgeResult is the server's confirmation of an acknowledge.
type AcknowledgeResult struct {
	ID             string    `json:"id"`
	Acknowledged   bool      `json:"acknowledged"`
	AcknowledgedAt time.Time `json:"acknowledged_at"`
}

// DeleteResult is the server's confirmation of a soft delete.
type DeleteResult struct {
	ID        string    `json:"id"`
	Deleted   bool      `json:"deleted"`
	DeletedAt time.Time `json:"deleted_at"`
}

// SubmitRequest is the payload of a new assessment. Nil optional fields are
// omitted.
type SubmitRequest struct {
	ResidentID       string `json:"resident_id"`
	AssessorID       string `json:"assessor_id"`
	EPAID            int    `json:"epa_id"`
	EntrustmentLevel int    `json:"entrustment_level"`
	AssessmentDate   string `json:"assessment_date,omitempty"`

	ClinicalSiteID       *string         `json:"clinical_site_id,omitempty"`
	CaseUrgency          *string         `json:"case_urgency,omitempty"`
	CaseComplexity       *string         `json:"case_complexity,omitempty"`
	PatientASAClass      *int            `json:"patient_asa_class,omitempty"`
	ProcedureDurationMin *int            `json:"procedure_duration_min,omitempty"`
	Complications        *bool           `json:"complications,omitempty"`
	LocationType         *string         `json:"location_type,omitempty"`
	LocationDetails      *string         `json:"location_details,omitempty"`
	NarrativeFeedback    *string         `json:"narrative_feedback,omitempty"`
	SpecialtyContext     json.RawMessage `json:"specialty_context,omitempty"`
	EntryMethod          *string         `json:"entry_method,omitempty"`
}

// ListOptions filters ListAssessments. Zero values do not filter.
type ListOptions struct {
	ResidentID string
	AssessorID string
	EPAID      int
	Limit      int
}

// ResidentProgress is the per-EPA progress of one resident.
type ResidentProgress struct {
	Resident struct {
		ID        string `json:"id"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		PGYLevel  string `json:"pgy_level"`
	} `json:"resident"`
	Progress []EPAProgress `json:"progress"`
	Stats    Stats         `json:"stats"`
}

type EPAProgress struct {
	EPAID            int          `json:"epa_id"`
	Title            string       `json:"title"`
	TotalAssessments int          `json:"total_assessments"`
	Level1           int          `json:"level_1"`
	Level2           int          `json:"level_2"`
	Level3           int          `json:"level_3"`
	Level4           int          `json:"level_4"`
	Level5           int          `json:"level_5"`
	HighestLevel     *int         `json:"highest_level"`
	LastAssessment   *time.Time   `json:"last_assessment"`
	Requirement      *Requirement `json:"requirement"`
}

type Requirement struct {
	TrainingLevel       *string `json:"training_level"`
	TargetCount         int     `json:"target_count"`
	TargetLevel         int     `json:"target_level"`
	CurrentCountAtLevel int     `json:"current_count_at_level"`
	IsMet               bool    `json:"is_met"`
	Deficit             int     `json:"deficit"`
}

type Stats struct {
	TotalAssessments  int     `json:"total_assessments"`
	EPAsAssessed      int     `json:"epas_assessed"`
	UniqueAssessors   int     `json:"unique_assessors"`
	AvgLevel          float64 `json:"avg_level"`
	RequirementsMet   int     `json:"requirements_met"`
	RequirementsTotal int     `json:"requirements_total"`
}
