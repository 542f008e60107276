// Package assessment содержит оценку EPA - одно наблюдение работы резидента
// преподавателем. После создания оценка неизменна, кроме полей подтверждения
// (acknowledged) и мягкого удаления.
package assessment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rms-hub/residency-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT ENUMS
// ══════════════════════════════════════════════════════════════════════════════

type Urgency string

const (
	UrgencyElective Urgency = "elective"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyEmergent Urgency = "emergent"
)

func (u Urgency) IsValid() bool {
	return u == UrgencyElective || u == UrgencyUrgent || u == UrgencyEmergent
}

type Complexity string

const (
	ComplexityLow      Complexity = "low"
	ComplexityModerate Complexity = "moderate"
	ComplexityHigh     Complexity = "high"
)

func (c Complexity) IsValid() bool {
	return c == ComplexityLow || c == ComplexityModerate || c == ComplexityHigh
}

type LocationType string

const (
	LocationOR     LocationType = "or"
	LocationClinic LocationType = "clinic"
	LocationICU    LocationType = "icu"
	LocationED     LocationType = "ed"
	LocationWard   LocationType = "ward"
	LocationOther  LocationType = "other"
)

func (l LocationType) IsValid() bool {
	switch l {
	case LocationOR, LocationClinic, LocationICU, LocationED, LocationWard, LocationOther:
		return true
	}
	return false
}

// EntryMethod - откуда пришла оценка.
type EntryMethod string

const (
	EntryMobileIOS     EntryMethod = "mobile_ios"
	EntryMobileAndroid EntryMethod = "mobile_android"
	EntryWeb           EntryMethod = "web"
)

func (e EntryMethod) IsValid() bool {
	return e == EntryMobileIOS || e == EntryMobileAndroid || e == EntryWeb
}

// ASA physical status classification bounds.
const (
	MinASAClass = 1
	MaxASAClass = 6
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Context - необязательный клинический контекст. nil означает "не указано";
// ноль (например, длительность 0 минут) - это значение.
type Context struct {
	ClinicalSiteID       *shared.ClinicalSiteID
	CaseUrgency          *Urgency
	CaseComplexity       *Complexity
	PatientASAClass      *int
	ProcedureDurationMin *int
	Complications        *bool
	LocationType         *LocationType
	LocationDetails      *string
}

// Assessment - оценка EPA.
type Assessment struct {
	ID         shared.AssessmentID
	ResidentID shared.ResidentID
	AssessorID shared.FacultyID
	EPAID      shared.EPAID
	Level      shared.EntrustmentLevel

	AssessmentDate time.Time
	SubmissionDate time.Time

	Context           Context
	NarrativeFeedback *string
	// SpecialtyContext - произвольный JSON-объект, по умолчанию {}.
	SpecialtyContext json.RawMessage
	EntryMethod      EntryMethod

	Acknowledged   bool
	AcknowledgedAt *time.Time

	Deleted   bool
	DeletedAt *time.Time
	DeletedBy *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewParams - входные данные для создания оценки.
type NewParams struct {
	ID                shared.AssessmentID
	ResidentID        shared.ResidentID
	AssessorID        shared.FacultyID
	EPAID             shared.EPAID
	Level             int
	AssessmentDate    *time.Time
	Context           Context
	NarrativeFeedback *string
	SpecialtyContext  json.RawMessage
	EntryMethod       *EntryMethod
}

// New создаёт неподтверждённую оценку. Дата наблюдения по умолчанию now,
// дата подачи всегда now. Ошибки валидации собираются в *shared.ValidationError.
func New(p NewParams, now time.Time) (*Assessment, error) {
	ve := shared.NewValidationError("assessment.New")

	if !p.ResidentID.IsValid() {
		ve.Add("resident_id", "is required")
	}
	if !p.AssessorID.IsValid() {
		ve.Add("assessor_id", "is required")
	}
	if !p.EPAID.IsValid() {
		ve.Add("epa_id", "is required")
	}
	level := shared.EntrustmentLevel(p.Level)
	if p.Level == 0 {
		ve.Add("entrustment_level", "is required")
	} else if !level.IsValid() {
		ve.Add("entrustment_level", "must be between 1 and 5")
	}
	validateContext(p.Context, ve)

	method := EntryWeb
	if p.EntryMethod != nil {
		if !p.EntryMethod.IsValid() {
			ve.Add("entry_method", fmt.Sprintf("unknown entry method %q", *p.EntryMethod))
		}
		method = *p.EntryMethod
	}

	specialty := p.SpecialtyContext
	if len(specialty) == 0 {
		specialty = json.RawMessage("{}")
	} else {
		var obj map[string]any
		if err := json.Unmarshal(specialty, &obj); err != nil {
			ve.Add("specialty_context", "must be a JSON object")
		}
	}

	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	id := p.ID
	if !id.IsValid() {
		id = shared.NewAssessmentID()
	}
	now = now.UTC()
	observed := now
	if p.AssessmentDate != nil {
		observed = p.AssessmentDate.UTC()
	}

	return &Assessment{
		ID:                id,
		ResidentID:        p.ResidentID,
		AssessorID:        p.AssessorID,
		EPAID:             p.EPAID,
		Level:             level,
		AssessmentDate:    observed,
		SubmissionDate:    now,
		Context:           p.Context,
		NarrativeFeedback: p.NarrativeFeedback,
		SpecialtyContext:  specialty,
		EntryMethod:       method,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func validateContext(c Context, ve *shared.ValidationError) {
	if c.ClinicalSiteID != nil && !c.ClinicalSiteID.IsValid() {
		ve.Add("clinical_site_id", "must not be blank")
	}
	if c.CaseUrgency != nil && !c.CaseUrgency.IsValid() {
		ve.Add("case_urgency", "must be one of elective, urgent, emergent")
	}
	if c.CaseComplexity != nil && !c.CaseComplexity.IsValid() {
		ve.Add("case_complexity", "must be one of low, moderate, high")
	}
	if c.PatientASAClass != nil && (*c.PatientASAClass < MinASAClass || *c.PatientASAClass > MaxASAClass) {
		ve.Add("patient_asa_class", "must be between 1 and 6")
	}
	if c.ProcedureDurationMin != nil && *c.ProcedureDurationMin < 0 {
		ve.Add("procedure_duration_min", "must not be negative")
	}
	if c.LocationType != nil && !c.LocationType.IsValid() {
		ve.Add("location_type", "must be one of or, clinic, icu, ed, ward, other")
	}
}

// Acknowledge отмечает оценку как просмотренную резидентом. Повторный вызов
// не ошибка: время подтверждения обновляется, но никогда не уходит назад,
// даже если часы сервера перевели назад.
func (a *Assessment) Acknowledge(at time.Time) error {
	if a.Deleted {
		return shared.ErrAssessmentNotFound
	}
	at = at.UTC()
	ackAt := at
	if a.AcknowledgedAt != nil && a.AcknowledgedAt.After(ackAt) {
		ackAt = *a.AcknowledgedAt
	}
	a.Acknowledged = true
	a.AcknowledgedAt = &ackAt
	a.UpdatedAt = at
	return nil
}

// SoftDelete помечает оценку удалённой. Удалённая оценка не видна нигде.
func (a *Assessment) SoftDelete(by string, at time.Time) error {
	if a.Deleted {
		return shared.ErrAssessmentNotFound
	}
	at = at.UTC()
	a.Deleted = true
	a.DeletedAt = &at
	if by != "" {
		a.DeletedBy = &by
	}
	a.UpdatedAt = at
	return nil
}

// Clone возвращает глубокую копию, чтобы хранилища не отдавали свои указатели.
func (a *Assessment) Clone() *Assessment {
	c := *a
	c.SpecialtyContext = append(json.RawMessage(nil), a.SpecialtyContext...)
	c.Context = Context{
		ClinicalSiteID:       clonePtr(a.Context.ClinicalSiteID),
		CaseUrgency:          clonePtr(a.Context.CaseUrgency),
		CaseComplexity:       clonePtr(a.Context.CaseComplexity),
		PatientASAClass:      clonePtr(a.Context.PatientASAClass),
		ProcedureDurationMin: clonePtr(a.Context.ProcedureDurationMin),
		Complications:        clonePtr(a.Context.Complications),
		LocationType:         clonePtr(a.Context.LocationType),
		LocationDetails:      clonePtr(a.Context.LocationDetails),
	}
	c.NarrativeFeedback = clonePtr(a.NarrativeFeedback)
	c.AcknowledgedAt = clonePtr(a.AcknowledgedAt)
	c.DeletedAt = clonePtr(a.DeletedAt)
	c.DeletedBy = clonePtr(a.DeletedBy)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr - помощник для опциональных полей.
func Ptr[T any](v T) *T { return &v }
