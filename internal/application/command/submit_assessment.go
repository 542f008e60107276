package command

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rms-hub/residency-hub/internal/domain/assessment"
	"github.com/rms-hub/residency-hub/internal/domain/epa"
	"github.com/rms-hub/residency-hub/internal/domain/faculty"
	"github.com/rms-hub/residency-hub/internal/domain/resident"
	"github.com/rms-hub/residency-hub/internal/domain/shared"
	"github.com/rms-hub/residency-hub/internal/domain/site"
	"github.com/rms-hub/residency-hub/internal/observability"
	"github.com/rms-hub/residency-hub/pkg/logger"
	"github.com/rms-hub/residency-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT ASSESSMENT COMMAND
// A faculty member records one observed performance of a resident on an EPA.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitAssessmentCommand is the submission payload. Optional context fields
// are pointers: nil means "not provided", zero is a value.
type SubmitAssessmentCommand struct {
	ResidentID       string  `json:"resident_id" validate:"required,notblank"`
	AssessorID       string  `json:"assessor_id" validate:"required,notblank"`
	EPAID            FlexInt `json:"epa_id" validate:"required,min=1"`
	EntrustmentLevel FlexInt `json:"entrustment_level" validate:"required,min=1,max=5"`

	// AssessmentDate is when the observation happened; defaults to now.
	AssessmentDate string `json:"assessment_date,omitempty" validate:"omitempty,timestamp"`

	ClinicalSiteID       *string `json:"clinical_site_id,omitempty" validate:"omitempty,notblank"`
	CaseUrgency          *string `json:"case_urgency,omitempty" validate:"omitempty,oneof=elective urgent emergent"`
	CaseComplexity       *string `json:"case_complexity,omitempty" validate:"omitempty,oneof=low moderate high"`
	PatientASAClass      *int    `json:"patient_asa_class,omitempty" validate:"omitempty,min=1,max=6"`
	ProcedureDurationMin *int    `json:"procedure_duration_min,omitempty" validate:"omitempty,min=0"`
	Complications        *bool   `json:"complications,omitempty"`
	LocationType         *string `json:"location_type,omitempty" validate:"omitempty,oneof=or clinic icu ed ward other"`
	LocationDetails      *string `json:"location_details,omitempty"`
	NarrativeFeedback    *string `json:"narrative_feedback,omitempty"`

	SpecialtyContext json.RawMessage `json:"specialty_context,omitempty"`
	EntryMethod      *string         `json:"entry_method,omitempty" validate:"omitempty,oneof=mobile_ios mobile_android web"`

	// CorrelationID is propagated to the emitted event.
	CorrelationID string `json:"-"`
}

// SubmitAssessmentResult carries the id of the stored assessment.
type SubmitAssessmentResult struct {
	ID string `json:"id"`
}

// Deps are the collaborators shared by the command handlers.
type Deps struct {
	Assessments assessment.Repository
	Residents   resident.Repository
	Faculty     faculty.Repository
	EPAs        epa.Repository
	Sites       site.Repository

	// Publisher is optional; events are dropped when nil.
	Publisher shared.EventPublisher
	// Clock defaults to timeutil.SystemClock.
	Clock  timeutil.Clock
	Logger *logger.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = timeutil.SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	return d
}

// publish hands event to the publisher. The write already happened, so a
// failure is only logged.
func (d Deps) publish(event shared.Event) {
	if d.Publisher == nil {
		return
	}
	if err := d.Publisher.Publish(event); err != nil {
		d.Logger.Warn("event publish failed",
			logger.String("event_type", string(event.EventType())),
			logger.AssessmentID(event.AggregateID()),
			logger.Err(err),
		)
	}
}

// SubmitAssessmentHandler handles SubmitAssessmentCommand.
type SubmitAssessmentHandler struct {
	deps      Deps
	validator *Validator
}

func NewSubmitAssessmentHandler(deps Deps, v *Validator) *SubmitAssessmentHandler {
	if v == nil {
		v = NewValidator()
	}
	return &SubmitAssessmentHandler{deps: deps.withDefaults(), validator: v}
}

// Handle validates, checks references, stores the assessment unacknowledged
// and publishes assessment.submitted.
func (h *SubmitAssessmentHandler) Handle(ctx context.Context, cmd SubmitAssessmentCommand) (_ *SubmitAssessmentResult, err error) {
	ctx, span := observability.StartSpan(ctx, "assessment.Submit",
		attribute.String("resident_id", cmd.ResidentID),
		attribute.Int("epa_id", int(cmd.EPAID)),
	)
	defer func() { observability.EndSpan(span, err) }()

	if err := h.validator.Struct("submit_assessment", cmd); err != nil {
		return nil, err
	}
	params, err := cmd.params()
	if err != nil {
		return nil, err
	}
	if err := h.checkReferences(ctx, params); err != nil {
		return nil, err
	}

	a, err := assessment.New(params, h.deps.Clock.Now())
	if err != nil {
		return nil, err
	}
	if err := h.deps.Assessments.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("submit_assessment: store: %w", err)
	}

	h.deps.Logger.Info("assessment submitted",
		logger.AssessmentID(a.ID.String()),
		logger.ResidentID(a.ResidentID.String()),
		logger.AssessorID(a.AssessorID.String()),
		logger.EpaID(int(a.EPAID)),
		logger.Int("level", a.Level.Int()),
	)

	ev := shared.NewAssessmentSubmittedEvent(a.ID, a.ResidentID, a.AssessorID, a.EPAID, a.Level, a.SubmissionDate)
	ev.BaseEvent = ev.WithCorrelationID(cmd.CorrelationID)
	h.deps.publish(ev)

	return &SubmitAssessmentResult{ID: a.ID.String()}, nil
}

func (h *SubmitAssessmentHandler) checkReferences(ctx context.Context, p assessment.NewParams) error {
	r, err := h.deps.Residents.GetByID(ctx, p.ResidentID)
	if err != nil {
		return err
	}
	if !r.IsTrackable() {
		return shared.ErrResidentNotFound
	}
	if _, err := h.deps.Faculty.GetByID(ctx, p.AssessorID); err != nil {
		return err
	}
	if _, err := h.deps.EPAs.GetByID(ctx, p.EPAID); err != nil {
		return err
	}
	if id := p.Context.ClinicalSiteID; id != nil && h.deps.Sites != nil {
		if _, err := h.deps.Sites.GetByID(ctx, *id); err != nil {
			if shared.IsNotFound(err) {
				return shared.ErrClinicalSiteMissing
			}
			return err
		}
	}
	return nil
}

func (c SubmitAssessmentCommand) params() (assessment.NewParams, error) {
	p := assessment.NewParams{
		ResidentID:        shared.ResidentID(c.ResidentID),
		AssessorID:        shared.FacultyID(c.AssessorID),
		EPAID:             shared.EPAID(c.EPAID),
		Level:             int(c.EntrustmentLevel),
		NarrativeFeedback: c.NarrativeFeedback,
		SpecialtyContext:  c.SpecialtyContext,
		Context: assessment.Context{
			ClinicalSiteID:       typed[shared.ClinicalSiteID](c.ClinicalSiteID),
			CaseUrgency:          typed[assessment.Urgency](c.CaseUrgency),
			CaseComplexity:       typed[assessment.Complexity](c.CaseComplexity),
			PatientASAClass:      c.PatientASAClass,
			ProcedureDurationMin: c.ProcedureDurationMin,
			Complications:        c.Complications,
			LocationType:         typed[assessment.LocationType](c.LocationType),
			LocationDetails:      c.LocationDetails,
		},
		EntryMethod: typed[assessment.EntryMethod](c.EntryMethod),
	}
	if c.AssessmentDate != "" {
		at, err := timeutil.ParseTimestamp(c.AssessmentDate)
		if err != nil {
			ve := shared.NewValidationError("submit_assessment")
			ve.Add("assessment_date", err.Error())
			return p, ve
		}
		p.AssessmentDate = &at
	}
	return p, nil
}

func typed[T ~string](s *string) *T {
	if s == nil {
		return nil
	}
	v := T(*s)
	return &v
}
