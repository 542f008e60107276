package command

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rms-hub/residency-hub/internal/domain/shared"
	"github.com/rms-hub/residency-hub/internal/observability"
	"github.com/rms-hub/residency-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACKNOWLEDGE ASSESSMENT COMMAND
// The resident confirms they have read the feedback. Repeating the call is
// allowed and moves acknowledged_at forward.
// ══════════════════════════════════════════════════════════════════════════════

type AcknowledgeAssessmentCommand struct {
	AssessmentID  string
	CorrelationID string
}

type AcknowledgeAssessmentResult struct {
	ID             string    `json:"id"`
	Acknowledged   bool      `json:"acknowledged"`
	AcknowledgedAt time.Time `json:"acknowledged_at"`
}

type AcknowledgeAssessmentHandler struct {
	deps Deps
}

func NewAcknowledgeAssessmentHandler(deps Deps) *AcknowledgeAssessmentHandler {
	return &AcknowledgeAssessmentHandler{deps: deps.withDefaults()}
}

// Handle returns ErrAssessmentNotFound for a missing or deleted assessment.
func (h *AcknowledgeAssessmentHandler) Handle(ctx context.Context, cmd AcknowledgeAssessmentCommand) (_ *AcknowledgeAssessmentResult, err error) {
	ctx, span := observability.StartSpan(ctx, "assessment.Acknowledge", attribute.String("assessment_id", cmd.AssessmentID))
	defer func() { observability.EndSpan(span, err) }()

	id := shared.AssessmentID(cmd.AssessmentID)
	if !id.IsValid() {
		return nil, shared.ErrAssessmentNotFound
	}

	a, err := h.deps.Assessments.Acknowledge(ctx, id, h.deps.Clock.Now())
	if err != nil {
		return nil, err
	}
	at := *a.AcknowledgedAt

	h.deps.Logger.Info("assessment acknowledged",
		logger.AssessmentID(a.ID.String()),
		logger.ResidentID(a.ResidentID.String()),
	)

	ev := shared.NewAssessmentAcknowledgedEvent(a.ID, a.ResidentID, at)
	ev.BaseEvent = ev.WithCorrelationID(cmd.CorrelationID)
	h.deps.publish(ev)

	return &AcknowledgeAssessmentResult{ID: a.ID.String(), Acknowledged: true, AcknowledgedAt: at}, nil
}
