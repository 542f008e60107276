package command

import (
	"context"
	"strings"
	"time"

	"github.com/rms-hub/residency-hub/internal/domain/shared"
	"github.com/rms-hub/residency-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DELETE ASSESSMENT COMMAND
// Soft delete: the row stays for audit but disappears from reads and progress.
// ══════════════════════════════════════════════════════════════════════════════

type DeleteAssessmentCommand struct {
	AssessmentID string
	// DeletedBy identifies the actor; it is stored as given.
	DeletedBy     string
	CorrelationID string
}

type DeleteAssessmentResult struct {
	ID        string    `json:"id"`
	Deleted   bool      `json:"deleted"`
	DeletedAt time.Time `json:"deleted_at"`
}

type DeleteAssessmentHandler struct {
	deps Deps
}

func NewDeleteAssessmentHandler(deps Deps) *DeleteAssessmentHandler {
	return &DeleteAssessmentHandler{deps: deps.withDefaults()}
}

// Handle returns ErrAssessmentNotFound when the assessment is missing or
// already deleted.
func (h *DeleteAssessmentHandler) Handle(ctx context.Context, cmd DeleteAssessmentCommand) (*DeleteAssessmentResult, error) {
	id := shared.AssessmentID(cmd.AssessmentID)
	if !id.IsValid() {
		return nil, shared.ErrAssessmentNotFound
	}
	by := strings.TrimSpace(cmd.DeletedBy)

	a, err := h.deps.Assessments.SoftDelete(ctx, id, by, h.deps.Clock.Now())
	if err != nil {
		return nil, err
	}

	h.deps.Logger.Info("assessment deleted",
		logger.AssessmentID(a.ID.String()),
		logger.ResidentID(a.ResidentID.String()),
		logger.String("deleted_by", by),
	)

	ev := shared.NewAssessmentDeletedEvent(a.ID, a.ResidentID, by, *a.DeletedAt)
	ev.BaseEvent = ev.WithCorrelationID(cmd.CorrelationID)
	h.deps.publish(ev)

	return &DeleteAssessmentResult{ID: a.ID.String(), Deleted: true, DeletedAt: *a.DeletedAt}, nil
}
