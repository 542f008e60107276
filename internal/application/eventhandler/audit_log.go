package eventhandler

import (
	"github.com/rms-hub/residency-hub/internal/domain/shared"
	"github.com/rms-hub/residency-hub/pkg/logger"
)

// AuditLogHandler пишет каждое событие в журнал. Используется воркером.
type AuditLogHandler struct {
	log *logger.Logger
}

func NewAuditLogHandler(log *logger.Logger) *AuditLogHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AuditLogHandler{log: log.With(logger.Component("audit"))}
}

func (h *AuditLogHandler) Handle(event shared.Event) error {
	h.log.Info("assessment event",
		logger.String("event_type", string(event.EventType())),
		logger.AssessmentID(event.AggregateID()),
		logger.ResidentID(event.ResidentKey().String()),
		logger.Time("occurred_at", event.OccurredAt()),
	)
	return nil
}
