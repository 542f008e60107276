// Package eventhandler содержит обработчики доменных событий.
package eventhandler

import (
	"context"
	"time"

	"github.com/rms-hub/residency-hub/internal/domain/shared"
	"github.com/rms-hub/residency-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ASSESSMENT CHANGED
// Любое изменение оценки (подача, подтверждение, удаление) делает
// закэшированный прогресс резидента устаревшим.
// ═══════════════════════════════════════════════════════════════════════════

// ProgressInvalidator сбрасывает кэш прогресса резидента.
type ProgressInvalidator interface {
	InvalidateProgress(ctx context.Context, residentID shared.ResidentID) error
}

// OnAssessmentChangedHandler сбрасывает кэш прогресса по событиям оценок.
type OnAssessmentChangedHandler struct {
	cache   ProgressInvalidator
	log     *logger.Logger
	timeout time.Duration
}

// NewOnAssessmentChangedHandler создаёт обработчик. timeout ограничивает
// одно обращение к кэшу; 0 означает 2 секунды.
func NewOnAssessmentChangedHandler(cache ProgressInvalidator, log *logger.Logger, timeout time.Duration) *OnAssessmentChangedHandler {
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &OnAssessmentChangedHandler{
		cache:   cache,
		log:     log.With(logger.Component("on-assessment-changed")),
		timeout: timeout,
	}
}

// Handle имеет сигнатуру shared.EventHandler.
func (h *OnAssessmentChangedHandler) Handle(event shared.Event) error {
	if !isAssessmentEvent(event.EventType()) {
		return nil
	}
	resident := event.ResidentKey()
	if !resident.IsValid() {
		h.log.Warn("assessment event without resident", logger.AssessmentID(event.AggregateID()))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	if err := h.cache.InvalidateProgress(ctx, resident); err != nil {
		return err
	}
	h.log.Debug("progress cache invalidated",
		logger.ResidentID(resident.String()),
		logger.String("event_type", string(event.EventType())),
	)
	return nil
}

// Subscribe подписывает обработчик на все события оценок. Если шина умеет
// синхронную доставку, кэш сбрасывается до того, как команда вернёт ответ.
func (h *OnAssessmentChangedHandler) Subscribe(bus shared.EventSubscriber) error {
	subscribe := bus.Subscribe
	if s, ok := bus.(shared.SyncSubscriber); ok {
		subscribe = s.SubscribeSync
	}
	for _, t := range assessmentEvents {
		if err := subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}

var assessmentEvents = []shared.EventType{
	shared.EventAssessmentSubmitted,
	shared.EventAssessmentAcknowledged,
	shared.EventAssessmentDeleted,
}

func isAssessmentEvent(t shared.EventType) bool {
	for _, known := range assessmentEvents {
		if t == known {
			return true
		}
	}
	return false
}
