package query

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rms-hub/residency-hub/internal/domain/shared"
	"github.com/rms-hub/residency-hub/internal/observability"
	"github.com/rms-hub/residency-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET RESIDENT PROGRESS QUERY
// Прогресс резидента по всем активным EPA его специальности и сводка.
// ══════════════════════════════════════════════════════════════════════════════

type GetResidentProgressQuery struct {
	ResidentID string
}

// ProgressCache - кэш готовых ответов прогресса. Ошибки кэша не доходят до
// вызывающего: промах и недоступность выглядят одинаково.
//
// GetProgress при промахе возвращает версию снимка резидента. PutProgress
// записывает ответ, только если версия с тех пор не менялась, поэтому
// расчёт, начатый до сброса кэша, не может его перезаписать. Отрицательная
// версия означает, что записывать нельзя.
type ProgressCache interface {
	GetProgress(ctx context.Context, residentID shared.ResidentID) (payload []byte, version int64, hit bool)
	PutProgress(ctx context.Context, residentID shared.ResidentID, version int64, payload []byte)
}

// GetResidentProgressHandler считает прогресс на каждый запрос. Кэш
// необязателен; его содержимое сбрасывается обработчиком событий.
type GetResidentProgressHandler struct {
	source Source
	cache  ProgressCache
	log    *logger.Logger
}

// NewGetResidentProgressHandler создаёт обработчик. cache может быть nil.
func NewGetResidentProgressHandler(source Source, cache ProgressCache, log *logger.Logger) *GetResidentProgressHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetResidentProgressHandler{source: source, cache: cache, log: log}
}

// Handle возвращает прогресс или ErrResidentNotFound.
func (h *GetResidentProgressHandler) Handle(ctx context.Context, q GetResidentProgressQuery) (_ *ResidentProgressDTO, err error) {
	id := shared.ResidentID(q.ResidentID)
	ctx, span := observability.StartSpan(ctx, "progress.GetResidentProgress", attribute.String("resident_id", q.ResidentID))
	defer func() { observability.EndSpan(span, err) }()

	version := int64(-1)
	if h.cache != nil {
		payload, v, hit := h.cache.GetProgress(ctx, id)
		if hit {
			var cached ResidentProgressDTO
			if jsonErr := json.Unmarshal(payload, &cached); jsonErr == nil {
				span.SetAttributes(attribute.Bool("cache_hit", true))
				return &cached, nil
			}
		}
		version = v
	}

	start := time.Now()
	c, err := h.source.compute(ctx, id)
	if err != nil {
		return nil, err
	}
	out := c.dto()

	h.log.Debug("progress computed",
		logger.ResidentID(q.ResidentID),
		logger.Int("epas", len(out.Progress)),
		logger.Int("assessments", out.Stats.TotalAssessments),
		logger.Latency(time.Since(start)),
	)

	if h.cache != nil && version >= 0 {
		if payload, jsonErr := json.Marshal(out); jsonErr == nil {
			h.cache.PutProgress(ctx, id, version, payload)
		}
	}
	return out, nil
}
