package http

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/rms-hub/residency-hub/internal/application/command"
	"github.com/rms-hub/residency-hub/internal/application/query"
	"github.com/rms-hub/residency-hub/internal/domain/shared"
	"github.com/rms-hub/residency-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"name":        "Residency Hub API",
		"version":     s.config.Version,
		"description": "EPA assessment tracking for surgical residency programs",
		"endpoints": map[string]string{
			"health":         "/health",
			"epas":           "/api/v1/epas",
			"residents":      "/api/v1/residents",
			"faculty":        "/api/v1/faculty",
			"clinical_sites": "/api/v1/clinical-sites",
			"users":          "/api/v1/users",
			"assessments":    "/api/v1/assessments",
			"progress":       "/api/v1/residents/{id}/progress",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if status.Version == "" {
		status.Version = s.config.Version
	}
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": status.Message,
		})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"uptime_seconds":     s.Uptime().Seconds(),
		"requests_total":     s.stats.total.Load(),
		"responses_2xx_3xx":  s.stats.success.Load(),
		"responses_4xx":      s.stats.client.Load(),
		"responses_5xx":      s.stats.server.Load(),
		"responses_throttle": s.stats.throttled.Load(),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, r, http.StatusNotFound, "not_found", "Route not found", nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleListEPAs handles GET /api/v1/epas?specialty=
func (s *Server) handleListEPAs(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Catalog.ListEPAs(r.Context(), query.ListEPAsQuery{
		Specialty: r.URL.Query().Get("specialty"),
	})
	s.respondList(w, r, list, len(list), err)
}

// handleListResidents handles GET /api/v1/residents?program_id=
func (s *Server) handleListResidents(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Catalog.ListResidents(r.Context(), query.ListResidentsQuery{
		ProgramID: r.URL.Query().Get("program_id"),
	})
	s.respondList(w, r, list, len(list), err)
}

func (s *Server) handleListFaculty(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Catalog.ListFaculty(r.Context())
	s.respondList(w, r, list, len(list), err)
}

func (s *Server) handleListClinicalSites(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Catalog.ListClinicalSites(r.Context())
	s.respondList(w, r, list, len(list), err)
}

// handleListUsers handles GET /api/v1/users
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Users.List(r.Context())
	s.respondList(w, r, list, len(list), err)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Users.Get(r.Context(), query.GetUserQuery{UserID: r.PathValue("id")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetResidentProgress handles GET /api/v1/residents/{id}/progress.
// The body is hashed into a strong ETag; a matching If-None-Match gets 304.
func (s *Server) handleGetResidentProgress(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.ResidentProgress.Handle(r.Context(), query.GetResidentProgressQuery{
		ResidentID: r.PathValue("id"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if !s.config.ProgressETag {
		writeJSON(w, r, http.StatusOK, dto)
		return
	}

	body, err := json.Marshal(dto)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tag := progressETag(body)
	w.Header().Set("ETag", tag)
	w.Header().Set("Cache-Control", "private, no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), tag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, r, http.StatusOK, json.RawMessage(body))
}

// handleGetProgramProgress handles GET /api/v1/programs/{id}/progress
func (s *Server) handleGetProgramProgress(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.ProgramProgress.Handle(r.Context(), query.GetProgramProgressQuery{
		ProgramID: r.PathValue("id"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, dto, &ResponseMeta{TotalCount: len(dto.Residents)})
}

// handleListUnacknowledged handles GET /api/v1/residents/{id}/unacknowledged
func (s *Server) handleListUnacknowledged(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Assessments.Unacknowledged(r.Context(), query.ListUnacknowledgedQuery{
		ResidentID: r.PathValue("id"),
	})
	s.respondList(w, r, list, len(list), err)
}

// ══════════════════════════════════════════════════════════════════════════════
// ASSESSMENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleListAssessments handles
// GET /api/v1/assessments?resident_id=&assessor_id=&epa_id=&limit=
func (s *Server) handleListAssessments(w http.ResponseWriter, r *http.Request) {
	ve := shared.NewValidationError("http.ListAssessments")
	q := query.ListAssessmentsQuery{
		ResidentID: r.URL.Query().Get("resident_id"),
		AssessorID: r.URL.Query().Get("assessor_id"),
		EPAID:      queryInt(r, "epa_id", ve),
		Limit:      queryInt(r, "limit", ve),
	}
	if err := ve.OrNil(); err != nil {
		s.writeError(w, r, err)
		return
	}

	list, err := s.deps.Assessments.List(r.Context(), q)
	s.respondList(w, r, list, len(list), err)
}

func (s *Server) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Assessments.Get(r.Context(), query.GetAssessmentQuery{AssessmentID: r.PathValue("id")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// handleSubmitAssessment handles POST /api/v1/assessments -> 201 {id}
func (s *Server) handleSubmitAssessment(w http.ResponseWriter, r *http.Request) {
	var cmd command.SubmitAssessmentCommand
	if !s.decodeJSON(w, r, &cmd) {
		return
	}
	cmd.CorrelationID = getRequestID(r.Context())

	res, err := s.deps.Submit.Handle(r.Context(), cmd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/assessments/"+res.ID)
	writeJSON(w, r, http.StatusCreated, res)
}

// handleAcknowledgeAssessment handles PATCH /api/v1/assessments/{id}/acknowledge
func (s *Server) handleAcknowledgeAssessment(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Acknowledge.Handle(r.Context(), command.AcknowledgeAssessmentCommand{
		AssessmentID:  r.PathValue("id"),
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleDeleteAssessment handles DELETE /api/v1/assessments/{id}. The actor
// comes from the X-Actor-ID header.
func (s *Server) handleDeleteAssessment(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Delete.Handle(r.Context(), command.DeleteAssessmentCommand{
		AssessmentID:  r.PathValue("id"),
		DeletedBy:     strings.TrimSpace(r.Header.Get("X-Actor-ID")),
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) respondList(w http.ResponseWriter, r *http.Request, data any, n int, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, data, &ResponseMeta{TotalCount: n})
}

// writeError maps application errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if ve, ok := shared.AsValidation(err); ok {
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", "Validation failed", ve.Fields)
		return
	}

	var de *shared.DomainError
	switch {
	case shared.IsNotFound(err):
		msg := "Not found"
		if errors.As(err, &de) {
			msg = de.Message
		}
		writeJSONError(w, r, http.StatusNotFound, "not_found", msg, nil)
	case shared.IsValidation(err):
		msg := "Invalid input"
		if errors.As(err, &de) {
			msg = de.Message
		}
		writeJSONError(w, r, http.StatusBadRequest, "invalid_input", msg, nil)
	case shared.IsRetryable(err):
		logger.FromContext(r.Context()).Warn("dependency unavailable", logger.Err(err), logger.String("path", r.URL.Path))
		w.Header().Set("Retry-After", "5")
		writeJSONError(w, r, http.StatusServiceUnavailable, "service_unavailable", "Service temporarily unavailable", nil)
	default:
		logger.FromContext(r.Context()).Error("request failed", logger.Err(err), logger.String("path", r.URL.Path))
		writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "An unexpected error occurred", nil)
	}
}

// decodeJSON decodes the request body into dst and writes a 400/413 on
// failure.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeJSONError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large", nil)
	case errors.Is(err, io.EOF):
		writeJSONError(w, r, http.StatusBadRequest, "invalid_json", "Request body is empty", nil)
	default:
		writeJSONError(w, r, http.StatusBadRequest, "invalid_json", "Malformed JSON body", err.Error())
	}
	return false
}

// queryInt parses an optional integer parameter; absent means 0.
func queryInt(r *http.Request, key string, ve *shared.ValidationError) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		ve.Add(key, "must be an integer")
		return 0
	}
	return n
}

// progressETag is a strong validator over the serialized progress.
func progressETag(body []byte) string {
	sum := blake2b.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// etagMatches implements the weak comparison If-None-Match requires.
func etagMatches(header, tag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == tag {
			return true
		}
	}
	return false
}
