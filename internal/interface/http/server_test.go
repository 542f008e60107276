package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rms-hub/residency-hub/internal/application/command"
	"github.com/rms-hub/residency-hub/internal/application/query"
	"github.com/rms-hub/residency-hub/internal/infrastructure/persistence/memory"
	"github.com/rms-hub/residency-hub/pkg/logger"
	"github.com/rms-hub/residency-hub/pkg/timeutil"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
	Meta *struct {
		TotalCount int `json:"total_count"`
	} `json:"meta"`
	RequestID string `json:"request_id"`
}

func newTestServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()
	store := memory.NewSeeded()
	repos := store.Repositories()

	src := query.Source{
		Residents:    repos.Residents,
		EPAs:         repos.EPAs,
		Requirements: repos.Requirements,
		Assessments:  repos.Assessments,
	}
	cat := query.Catalog{EPAs: repos.EPAs, Residents: repos.Residents, Faculty: repos.Faculty, Sites: repos.Sites}
	deps := command.Deps{
		Assessments: repos.Assessments,
		Residents:   repos.Residents,
		Faculty:     repos.Faculty,
		EPAs:        repos.EPAs,
		Sites:       repos.Sites,
		Clock:       timeutil.NewFixedClock(time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)),
	}

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	if mutate != nil {
		mutate(&cfg)
	}

	s := NewServer(cfg, Dependencies{
		Catalog:          query.NewCatalogHandler(cat),
		Assessments:      query.NewAssessmentsHandler(repos.Assessments, cat),
		ResidentProgress: query.NewGetResidentProgressHandler(src, nil, nil),
		ProgramProgress:  query.NewGetProgramProgressHandler(src, 2),
		Users:            query.NewUsersHandler(cat),
		Submit:           command.NewSubmitAssessmentHandler(deps, command.NewValidator()),
		Acknowledge:      command.NewAcknowledgeAssessmentHandler(deps),
		Delete:           command.NewDeleteAssessmentHandler(deps),
		Logger:           logger.Nop(),
	})
	t.Cleanup(func() { _ = s.Shutdown(t.Context()) })
	return s
}

func do(t *testing.T, s *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func dataAs[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Status & catalog
// ─────────────────────────────────────────────────────────────────────────────

func TestServer_StatusEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.RequestID)
	assert.Equal(t, env.RequestID, rec.Header().Get("X-Request-ID"))

	for _, path := range []string{"/health", "/ready", "/live", "/metrics"} {
		assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, path, nil, nil).Code, path)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/nope", nil, map[string]string{"X-Request-ID": "req-1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env = decode(t, rec)
	assert.Equal(t, "not_found", env.Error.Code)
	assert.Equal(t, "req-1", env.RequestID)
}

func TestServer_Catalog(t *testing.T) {
	s := newTestServer(t, nil)

	env := decode(t, do(t, s, http.MethodGet, "/api/v1/epas", nil, nil))
	epas := dataAs[[]query.EPADTO](t, env)
	assert.Len(t, epas, 18)
	assert.Equal(t, 18, env.Meta.TotalCount)

	residents := dataAs[[]query.ResidentDTO](t, decode(t, do(t, s, http.MethodGet, "/api/v1/residents?program_id=prog-mgh-surg", nil, nil)))
	require.Len(t, residents, 6)
	assert.Equal(t, "res-chen", residents[0].ID)

	faculty := dataAs[[]query.FacultyDTO](t, decode(t, do(t, s, http.MethodGet, "/api/v1/faculty", nil, nil)))
	require.Len(t, faculty, 6)
	assert.Equal(t, "Chen", faculty[0].LastName)

	sites := dataAs[[]query.ClinicalSiteDTO](t, decode(t, do(t, s, http.MethodGet, "/api/v1/clinical-sites", nil, nil)))
	require.Len(t, sites, 8)
	assert.Equal(t, "affiliate", sites[0].SiteType)
}

// ─────────────────────────────────────────────────────────────────────────────
// Progress
// ─────────────────────────────────────────────────────────────────────────────

func TestServer_ResidentProgressETag(t *testing.T) {
	s := newTestServer(t, nil)
	path := "/api/v1/residents/res-rodriguez/progress"

	rec := do(t, s, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tag := rec.Header().Get("ETag")
	require.NotEmpty(t, tag)

	dto := dataAs[query.ResidentProgressDTO](t, decode(t, rec))
	assert.Len(t, dto.Progress, 18)
	assert.Equal(t, 3.5, dto.Stats.AvgLevel)
	assert.Equal(t, 3, dto.Stats.UniqueAssessors)

	rec = do(t, s, http.MethodGet, path, nil, map[string]string{"If-None-Match": tag})
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())

	rec = do(t, s, http.MethodGet, path, nil, map[string]string{"If-None-Match": `"other", W/` + tag})
	assert.Equal(t, http.StatusNotModified, rec.Code)

	// A new assessment changes the representation.
	submit := do(t, s, http.MethodPost, "/api/v1/assessments", map[string]any{
		"resident_id": "res-rodriguez", "assessor_id": "fac-kim", "epa_id": 5, "entrustment_level": 4,
	}, nil)
	require.Equal(t, http.StatusCreated, submit.Code)

	rec = do(t, s, http.MethodGet, path, nil, map[string]string{"If-None-Match": tag})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, tag, rec.Header().Get("ETag"))
}

func TestServer_ResidentProgressWithoutETag(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.ProgressETag = false })

	rec := do(t, s, http.MethodGet, "/api/v1/residents/res-chen/progress", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("ETag"))

	dto := dataAs[query.ResidentProgressDTO](t, decode(t, rec))
	assert.Zero(t, dto.Stats.TotalAssessments)
	assert.Zero(t, dto.Stats.AvgLevel)
}

func TestServer_ResidentProgressNotFound(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/v1/residents/res-ghost/progress", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decode(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "resident not found", env.Error.Message)
}

func TestServer_Users(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/v1/users", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	users := dataAs[[]query.UserDTO](t, env)
	require.Len(t, users, 11)
	assert.Equal(t, 11, env.Meta.TotalCount)
	assert.Equal(t, "Chen", users[0].LastName)

	rec = do(t, s, http.MethodGet, "/api/v1/users/"+users[0].ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &detail))
	assert.JSONEq(t, `"res-chen"`, string(detail["id"]))
	assert.Contains(t, detail, "resident")
	assert.Contains(t, detail, "faculty")
	assert.Contains(t, detail, "role")

	rec = do(t, s, http.MethodGet, "/api/v1/users/00000000-0000-0000-0000-000000000000", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", decode(t, rec).Error.Message)
}

func TestServer_ProgramProgress(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/v1/programs/prog-mgh-surg/progress", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dto := dataAs[query.ProgramProgressDTO](t, decode(t, rec))
	require.Len(t, dto.Residents, 6)
	assert.Equal(t, "res-chen", dto.Residents[0].Resident.ID)
	assert.Equal(t, "res-singh", dto.Residents[5].Resident.ID)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/v1/programs/prog-none/progress", nil, nil).Code)

	off := newTestServer(t, func(c *Config) { c.ProgramProgress = false })
	assert.Equal(t, http.StatusNotFound, do(t, off, http.MethodGet, "/api/v1/programs/prog-mgh-surg/progress", nil, nil).Code)
}

// ─────────────────────────────────────────────────────────────────────────────
// Assessments
// ─────────────────────────────────────────────────────────────────────────────

func TestServer_SubmitAssessment(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/assessments", map[string]any{
		"resident_id":       "res-johnson",
		"assessor_id":       "fac-patel",
		"epa_id":            "5",
		"entrustment_level": 4,
		"clinical_site_id":  "site-mgh-or",
		"case_urgency":      "urgent",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := dataAs[command.SubmitAssessmentResult](t, decode(t, rec))
	require.NotEmpty(t, res.ID)
	assert.Equal(t, "/api/v1/assessments/"+res.ID, rec.Header().Get("Location"))

	got := dataAs[query.AssessmentDTO](t, decode(t, do(t, s, http.MethodGet, "/api/v1/assessments/"+res.ID, nil, nil)))
	assert.Equal(t, 5, got.EPAID)
	assert.False(t, got.Acknowledged)
	assert.Equal(t, "Patel", got.FacultyLastName)
}

func TestServer_SubmitAssessmentErrors(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/assessments", map[string]any{"epa_id": 5, "entrustment_level": 9}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "validation_error", env.Error.Code)
	assert.Contains(t, env.Error.Details, "resident_id")
	assert.Contains(t, env.Error.Details, "assessor_id")
	assert.Contains(t, env.Error.Details, "entrustment_level")

	rec = do(t, s, http.MethodPost, "/api/v1/assessments", `{"resident_id":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decode(t, rec).Error.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/assessments", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/assessments", map[string]any{
		"resident_id": "res-johnson", "assessor_id": "fac-patel", "epa_id": 99, "entrustment_level": 3,
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_AcknowledgeFlow(t *testing.T) {
	s := newTestServer(t, nil)
	pending := "/api/v1/residents/res-rodriguez/unacknowledged"

	list := dataAs[[]query.AssessmentDTO](t, decode(t, do(t, s, http.MethodGet, pending, nil, nil)))
	require.Len(t, list, 1)
	assert.Equal(t, "assess-004", list[0].ID)

	for range 2 {
		rec := do(t, s, http.MethodPatch, "/api/v1/assessments/assess-004/acknowledge", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		res := dataAs[command.AcknowledgeAssessmentResult](t, decode(t, rec))
		assert.True(t, res.Acknowledged)
		assert.Equal(t, "no-store, no-cache, must-revalidate, max-age=0", rec.Header().Get("Cache-Control"))
	}

	list = dataAs[[]query.AssessmentDTO](t, decode(t, do(t, s, http.MethodGet, pending, nil, nil)))
	assert.Empty(t, list)

	rec := do(t, s, http.MethodPatch, "/api/v1/assessments/assess-999/acknowledge", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Assessment not found", decode(t, rec).Error.Message)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/v1/residents/res-ghost/unacknowledged", nil, nil).Code)
}

func TestServer_DeleteAssessment(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodDelete, "/api/v1/assessments/assess-022", nil, map[string]string{"X-Actor-ID": "fac-kim"})
	require.Equal(t, http.StatusOK, rec.Code)
	res := dataAs[command.DeleteAssessmentResult](t, decode(t, rec))
	assert.True(t, res.Deleted)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/v1/assessments/assess-022", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodDelete, "/api/v1/assessments/assess-022", nil, nil).Code)
}

func TestServer_ListAssessments(t *testing.T) {
	s := newTestServer(t, nil)

	env := decode(t, do(t, s, http.MethodGet, "/api/v1/assessments?assessor_id=fac-patel", nil, nil))
	list := dataAs[[]query.AssessmentDTO](t, env)
	require.NotEmpty(t, list)
	assert.Equal(t, "assess-012", list[0].ID)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].AssessmentDate.After(list[i-1].AssessmentDate))
	}

	list = dataAs[[]query.AssessmentDTO](t, decode(t, do(t, s, http.MethodGet, "/api/v1/assessments?resident_id=res-rodriguez&epa_id=5&limit=2", nil, nil)))
	require.Len(t, list, 2)
	assert.Equal(t, "assess-004", list[0].ID)

	rec := do(t, s, http.MethodGet, "/api/v1/assessments?epa_id=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "must be an integer", decode(t, rec).Error.Details["epa_id"])

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/assessments?limit=-1", nil, nil).Code)
}

// ─────────────────────────────────────────────────────────────────────────────
// Middleware
// ─────────────────────────────────────────────────────────────────────────────

func TestServer_RateLimit(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.RateLimitPerMinute = 2 })

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/live", nil, nil).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/live", nil, nil).Code)
	rec := do(t, s, http.MethodGet, "/live", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limit_exceeded", decode(t, rec).Error.Code)
}

func TestServer_APIKeyGuardsWrites(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.APIKeys = []string{"secret"} })

	path := "/api/v1/assessments/assess-004/acknowledge"
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodPatch, path, nil, nil).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPatch, path, nil, map[string]string{"X-API-Key": "secret"}).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/v1/epas", nil, nil).Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodOptions, "/api/v1/assessments/x/acknowledge", nil, map[string]string{"Origin": "https://app.example"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Actor-ID")
}

func TestServer_RecoversFromPanics(t *testing.T) {
	// Handlers are missing, so the catalog route dereferences nil.
	s := NewServer(DefaultConfig(), Dependencies{Logger: logger.Nop()})
	t.Cleanup(func() { _ = s.Shutdown(t.Context()) })

	rec := do(t, s, http.MethodGet, "/api/v1/epas", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_server_error", decode(t, rec).Error.Code)
}

func TestClientIP(t *testing.T) {
	s := &Server{config: Config{TrustedProxies: []string{"10.0.0.1"}}}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", s.clientIP(req))

	req.RemoteAddr = "198.51.100.2:5555"
	assert.Equal(t, "198.51.100.2", s.clientIP(req))
}

func TestETagMatches(t *testing.T) {
	tag := progressETag([]byte(`{"a":1}`))
	assert.Len(t, tag, 34)
	assert.Equal(t, tag, progressETag([]byte(`{"a":1}`)))
	assert.NotEqual(t, tag, progressETag([]byte(`{"a":2}`)))

	assert.True(t, etagMatches(tag, tag))
	assert.True(t, etagMatches("*", tag))
	assert.True(t, etagMatches(`"x", W/`+tag, tag))
	assert.False(t, etagMatches("", tag))
	assert.False(t, etagMatches(`"x"`, tag))
}
