package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rms-hub/residency-hub/internal/application/command"
	"github.com/rms-hub/residency-hub/internal/application/query"
	"github.com/rms-hub/residency-hub/internal/infrastructure/persistence/memory"
	apihttp "github.com/rms-hub/residency-hub/internal/interface/http"
)

// newAPI serves the real HTTP API over the seeded in-memory store.
func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	return newWrappedAPI(t, func(h http.Handler) http.Handler { return h })
}

func newWrappedAPI(t *testing.T, wrap func(http.Handler) http.Handler) *httptest.Server {
	t.Helper()
	repos := memory.NewSeeded().Repositories()
	src := query.Source{Residents: repos.Residents, EPAs: repos.EPAs, Requirements: repos.Requirements, Assessments: repos.Assessments}
	cat := query.Catalog{EPAs: repos.EPAs, Residents: repos.Residents, Faculty: repos.Faculty, Sites: repos.Sites}
	deps := command.Deps{Assessments: repos.Assessments, Residents: repos.Residents, Faculty: repos.Faculty, EPAs: repos.EPAs, Sites: repos.Sites}

	cfg := apihttp.DefaultConfig()
	cfg.RateLimitPerMinute = 0
	s := apihttp.NewServer(cfg, apihttp.Dependencies{
		Catalog:          query.NewCatalogHandler(cat),
		Assessments:      query.NewAssessmentsHandler(repos.Assessments, cat),
		ResidentProgress: query.NewGetResidentProgressHandler(src, nil, nil),
		ProgramProgress:  query.NewGetProgramProgressHandler(src, 2),
		Submit:           command.NewSubmitAssessmentHandler(deps, command.NewValidator()),
		Acknowledge:      command.NewAcknowledgeAssessmentHandler(deps),
		Delete:           command.NewDeleteAssessmentHandler(deps),
	})
	ts := httptest.NewServer(wrap(s.Handler()))
	t.Cleanup(ts.Close)
	return ts
}

func TestClient_AgainstServer(t *testing.T) {
	ts := newAPI(t)
	cfg := DefaultConfig(ts.URL + "/")
	cfg.ActorID = "fac-kim"
	c := New(cfg)
	ctx := context.Background()

	pending, err := c.ListUnacknowledged(ctx, "res-rodriguez")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "assess-004", pending[0].ID)
	assert.Equal(t, "Thompson", pending[0].FacultyLastName)

	ack, err := c.Acknowledge(ctx, "assess-004")
	require.NoError(t, err)
	assert.True(t, ack.Acknowledged)

	pending, err = c.ListUnacknowledged(ctx, "res-rodriguez")
	require.NoError(t, err)
	assert.Empty(t, pending)

	id, err := c.SubmitAssessment(ctx, SubmitRequest{
		ResidentID: "res-johnson", AssessorID: "fac-patel", EPAID: 5, EntrustmentLevel: 3,
	})
	require.NoError(t, err)
	got, err := c.GetAssessment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, got.EPAID)

	list, err := c.ListAssessments(ctx, ListOptions{ResidentID: "res-johnson", EPAID: 5})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	del, err := c.DeleteAssessment(ctx, id)
	require.NoError(t, err)
	assert.True(t, del.Deleted)
	_, err = c.GetAssessment(ctx, id)
	assert.True(t, IsNotFound(err))
}

func TestClient_Errors(t *testing.T) {
	c := New(DefaultConfig(newAPI(t).URL))
	ctx := context.Background()

	_, err := c.SubmitAssessment(ctx, SubmitRequest{EPAID: 5, EntrustmentLevel: 7})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "validation_error", apiErr.Code)
	assert.Contains(t, apiErr.Details, "resident_id")

	_, err = c.Acknowledge(ctx, "assess-missing")
	assert.True(t, IsNotFound(err))
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Assessment not found", apiErr.Message)
}

func TestClient_ProgressRevalidatesWithETag(t *testing.T) {
	var notModified atomic.Int32
	ts := newWrappedAPI(t, func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &statusRecorder{ResponseWriter: w}
			h.ServeHTTP(rw, r)
			if rw.status == http.StatusNotModified {
				notModified.Add(1)
			}
		})
	})

	c := New(DefaultConfig(ts.URL))
	ctx := context.Background()

	first, err := c.GetResidentProgress(ctx, "res-rodriguez")
	require.NoError(t, err)
	assert.Equal(t, 3.5, first.Stats.AvgLevel)
	assert.Len(t, first.Progress, 18)

	second, err := c.GetResidentProgress(ctx, "res-rodriguez")
	require.NoError(t, err)
	assert.Equal(t, int32(1), notModified.Load())
	assert.Equal(t, first.Stats, second.Stats)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func TestClient_RetriesReadsOnly(t *testing.T) {
	var gets, patches atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			if gets.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"success":false,"error":{"code":"service_unavailable","message":"down"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"success":true,"data":[{"id":"a1"}]}`))
		default:
			patches.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"success":false,"error":{"code":"service_unavailable","message":"down"}}`))
		}
	}))
	t.Cleanup(ts.Close)

	c := New(DefaultConfig(ts.URL))
	ctx := context.Background()

	list, err := c.ListUnacknowledged(ctx, "res-x")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int32(3), gets.Load())

	_, err = c.Acknowledge(ctx, "a1")
	require.Error(t, err)
	assert.Equal(t, int32(1), patches.Load())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
}
