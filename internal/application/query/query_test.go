package query

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rms-hub/residency-hub/internal/domain/assessment"
	"github.com/rms-hub/residency-hub/internal/domain/resident"
	"github.com/rms-hub/residency-hub/internal/domain/shared"
	"github.com/rms-hub/residency-hub/internal/infrastructure/persistence/memory"
	"github.com/rms-hub/residency-hub/internal/infrastructure/persistence/seed"
)

func newFixture(t *testing.T) (*memory.Store, Source, Catalog) {
	t.Helper()
	store := memory.NewSeeded()
	repos := store.Repositories()
	src := Source{
		Residents:    repos.Residents,
		EPAs:         repos.EPAs,
		Requirements: repos.Requirements,
		Assessments:  repos.Assessments,
	}
	cat := Catalog{EPAs: repos.EPAs, Residents: repos.Residents, Faculty: repos.Faculty, Sites: repos.Sites}
	return store, src, cat
}

func rowFor(t *testing.T, dto *ResidentProgressDTO, epaID int) EPAProgressDTO {
	t.Helper()
	for _, row := range dto.Progress {
		if row.EPAID == epaID {
			return row
		}
	}
	t.Fatalf("epa %d missing from progress", epaID)
	return EPAProgressDTO{}
}

// ─────────────────────────────────────────────────────────────────────────────
// Resident progress
// ─────────────────────────────────────────────────────────────────────────────

func TestGetResidentProgress_Rodriguez(t *testing.T) {
	_, src, _ := newFixture(t)
	h := NewGetResidentProgressHandler(src, nil, nil)

	dto, err := h.Handle(context.Background(), GetResidentProgressQuery{ResidentID: "res-rodriguez"})
	require.NoError(t, err)

	assert.Equal(t, "PGY-4", dto.Resident.PGYLevel)
	require.Len(t, dto.Progress, 18)
	for i, row := range dto.Progress {
		assert.Equal(t, i+1, row.EPAID, "display order")
		assert.Equal(t, row.TotalAssessments, row.Level1+row.Level2+row.Level3+row.Level4+row.Level5)
	}

	epa5 := rowFor(t, dto, 5)
	assert.Equal(t, 4, epa5.TotalAssessments)
	assert.Equal(t, 2, epa5.Level3)
	assert.Equal(t, 2, epa5.Level4)
	require.NotNil(t, epa5.HighestLevel)
	assert.Equal(t, 4, *epa5.HighestLevel)
	require.NotNil(t, epa5.LastAssessment)
	assert.True(t, time.Date(2025, 1, 20, 11, 0, 0, 0, time.UTC).Equal(*epa5.LastAssessment))

	// PGY-4 has no year-specific rows: the graduation row applies.
	require.NotNil(t, epa5.Requirement)
	assert.Nil(t, epa5.Requirement.TrainingLevel)
	assert.Equal(t, 5, epa5.Requirement.TargetCount)
	assert.Equal(t, 4, epa5.Requirement.TargetLevel)
	assert.Equal(t, 2, epa5.Requirement.CurrentCountAtLevel)
	assert.Equal(t, 3, epa5.Requirement.Deficit)
	assert.False(t, epa5.Requirement.IsMet)

	empty := rowFor(t, dto, 18)
	assert.Zero(t, empty.TotalAssessments)
	assert.Nil(t, empty.HighestLevel)
	assert.Nil(t, empty.LastAssessment)

	assert.Equal(t, StatsDTO{
		TotalAssessments:  6,
		EPAsAssessed:      3,
		UniqueAssessors:   3,
		AvgLevel:          3.5,
		RequirementsMet:   0,
		RequirementsTotal: 18,
	}, dto.Stats)
}

func TestGetResidentProgress_YearSpecificRequirement(t *testing.T) {
	_, src, _ := newFixture(t)
	h := NewGetResidentProgressHandler(src, nil, nil)

	dto, err := h.Handle(context.Background(), GetResidentProgressQuery{ResidentID: "res-johnson"})
	require.NoError(t, err)

	epa5 := rowFor(t, dto, 5)
	require.NotNil(t, epa5.Requirement)
	require.NotNil(t, epa5.Requirement.TrainingLevel)
	assert.Equal(t, "PGY-3", *epa5.Requirement.TrainingLevel)
	assert.Equal(t, 3, epa5.Requirement.TargetCount)
	assert.Equal(t, 1, epa5.Requirement.CurrentCountAtLevel)
	assert.Equal(t, 2, epa5.Requirement.Deficit)

	assert.Equal(t, 3.0, dto.Stats.AvgLevel)

	oc, err := h.Handle(context.Background(), GetResidentProgressQuery{ResidentID: "res-oconnor"})
	require.NoError(t, err)
	assert.Equal(t, 2.3, oc.Stats.AvgLevel)
	epa1 := rowFor(t, oc, 1)
	require.NotNil(t, epa1.Requirement)
	assert.Equal(t, 1, epa1.Requirement.Deficit)
}

func TestGetResidentProgress_NoAssessments(t *testing.T) {
	_, src, _ := newFixture(t)
	dto, err := NewGetResidentProgressHandler(src, nil, nil).
		Handle(context.Background(), GetResidentProgressQuery{ResidentID: "res-chen"})
	require.NoError(t, err)
	assert.Len(t, dto.Progress, 18)
	assert.Zero(t, dto.Stats.AvgLevel)
	assert.Zero(t, dto.Stats.TotalAssessments)
	assert.Equal(t, 18, dto.Stats.RequirementsTotal)
}

func TestGetResidentProgress_MetAfterEnoughAssessments(t *testing.T) {
	store, src, _ := newFixture(t)
	h := NewGetResidentProgressHandler(src, nil, nil)
	ctx := context.Background()
	repo := store.Repositories().Assessments

	add := func(id string, level int) {
		a, err := assessment.New(assessment.NewParams{
			ID: shared.AssessmentID(id), ResidentID: "res-rodriguez", AssessorID: "fac-kim",
			EPAID: 5, Level: level,
		}, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, a))
	}

	add("extra-1", 4)
	add("extra-2", 5)
	dto, err := h.Handle(ctx, GetResidentProgressQuery{ResidentID: "res-rodriguez"})
	require.NoError(t, err)
	assert.Equal(t, 1, rowFor(t, dto, 5).Requirement.Deficit)

	add("extra-3", 4)
	dto, err = h.Handle(ctx, GetResidentProgressQuery{ResidentID: "res-rodriguez"})
	require.NoError(t, err)
	req := rowFor(t, dto, 5).Requirement
	assert.True(t, req.IsMet)
	assert.Zero(t, req.Deficit)
	assert.Equal(t, 1, dto.Stats.RequirementsMet)
}

func TestGetResidentProgress_SoftDeletedExcluded(t *testing.T) {
	store, src, _ := newFixture(t)
	ctx := context.Background()
	_, err := store.Repositories().Assessments.SoftDelete(ctx, "assess-004", "fac-thompson", time.Now())
	require.NoError(t, err)

	dto, err := NewGetResidentProgressHandler(src, nil, nil).Handle(ctx, GetResidentProgressQuery{ResidentID: "res-rodriguez"})
	require.NoError(t, err)
	epa5 := rowFor(t, dto, 5)
	assert.Equal(t, 3, epa5.TotalAssessments)
	assert.Equal(t, 5, dto.Stats.TotalAssessments)
	assert.Equal(t, 2, dto.Stats.UniqueAssessors)
	assert.Equal(t, 3.4, dto.Stats.AvgLevel)
}

func TestGetResidentProgress_NotFound(t *testing.T) {
	store, src, _ := newFixture(t)
	h := NewGetResidentProgressHandler(src, nil, nil)

	_, err := h.Handle(context.Background(), GetResidentProgressQuery{ResidentID: "res-nobody"})
	assert.True(t, shared.IsNotFound(err))
	_, err = h.Handle(context.Background(), GetResidentProgressQuery{ResidentID: ""})
	assert.True(t, shared.IsNotFound(err))

	ds := seed.Default()
	for i := range ds.Residents {
		if ds.Residents[i].ID == "res-singh" {
			ds.Residents[i].Status = resident.StatusWithdrawn
		}
	}
	require.NoError(t, store.Seed(context.Background(), ds))
	_, err = h.Handle(context.Background(), GetResidentProgressQuery{ResidentID: "res-singh"})
	assert.ErrorIs(t, err, shared.ErrResidentNotFound)
}

// mapCache keeps the version contract of the Redis progress cache.
type mapCache struct {
	mu       sync.Mutex
	data     map[shared.ResidentID][]byte
	versions map[shared.ResidentID]int64
	hits     int
}

func newMapCache() *mapCache {
	return &mapCache{data: map[shared.ResidentID][]byte{}, versions: map[shared.ResidentID]int64{}}
}

func (c *mapCache) GetProgress(_ context.Context, id shared.ResidentID) ([]byte, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[id]
	if ok {
		c.hits++
	}
	return b, c.versions[id], ok
}

func (c *mapCache) PutProgress(_ context.Context, id shared.ResidentID, version int64, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[id] != version {
		return
	}
	c.data[id] = payload
}

func (c *mapCache) InvalidateProgress(_ context.Context, id shared.ResidentID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[id]++
	delete(c.data, id)
	return nil
}

// gatedAssessments pauses ListByResident until release is closed.
type gatedAssessments struct {
	assessment.Repository
	entered chan struct{}
	release chan struct{}
}

func (g *gatedAssessments) ListByResident(ctx context.Context, id shared.ResidentID) ([]*assessment.Assessment, error) {
	list, err := g.Repository.ListByResident(ctx, id)
	close(g.entered)
	<-g.release
	return list, err
}

func TestGetResidentProgress_UsesCache(t *testing.T) {
	_, src, _ := newFixture(t)
	cache := newMapCache()
	h := NewGetResidentProgressHandler(src, cache, nil)
	ctx := context.Background()

	first, err := h.Handle(ctx, GetResidentProgressQuery{ResidentID: "res-johnson"})
	require.NoError(t, err)
	require.Contains(t, cache.data, shared.ResidentID("res-johnson"))

	second, err := h.Handle(ctx, GetResidentProgressQuery{ResidentID: "res-johnson"})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, first.Stats, second.Stats)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.JSONEq(t, string(a), string(b))
}

func TestGetResidentProgress_InvalidationWinsOverInFlightCompute(t *testing.T) {
	store, src, _ := newFixture(t)
	ctx := context.Background()
	cache := newMapCache()

	truth, err := NewGetResidentProgressHandler(src, nil, nil).Handle(ctx, GetResidentProgressQuery{ResidentID: "res-johnson"})
	require.NoError(t, err)
	before := truth.Stats.TotalAssessments

	gate := &gatedAssessments{
		Repository: src.Assessments,
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	slow := src
	slow.Assessments = gate
	inFlight := make(chan *ResidentProgressDTO, 1)
	go func() {
		dto, err := NewGetResidentProgressHandler(slow, cache, nil).Handle(ctx, GetResidentProgressQuery{ResidentID: "res-johnson"})
		assert.NoError(t, err)
		inFlight <- dto
	}()
	<-gate.entered

	a, err := assessment.New(assessment.NewParams{
		ResidentID: "res-johnson",
		AssessorID: "fac-patel",
		EPAID:      1,
		Level:      3,
	}, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Repositories().Assessments.Create(ctx, a))
	require.NoError(t, cache.InvalidateProgress(ctx, "res-johnson"))

	close(gate.release)
	assert.Equal(t, before, (<-inFlight).Stats.TotalAssessments)
	assert.NotContains(t, cache.data, shared.ResidentID("res-johnson"), "stale snapshot was not stored")

	h := NewGetResidentProgressHandler(src, cache, nil)
	after, err := h.Handle(ctx, GetResidentProgressQuery{ResidentID: "res-johnson"})
	require.NoError(t, err)
	assert.Equal(t, before+1, after.Stats.TotalAssessments)

	cached, err := h.Handle(ctx, GetResidentProgressQuery{ResidentID: "res-johnson"})
	require.NoError(t, err)
	assert.Equal(t, before+1, cached.Stats.TotalAssessments)
	assert.Equal(t, 1, cache.hits)
}

// ─────────────────────────────────────────────────────────────────────────────
// Assessments
// ─────────────────────────────────────────────────────────────────────────────

func TestAssessments_ListFiltersAndEnriches(t *testing.T) {
	store, _, cat := newFixture(t)
	h := NewAssessmentsHandler(store.Repositories().Assessments, cat)
	ctx := context.Background()

	list, err := h.List(ctx, ListAssessmentsQuery{ResidentID: "res-rodriguez", EPAID: 5})
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, "assess-004", list[0].ID)
	assert.Equal(t, "assess-001", list[3].ID)
	assert.Equal(t, "Thompson", list[0].FacultyLastName)
	assert.Equal(t, "Rodriguez", list[0].ResidentLastName)
	assert.Equal(t, "PGY-4", list[0].PGYLevel)
	require.NotNil(t, list[0].SiteName)
	assert.Equal(t, "BWH Surgical OR Suite", *list[0].SiteName)
	assert.NotEmpty(t, list[0].EPAName)

	byAssessor, err := h.List(ctx, ListAssessmentsQuery{AssessorID: "fac-patel", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, byAssessor, 2)
	assert.Equal(t, "assess-012", byAssessor[0].ID)

	_, err = h.List(ctx, ListAssessmentsQuery{Limit: -1})
	assert.True(t, shared.IsValidation(err))
}

func TestAssessments_Get(t *testing.T) {
	store, _, cat := newFixture(t)
	h := NewAssessmentsHandler(store.Repositories().Assessments, cat)
	ctx := context.Background()

	dto, err := h.Get(ctx, GetAssessmentQuery{AssessmentID: "assess-022"})
	require.NoError(t, err)
	assert.Nil(t, dto.ProcedureDurationMin)
	require.NotNil(t, dto.LocationType)
	assert.Equal(t, "ward", *dto.LocationType)
	assert.False(t, dto.Acknowledged)
	assert.JSONEq(t, `{}`, string(dto.SpecialtyContext))

	_, err = h.Get(ctx, GetAssessmentQuery{AssessmentID: "assess-999"})
	assert.ErrorIs(t, err, shared.ErrAssessmentNotFound)
	assert.Equal(t, "Assessment not found", err.(*shared.DomainError).Message)
}

func TestAssessments_Unacknowledged(t *testing.T) {
	store, _, cat := newFixture(t)
	h := NewAssessmentsHandler(store.Repositories().Assessments, cat)
	ctx := context.Background()

	list, err := h.Unacknowledged(ctx, ListUnacknowledgedQuery{ResidentID: "res-rodriguez"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "assess-004", list[0].ID)

	_, err = store.Repositories().Assessments.Acknowledge(ctx, "assess-004", time.Now())
	require.NoError(t, err)
	list, err = h.Unacknowledged(ctx, ListUnacknowledgedQuery{ResidentID: "res-rodriguez"})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)

	_, err = h.Unacknowledged(ctx, ListUnacknowledgedQuery{ResidentID: "res-ghost"})
	assert.True(t, shared.IsNotFound(err))
}

// ─────────────────────────────────────────────────────────────────────────────
// Catalog
// ─────────────────────────────────────────────────────────────────────────────

func TestCatalog(t *testing.T) {
	_, _, cat := newFixture(t)
	h := NewCatalogHandler(cat)
	ctx := context.Background()

	epas, err := h.ListEPAs(ctx, ListEPAsQuery{})
	require.NoError(t, err)
	require.Len(t, epas, 18)
	assert.Equal(t, 1, epas[0].DisplayOrder)
	assert.Equal(t, "1", epas[0].EPANumber)

	none, err := h.ListEPAs(ctx, ListEPAsQuery{Specialty: "cardiology"})
	require.NoError(t, err)
	assert.Empty(t, none)

	residents, err := h.ListResidents(ctx, ListResidentsQuery{ProgramID: seed.ProgramID.String()})
	require.NoError(t, err)
	ids := make([]string, len(residents))
	for i, r := range residents {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"res-chen", "res-rodriguez", "res-johnson", "res-pham", "res-oconnor", "res-singh"}, ids)

	fac, err := h.ListFaculty(ctx)
	require.NoError(t, err)
	require.Len(t, fac, 6)
	assert.Equal(t, "Chen", fac[0].LastName)
	assert.Equal(t, "Williams", fac[5].LastName)

	sites, err := h.ListClinicalSites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 8)
	assert.Equal(t, "affiliate", sites[0].SiteType)
	assert.Equal(t, "va", sites[7].SiteType)
}

// ─────────────────────────────────────────────────────────────────────────────
// Program progress
// ─────────────────────────────────────────────────────────────────────────────

func TestGetProgramProgress(t *testing.T) {
	_, src, _ := newFixture(t)
	h := NewGetProgramProgressHandler(src, 2)

	dto, err := h.Handle(context.Background(), GetProgramProgressQuery{ProgramID: seed.ProgramID.String()})
	require.NoError(t, err)
	assert.Equal(t, "general_surgery", dto.Specialty)
	require.Len(t, dto.Residents, 6)
	assert.Equal(t, "res-chen", dto.Residents[0].Resident.ID)
	assert.Equal(t, "res-rodriguez", dto.Residents[1].Resident.ID)
	assert.Equal(t, 6, dto.Residents[1].Stats.TotalAssessments)
	assert.Equal(t, 3, dto.Residents[4].Stats.TotalAssessments)

	_, err = h.Handle(context.Background(), GetProgramProgressQuery{ProgramID: "prog-unknown"})
	assert.True(t, shared.IsNotFound(err))
}

type failingAssessments struct {
	assessment.Repository
}

func (failingAssessments) ListByResident(context.Context, shared.ResidentID) ([]*assessment.Assessment, error) {
	return nil, errors.New("connection reset")
}

func TestGetProgramProgress_PropagatesErrors(t *testing.T) {
	_, src, _ := newFixture(t)
	src.Assessments = failingAssessments{src.Assessments}

	_, err := NewGetProgramProgressHandler(src, 0).
		Handle(context.Background(), GetProgramProgressQuery{ProgramID: seed.ProgramID.String()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

// ─────────────────────────────────────────────────────────────────────────────
// Users
// ─────────────────────────────────────────────────────────────────────────────

func TestUsers_ListMergesRosterByEmail(t *testing.T) {
	_, _, cat := newFixture(t)
	h := NewUsersHandler(cat)

	users, err := h.List(context.Background())
	require.NoError(t, err)

	var lastNames []string
	for _, u := range users {
		lastNames = append(lastNames, u.LastName)
		assert.NotEmpty(t, u.Email)
		assert.NotEmpty(t, u.Role)
	}
	assert.Equal(t, []string{
		"Chen", "Johnson", "Kim", "Martinez", "O'Connor", "Patel",
		"Pham", "Rodriguez", "Singh", "Thompson", "Williams",
	}, lastNames)

	chen := users[0]
	assert.Equal(t, "res-chen", chen.ID)
	assert.Equal(t, []string{RoleResident, RoleFaculty}, chen.Roles)
	assert.Equal(t, "resident,faculty", chen.Role)
	assert.Equal(t, []string{RoleFaculty}, users[2].Roles)
}

func TestUsers_GetReturnsProfiles(t *testing.T) {
	_, _, cat := newFixture(t)
	h := NewUsersHandler(cat)
	ctx := context.Background()

	chen, err := h.Get(ctx, GetUserQuery{UserID: "fac-chen"})
	require.NoError(t, err)
	assert.Equal(t, "res-chen", chen.ID)
	require.NotNil(t, chen.Resident)
	require.NotNil(t, chen.Faculty)
	assert.Equal(t, "PGY-5", chen.Resident.PGYLevel)
	assert.Equal(t, "clinical_instructor", chen.Faculty.Rank)
	assert.Len(t, chen.Memberships, 2)

	patel, err := h.Get(ctx, GetUserQuery{UserID: "fac-patel"})
	require.NoError(t, err)
	assert.Nil(t, patel.Resident)
	assert.Equal(t, []MembershipDTO{{Role: RoleFaculty, ProgramID: patel.Memberships[0].ProgramID}}, patel.Memberships)

	raw, err := json.Marshal(patel)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"resident":null`)

	_, err = h.Get(ctx, GetUserQuery{UserID: "00000000-0000-0000-0000-000000000000"})
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}
