package command

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
	"github.com/rms-hub/residency-hub/internal/domain/shared"
	"github.com/rms-hub/residency-hub/internal/infrastructure/persistence/memory"
	"github.com/rms-hub/residency-hub/pkg/timeutil"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
	err    error
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

type fixture struct {
	store *memory.Store
	deps  Deps
	clock *timeutil.FixedClock
	pub   *recordingPublisher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.NewSeeded()
	repos := store.Repositories()
	clock := timeutil.NewFixedClock(time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC))
	pub := &recordingPublisher{}
	return fixture{
		store: store,
		clock: clock,
		pub:   pub,
		deps: Deps{
			Assessments: repos.Assessments,
			Residents:   repos.Residents,
			Faculty:     repos.Faculty,
			EPAs:        repos.EPAs,
			Sites:       repos.Sites,
			Publisher:   pub,
			Clock:       clock,
		},
	}
}

func validCommand() SubmitAssessmentCommand {
	return SubmitAssessmentCommand{
		ResidentID:       "res-pham",
		AssessorID:       "fac-williams",
		EPAID:            3,
		EntrustmentLevel: 3,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Submit
// ─────────────────────────────────────────────────────────────────────────────

func TestSubmit_StoresUnacknowledgedAndPublishes(t *testing.T) {
	f := newFixture(t)
	h := NewSubmitAssessmentHandler(f.deps, nil)
	ctx := context.Background()

	cmd := validCommand()
	cmd.AssessmentDate = "2025-02-01"
	cmd.ProcedureDurationMin = assessment.Ptr(0)
	cmd.ClinicalSiteID = assessment.Ptr("site-mgh-or")
	cmd.CorrelationID = "req-1"

	res, err := h.Handle(ctx, cmd)
	require.NoError(t, err)
	require.NotEmpty(t, res.ID)

	stored, err := f.deps.Assessments.GetByID(ctx, shared.AssessmentID(res.ID))
	require.NoError(t, err)
	assert.False(t, stored.Acknowledged)
	assert.Nil(t, stored.AcknowledgedAt)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), stored.AssessmentDate)
	assert.Equal(t, f.clock.Now(), stored.SubmissionDate)
	require.NotNil(t, stored.Context.ProcedureDurationMin)
	assert.Zero(t, *stored.Context.ProcedureDurationMin)
	assert.Equal(t, assessment.EntryWeb, stored.EntryMethod)
	assert.JSONEq(t, `{}`, string(stored.SpecialtyContext))

	require.Len(t, f.pub.events, 1)
	ev := f.pub.events[0].(shared.AssessmentSubmittedEvent)
	assert.Equal(t, res.ID, ev.AggregateID())
	assert.Equal(t, shared.ResidentID("res-pham"), ev.ResidentKey())
	assert.Equal(t, "req-1", ev.CorrelationID)
}

func TestSubmit_DefaultsAssessmentDateToNow(t *testing.T) {
	f := newFixture(t)
	res, err := NewSubmitAssessmentHandler(f.deps, nil).Handle(context.Background(), validCommand())
	require.NoError(t, err)

	stored, err := f.deps.Assessments.GetByID(context.Background(), shared.AssessmentID(res.ID))
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now(), stored.AssessmentDate)
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t)
	h := NewSubmitAssessmentHandler(f.deps, NewValidator())
	ctx := context.Background()

	cases := map[string]struct {
		mutate func(*SubmitAssessmentCommand)
		field  string
	}{
		"missing resident":     {func(c *SubmitAssessmentCommand) { c.ResidentID = "" }, "resident_id"},
		"blank assessor":       {func(c *SubmitAssessmentCommand) { c.AssessorID = "   " }, "assessor_id"},
		"missing epa":          {func(c *SubmitAssessmentCommand) { c.EPAID = 0 }, "epa_id"},
		"missing level":        {func(c *SubmitAssessmentCommand) { c.EntrustmentLevel = 0 }, "entrustment_level"},
		"level above range":    {func(c *SubmitAssessmentCommand) { c.EntrustmentLevel = 6 }, "entrustment_level"},
		"asa zero":             {func(c *SubmitAssessmentCommand) { c.PatientASAClass = assessment.Ptr(0) }, "patient_asa_class"},
		"asa seven":            {func(c *SubmitAssessmentCommand) { c.PatientASAClass = assessment.Ptr(7) }, "patient_asa_class"},
		"negative duration":    {func(c *SubmitAssessmentCommand) { c.ProcedureDurationMin = assessment.Ptr(-5) }, "procedure_duration_min"},
		"unknown urgency":      {func(c *SubmitAssessmentCommand) { c.CaseUrgency = assessment.Ptr("someday") }, "case_urgency"},
		"unknown location":     {func(c *SubmitAssessmentCommand) { c.LocationType = assessment.Ptr("garage") }, "location_type"},
		"unknown entry":        {func(c *SubmitAssessmentCommand) { c.EntryMethod = assessment.Ptr("fax") }, "entry_method"},
		"bad date":             {func(c *SubmitAssessmentCommand) { c.AssessmentDate = "last tuesday" }, "assessment_date"},
		"non-object specialty": {func(c *SubmitAssessmentCommand) { c.SpecialtyContext = json.RawMessage(`[1]`) }, "specialty_context"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cmd := validCommand()
			tc.mutate(&cmd)
			_, err := h.Handle(ctx, cmd)
			require.Error(t, err)
			require.True(t, shared.IsValidation(err), "got %v", err)
			ve, ok := shared.AsValidation(err)
			require.True(t, ok)
			assert.Contains(t, ve.Fields, tc.field)
		})
	}

	all, err := f.deps.Assessments.ListByResident(ctx, "res-pham")
	require.NoError(t, err)
	assert.Empty(t, all, "nothing is stored when validation fails")
	assert.Empty(t, f.pub.events)
}

func TestSubmit_TranslatedMessages(t *testing.T) {
	v := NewValidator()
	err := v.Struct("submit_assessment", SubmitAssessmentCommand{AssessorID: "fac-kim", EPAID: 1, EntrustmentLevel: 9})
	ve, ok := shared.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "resident_id is a required field", ve.Fields["resident_id"])
	assert.Equal(t, "entrustment_level must be 5 or less", ve.Fields["entrustment_level"])
}

func TestSubmit_UnknownReferences(t *testing.T) {
	f := newFixture(t)
	h := NewSubmitAssessmentHandler(f.deps, nil)
	ctx := context.Background()

	cmd := validCommand()
	cmd.ResidentID = "res-ghost"
	_, err := h.Handle(ctx, cmd)
	assert.ErrorIs(t, err, shared.ErrResidentNotFound)

	cmd = validCommand()
	cmd.AssessorID = "fac-ghost"
	_, err = h.Handle(ctx, cmd)
	assert.ErrorIs(t, err, shared.ErrFacultyNotFound)

	cmd = validCommand()
	cmd.EPAID = 99
	_, err = h.Handle(ctx, cmd)
	assert.ErrorIs(t, err, shared.ErrEPANotFound)

	cmd = validCommand()
	cmd.ClinicalSiteID = assessment.Ptr("site-mars")
	_, err = h.Handle(ctx, cmd)
	assert.True(t, shared.IsNotFound(err))

	assert.Empty(t, f.pub.events)
}

func TestSubmit_PublishFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("bus closed")
	res, err := NewSubmitAssessmentHandler(f.deps, nil).Handle(context.Background(), validCommand())
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
}

func TestFlexInt(t *testing.T) {
	var cmd SubmitAssessmentCommand
	require.NoError(t, json.Unmarshal([]byte(`{"epa_id":"5","entrustment_level":4}`), &cmd))
	assert.Equal(t, FlexInt(5), cmd.EPAID)
	assert.Equal(t, FlexInt(4), cmd.EntrustmentLevel)

	assert.Error(t, json.Unmarshal([]byte(`{"epa_id":"five"}`), &cmd))
}

// ─────────────────────────────────────────────────────────────────────────────
// Acknowledge
// ─────────────────────────────────────────────────────────────────────────────

func TestAcknowledge_IdempotentAndMonotonic(t *testing.T) {
	f := newFixture(t)
	h := NewAcknowledgeAssessmentHandler(f.deps)
	ctx := context.Background()

	first, err := h.Handle(ctx, AcknowledgeAssessmentCommand{AssessmentID: "assess-004"})
	require.NoError(t, err)
	assert.True(t, first.Acknowledged)
	assert.Equal(t, f.clock.Now(), first.AcknowledgedAt)

	f.clock.Advance(time.Minute)
	second, err := h.Handle(ctx, AcknowledgeAssessmentCommand{AssessmentID: "assess-004"})
	require.NoError(t, err)
	assert.True(t, second.Acknowledged)
	assert.False(t, second.AcknowledgedAt.Before(first.AcknowledgedAt))
	assert.Equal(t, f.clock.Now(), second.AcknowledgedAt)

	require.Len(t, f.pub.events, 2)
	assert.Equal(t, shared.EventAssessmentAcknowledged, f.pub.events[1].EventType())
	assert.Equal(t, shared.ResidentID("res-rodriguez"), f.pub.events[1].ResidentKey())
}

func TestAcknowledge_NotFound(t *testing.T) {
	f := newFixture(t)
	h := NewAcknowledgeAssessmentHandler(f.deps)
	ctx := context.Background()

	_, err := h.Handle(ctx, AcknowledgeAssessmentCommand{AssessmentID: "assess-404"})
	assert.ErrorIs(t, err, shared.ErrAssessmentNotFound)
	_, err = h.Handle(ctx, AcknowledgeAssessmentCommand{})
	assert.ErrorIs(t, err, shared.ErrAssessmentNotFound)

	_, err = NewDeleteAssessmentHandler(f.deps).Handle(ctx, DeleteAssessmentCommand{AssessmentID: "assess-022"})
	require.NoError(t, err)
	_, err = h.Handle(ctx, AcknowledgeAssessmentCommand{AssessmentID: "assess-022"})
	assert.ErrorIs(t, err, shared.ErrAssessmentNotFound)
}

// ─────────────────────────────────────────────────────────────────────────────
// Delete
// ─────────────────────────────────────────────────────────────────────────────

func TestDelete(t *testing.T) {
	f := newFixture(t)
	h := NewDeleteAssessmentHandler(f.deps)
	ctx := context.Background()

	res, err := h.Handle(ctx, DeleteAssessmentCommand{AssessmentID: "assess-001", DeletedBy: "fac-patel"})
	require.NoError(t, err)
	assert.True(t, res.Deleted)
	assert.Equal(t, f.clock.Now(), res.DeletedAt)

	_, err = f.deps.Assessments.GetByID(ctx, "assess-001")
	assert.ErrorIs(t, err, shared.ErrAssessmentNotFound)

	_, err = h.Handle(ctx, DeleteAssessmentCommand{AssessmentID: "assess-001"})
	assert.ErrorIs(t, err, shared.ErrAssessmentNotFound)

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, "fac-patel", f.pub.events[0].Payload()["deleted_by"])
}
