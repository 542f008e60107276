package assessment

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rms-hub/residency-hub/internal/domain/shared"
)

var now = time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

func validParams() NewParams {
	return NewParams{
		ResidentID: "res-johnson",
		AssessorID: "fac-kim",
		EPAID:      5,
		Level:      3,
	}
}

func TestNew_Defaults(t *testing.T) {
	a, err := New(validParams(), now)
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, now, a.AssessmentDate)
	assert.Equal(t, now, a.SubmissionDate)
	assert.Equal(t, EntryWeb, a.EntryMethod)
	assert.JSONEq(t, `{}`, string(a.SpecialtyContext))
	assert.False(t, a.Acknowledged)
	assert.Nil(t, a.AcknowledgedAt)
	assert.Nil(t, a.Context.ProcedureDurationMin)
	assert.Nil(t, a.NarrativeFeedback)
}

func TestNew_KeepsExplicitZeroAndObservationDate(t *testing.T) {
	p := validParams()
	observed := now.Add(-48 * time.Hour)
	p.AssessmentDate = &observed
	p.Context.ProcedureDurationMin = Ptr(0)
	p.Context.Complications = Ptr(false)
	p.EntryMethod = Ptr(EntryMobileIOS)
	p.SpecialtyContext = json.RawMessage(`{"approach":"laparoscopic"}`)

	a, err := New(p, now)
	require.NoError(t, err)
	assert.Equal(t, observed, a.AssessmentDate)
	assert.Equal(t, now, a.SubmissionDate)
	require.NotNil(t, a.Context.ProcedureDurationMin)
	assert.Equal(t, 0, *a.Context.ProcedureDurationMin)
	require.NotNil(t, a.Context.Complications)
	assert.False(t, *a.Context.Complications)
	assert.Equal(t, EntryMobileIOS, a.EntryMethod)
}

func TestNew_ValidationCollectsAllFields(t *testing.T) {
	p := NewParams{
		Level: 7,
		Context: Context{
			PatientASAClass:      Ptr(9),
			ProcedureDurationMin: Ptr(-1),
			CaseUrgency:          Ptr(Urgency("whenever")),
			LocationType:         Ptr(LocationType("car park")),
		},
		SpecialtyContext: json.RawMessage(`[1,2]`),
	}
	_, err := New(p, now)
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	ve, ok := shared.AsValidation(err)
	require.True(t, ok)
	for _, field := range []string{
		"resident_id", "assessor_id", "epa_id", "entrustment_level",
		"patient_asa_class", "procedure_duration_min", "case_urgency",
		"location_type", "specialty_context",
	} {
		assert.Contains(t, ve.Fields, field)
	}
	assert.Equal(t, "must be between 1 and 5", ve.Fields["entrustment_level"])
}

func TestNew_MissingLevel(t *testing.T) {
	p := validParams()
	p.Level = 0
	_, err := New(p, now)
	ve, ok := shared.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "is required", ve.Fields["entrustment_level"])
}

func TestAcknowledge_RefreshesTimestamp(t *testing.T) {
	a, err := New(validParams(), now)
	require.NoError(t, err)

	require.NoError(t, a.Acknowledge(now.Add(time.Minute)))
	first := *a.AcknowledgedAt
	require.NoError(t, a.Acknowledge(now.Add(time.Hour)))

	assert.True(t, a.Acknowledged)
	assert.True(t, a.AcknowledgedAt.After(first))
}

func TestAcknowledge_NeverMovesBackwards(t *testing.T) {
	a, err := New(validParams(), now)
	require.NoError(t, err)

	latest := now.Add(time.Hour)
	require.NoError(t, a.Acknowledge(latest))
	require.NoError(t, a.Acknowledge(now.Add(time.Minute)))

	assert.Equal(t, latest, *a.AcknowledgedAt)
	assert.Equal(t, now.Add(time.Minute), a.UpdatedAt)
}

func TestSoftDelete(t *testing.T) {
	a, err := New(validParams(), now)
	require.NoError(t, err)

	require.NoError(t, a.SoftDelete("fac-kim", now))
	assert.True(t, a.Deleted)
	assert.Equal(t, "fac-kim", *a.DeletedBy)

	assert.True(t, shared.IsNotFound(a.SoftDelete("fac-kim", now)))
	assert.True(t, shared.IsNotFound(a.Acknowledge(now)))
}

func TestFilter(t *testing.T) {
	assert.Equal(t, DefaultListLimit, Filter{}.Normalize().Limit)
	assert.Equal(t, MaxListLimit, Filter{Limit: 10000}.Normalize().Limit)

	a, _ := New(validParams(), now)
	assert.True(t, Filter{ResidentID: "res-johnson", EPAID: 5}.Matches(a))
	assert.False(t, Filter{AssessorID: "fac-patel"}.Matches(a))

	a.Acknowledged = true
	assert.False(t, Filter{OnlyUnacknowledged: true}.Matches(a))
	a.Deleted = true
	assert.False(t, Filter{}.Matches(a))
}

func TestSortNewestFirst(t *testing.T) {
	list := []*Assessment{
		{ID: "a", AssessmentDate: now.Add(-time.Hour)},
		{ID: "b", AssessmentDate: now},
		{ID: "c", AssessmentDate: now.Add(-time.Hour)},
	}
	SortNewestFirst(list)
	assert.Equal(t, shared.AssessmentID("b"), list[0].ID)
	assert.Equal(t, shared.AssessmentID("c"), list[1].ID)
	assert.Equal(t, shared.AssessmentID("a"), list[2].ID)
}

func TestClone_IsDeep(t *testing.T) {
	p := validParams()
	p.NarrativeFeedback = Ptr("good case")
	a, _ := New(p, now)
	c := a.Clone()
	*c.NarrativeFeedback = "changed"
	c.SpecialtyContext[0] = '['
	assert.Equal(t, "good case", *a.NarrativeFeedback)
	assert.JSONEq(t, `{}`, string(a.SpecialtyContext))
}
