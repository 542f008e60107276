package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Classification(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", ErrAssessmentNotFound)
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsValidation(wrapped))
	assert.Equal(t, "assessment.Find: Assessment not found", ErrAssessmentNotFound.Error())

	io := WrapError("assessment", "List", ErrServiceUnavailable, "store down", errors.New("dial tcp"))
	assert.True(t, IsRetryable(io))
	assert.Contains(t, io.Error(), "dial tcp")

	assert.True(t, IsValidation(ErrInvalidEntrustment))
}

func TestValidationError(t *testing.T) {
	ve := NewValidationError("submit")
	assert.NoError(t, ve.OrNil())

	ve.Add("epa_id", "is required")
	ve.Add("epa_id", "ignored second message")
	ve.Add("entrustment_level", "must be between 1 and 5")

	err := fmt.Errorf("wrap: %w", ve.OrNil())
	assert.True(t, IsValidation(err))
	got, ok := AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "is required", got.Fields["epa_id"])
	assert.Equal(t, "submit: validation failed: entrustment_level: must be between 1 and 5; epa_id: is required", ve.Error())
}

func TestEntrustmentLevel(t *testing.T) {
	for n := 1; n <= 5; n++ {
		l, err := NewEntrustmentLevel(n)
		require.NoError(t, err)
		assert.NotEmpty(t, l.Name())
	}
	assert.Equal(t, "Indirect", LevelIndirect.Name())
	assert.Equal(t, "4 (Available)", LevelAvailable.String())

	_, err := NewEntrustmentLevel(0)
	assert.True(t, IsValidation(err))
	_, err = NewEntrustmentLevel(6)
	assert.ErrorIs(t, err, ErrValueOutOfRange)
}

func TestTrainingLevel(t *testing.T) {
	l, err := NewTrainingLevel(3)
	require.NoError(t, err)
	assert.Equal(t, "PGY-3", l.String())
	_, err = NewTrainingLevel(11)
	assert.Error(t, err)
}

func TestNewEnvelope(t *testing.T) {
	at := time.Date(2025, 1, 20, 11, 0, 0, 0, time.UTC)
	ev := NewAssessmentSubmittedEvent("assess-004", "res-rodriguez", "fac-thompson", 5, LevelAvailable, at)
	ev.BaseEvent = ev.WithCorrelationID("req-9")

	env, err := NewEnvelope(ev)
	require.NoError(t, err)
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, EventAssessmentSubmitted, env.Type)
	assert.Equal(t, "assess-004", env.AggregateID)
	assert.Equal(t, ResidentID("res-rodriguez"), env.ResidentID)
	assert.Equal(t, "req-9", env.CorrelationID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, float64(4), payload["entrustment_level"])
}
