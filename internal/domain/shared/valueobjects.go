package shared

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// ResidentID identifies a resident record (e.g. "res-chen").
type ResidentID string

func (id ResidentID) IsValid() bool  { return strings.TrimSpace(string(id)) != "" }
func (id ResidentID) String() string { return string(id) }

// FacultyID identifies a faculty (assessor) record.
type FacultyID string

func (id FacultyID) IsValid() bool  { return strings.TrimSpace(string(id)) != "" }
func (id FacultyID) String() string { return string(id) }

// ProgramID identifies a residency program.
type ProgramID string

func (id ProgramID) IsValid() bool  { return strings.TrimSpace(string(id)) != "" }
func (id ProgramID) String() string { return string(id) }

// ClinicalSiteID identifies a clinical site.
type ClinicalSiteID string

func (id ClinicalSiteID) IsValid() bool  { return strings.TrimSpace(string(id)) != "" }
func (id ClinicalSiteID) String() string { return string(id) }

// AssessmentID identifies an assessment. New assessments get a UUID;
// seeded ones keep their legacy ids.
type AssessmentID string

func (id AssessmentID) IsValid() bool  { return strings.TrimSpace(string(id)) != "" }
func (id AssessmentID) String() string { return string(id) }

// NewAssessmentID generates a random assessment id.
func NewAssessmentID() AssessmentID {
	return AssessmentID(uuid.NewString())
}

// EPAID is the standardized numeric EPA identifier (1..18 for general surgery).
type EPAID int

func (id EPAID) IsValid() bool  { return id > 0 }
func (id EPAID) String() string { return fmt.Sprintf("%d", int(id)) }

// SpecialtyCode is a specialty key such as "general_surgery".
type SpecialtyCode string

const SpecialtyGeneralSurgery SpecialtyCode = "general_surgery"

// ═══════════════════════════════════════════════════════════════════════════
// Entrustment Level
// ═══════════════════════════════════════════════════════════════════════════

// EntrustmentLevel is the 1..5 supervision scale.
type EntrustmentLevel int

const (
	LevelObserve     EntrustmentLevel = 1
	LevelDirect      EntrustmentLevel = 2
	LevelIndirect    EntrustmentLevel = 3
	LevelAvailable   EntrustmentLevel = 4
	LevelIndependent EntrustmentLevel = 5

	MinEntrustmentLevel = LevelObserve
	MaxEntrustmentLevel = LevelIndependent
)

var entrustmentNames = map[EntrustmentLevel]string{
	LevelObserve:     "Observe",
	LevelDirect:      "Direct",
	LevelIndirect:    "Indirect",
	LevelAvailable:   "Available",
	LevelIndependent: "Independent",
}

var entrustmentDescriptions = map[EntrustmentLevel]string{
	LevelObserve:     "Trusted to observe only",
	LevelDirect:      "Trusted to act with direct supervision",
	LevelIndirect:    "Trusted to act with indirect supervision",
	LevelAvailable:   "Trusted to act with supervision available on demand",
	LevelIndependent: "Trusted to act independently and supervise others",
}

func (l EntrustmentLevel) IsValid() bool {
	return l >= MinEntrustmentLevel && l <= MaxEntrustmentLevel
}

// Name returns the short label, or "" for invalid levels.
func (l EntrustmentLevel) Name() string { return entrustmentNames[l] }

func (l EntrustmentLevel) Description() string { return entrustmentDescriptions[l] }

func (l EntrustmentLevel) Int() int { return int(l) }

func (l EntrustmentLevel) String() string {
	if !l.IsValid() {
		return fmt.Sprintf("level %d (invalid)", int(l))
	}
	return fmt.Sprintf("%d (%s)", int(l), l.Name())
}

// NewEntrustmentLevel validates n.
func NewEntrustmentLevel(n int) (EntrustmentLevel, error) {
	l := EntrustmentLevel(n)
	if !l.IsValid() {
		return 0, ErrInvalidEntrustment
	}
	return l, nil
}

// AllEntrustmentLevels lists levels in ascending order.
func AllEntrustmentLevels() []EntrustmentLevel {
	return []EntrustmentLevel{LevelObserve, LevelDirect, LevelIndirect, LevelAvailable, LevelIndependent}
}

// ═══════════════════════════════════════════════════════════════════════════
// Training Level
// ═══════════════════════════════════════════════════════════════════════════

// TrainingLevel is the post-graduate year (PGY).
type TrainingLevel int

const (
	MinTrainingLevel TrainingLevel = 1
	MaxTrainingLevel TrainingLevel = 10
)

func (t TrainingLevel) IsValid() bool {
	return t >= MinTrainingLevel && t <= MaxTrainingLevel
}

func (t TrainingLevel) Int() int { return int(t) }

func (t TrainingLevel) String() string { return fmt.Sprintf("PGY-%d", int(t)) }

// NewTrainingLevel validates n.
func NewTrainingLevel(n int) (TrainingLevel, error) {
	t := TrainingLevel(n)
	if !t.IsValid() {
		return 0, ErrInvalidPGYLevel
	}
	return t, nil
}
