package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rms-hub/residency-hub/internal/domain/assessment"
	"github.com/rms-hub/residency-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASSESSMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AssessmentRepository implements assessment.Repository for PostgreSQL.
type AssessmentRepository struct {
	conn *Connection
}

func NewAssessmentRepository(conn *Connection) *AssessmentRepository {
	return &AssessmentRepository{conn: conn}
}

const assessmentColumns = `
	id, resident_id, assessor_id, epa_id, entrustment_level,
	assessment_date, submission_date,
	clinical_site_id, case_urgency, case_complexity, patient_asa_class,
	procedure_duration_minutes, complications_occurred, location_type, location_details,
	narrative_feedback, specialty_context, entry_method,
	resident_acknowledged, resident_acknowledged_at,
	is_deleted, deleted_at, deleted_by, created_at, updated_at`

// Create inserts a new assessment.
func (r *AssessmentRepository) Create(ctx context.Context, a *assessment.Assessment) error {
	return insertAssessment(ctx, r.conn, a)
}

func insertAssessment(ctx context.Context, q Querier, a *assessment.Assessment) error {
	query := `INSERT INTO epa_assessments (` + assessmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)`

	specialty := a.SpecialtyContext
	if len(specialty) == 0 {
		specialty = json.RawMessage("{}")
	}
	c := a.Context
	_, err := q.Exec(ctx, query,
		a.ID.String(),
		a.ResidentID.String(),
		a.AssessorID.String(),
		int(a.EPAID),
		int(a.Level),
		a.AssessmentDate,
		a.SubmissionDate,
		textPtr(c.ClinicalSiteID),
		textPtr(c.CaseUrgency),
		textPtr(c.CaseComplexity),
		c.PatientASAClass,
		c.ProcedureDurationMin,
		c.Complications,
		textPtr(c.LocationType),
		c.LocationDetails,
		a.NarrativeFeedback,
		[]byte(specialty),
		string(a.EntryMethod),
		a.Acknowledged,
		a.AcknowledgedAt,
		a.Deleted,
		a.DeletedAt,
		a.DeletedBy,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAssessmentExists
		}
		if IsForeignKeyViolation(err) {
			return shared.WrapError("assessment", "Create", shared.ErrInvalidInput, "unknown reference", err)
		}
		return fmt.Errorf("failed to create assessment: %w", err)
	}
	return nil
}

// GetByID returns a non-deleted assessment.
func (r *AssessmentRepository) GetByID(ctx context.Context, id shared.AssessmentID) (*assessment.Assessment, error) {
	row := r.conn.QueryRow(ctx,
		`SELECT `+assessmentColumns+` FROM epa_assessments WHERE id = $1 AND is_deleted = FALSE`, id.String())
	return scanAssessment(row)
}

// List applies f in SQL and returns newest first.
func (r *AssessmentRepository) List(ctx context.Context, f assessment.Filter) ([]*assessment.Assessment, error) {
	f = f.Normalize()

	where := []string{"is_deleted = FALSE"}
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ResidentID != "" {
		add("resident_id = $%d", f.ResidentID.String())
	}
	if f.AssessorID != "" {
		add("assessor_id = $%d", f.AssessorID.String())
	}
	if f.EPAID != 0 {
		add("epa_id = $%d", int(f.EPAID))
	}
	if f.OnlyUnacknowledged {
		where = append(where, "resident_acknowledged = FALSE")
	}
	args = append(args, f.Limit)

	query := fmt.Sprintf(`SELECT %s FROM epa_assessments WHERE %s
		ORDER BY assessment_date DESC, id DESC LIMIT $%d`,
		assessmentColumns, strings.Join(where, " AND "), len(args))

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	return scanAssessments(rows)
}

// ListByResident returns every non-deleted assessment of a resident.
func (r *AssessmentRepository) ListByResident(ctx context.Context, residentID shared.ResidentID) ([]*assessment.Assessment, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+assessmentColumns+` FROM epa_assessments
		WHERE resident_id = $1 AND is_deleted = FALSE
		ORDER BY assessment_date DESC, id DESC`, residentID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list resident assessments: %w", err)
	}
	return scanAssessments(rows)
}

// Acknowledge sets the flag and moves the timestamp forward. GREATEST skips
// the NULL of a first acknowledgement.
func (r *AssessmentRepository) Acknowledge(ctx context.Context, id shared.AssessmentID, at time.Time) (*assessment.Assessment, error) {
	at = at.UTC()
	row := r.conn.QueryRow(ctx, `UPDATE epa_assessments
		SET resident_acknowledged = TRUE,
			resident_acknowledged_at = GREATEST(resident_acknowledged_at, $2),
			updated_at = $2
		WHERE id = $1 AND is_deleted = FALSE
		RETURNING `+assessmentColumns, id.String(), at)
	return scanAssessment(row)
}

// SoftDelete marks the row deleted. Already-deleted rows are not found.
func (r *AssessmentRepository) SoftDelete(ctx context.Context, id shared.AssessmentID, by string, at time.Time) (*assessment.Assessment, error) {
	at = at.UTC()
	var deletedBy *string
	if by != "" {
		deletedBy = &by
	}
	row := r.conn.QueryRow(ctx, `UPDATE epa_assessments
		SET is_deleted = TRUE, deleted_at = $2, deleted_by = $3, updated_at = $2
		WHERE id = $1 AND is_deleted = FALSE
		RETURNING `+assessmentColumns, id.String(), at, deletedBy)
	return scanAssessment(row)
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanAssessment(row pgx.Row) (*assessment.Assessment, error) {
	var (
		a                                  assessment.Assessment
		id, residentID, assessorID, method string
		epaID, level                       int
		siteID, urgency, complexity, loc   *string
		specialty                          []byte
	)
	err := row.Scan(
		&id, &residentID, &assessorID, &epaID, &level,
		&a.AssessmentDate, &a.SubmissionDate,
		&siteID, &urgency, &complexity, &a.Context.PatientASAClass,
		&a.Context.ProcedureDurationMin, &a.Context.Complications, &loc, &a.Context.LocationDetails,
		&a.NarrativeFeedback, &specialty, &method,
		&a.Acknowledged, &a.AcknowledgedAt,
		&a.Deleted, &a.DeletedAt, &a.DeletedBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("failed to scan assessment: %w", err)
	}

	a.ID = shared.AssessmentID(id)
	a.ResidentID = shared.ResidentID(residentID)
	a.AssessorID = shared.FacultyID(assessorID)
	a.EPAID = shared.EPAID(epaID)
	a.Level = shared.EntrustmentLevel(level)
	a.EntryMethod = assessment.EntryMethod(method)
	a.SpecialtyContext = json.RawMessage(specialty)
	a.Context.ClinicalSiteID = asText[shared.ClinicalSiteID](siteID)
	a.Context.CaseUrgency = asText[assessment.Urgency](urgency)
	a.Context.CaseComplexity = asText[assessment.Complexity](complexity)
	a.Context.LocationType = asText[assessment.LocationType](loc)
	normalizeTimes(&a)
	return &a, nil
}

func scanAssessments(rows pgx.Rows) ([]*assessment.Assessment, error) {
	defer rows.Close()
	out := make([]*assessment.Assessment, 0)
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assessments: %w", err)
	}
	return out, nil
}

func normalizeTimes(a *assessment.Assessment) {
	a.AssessmentDate = a.AssessmentDate.UTC()
	a.SubmissionDate = a.SubmissionDate.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	if a.AcknowledgedAt != nil {
		t := a.AcknowledgedAt.UTC()
		a.AcknowledgedAt = &t
	}
	if a.DeletedAt != nil {
		t := a.DeletedAt.UTC()
		a.DeletedAt = &t
	}
}

// textPtr converts an optional string-kinded value to *string for pgx.
func textPtr[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func asText[T ~string](s *string) *T {
	if s == nil {
		return nil
	}
	v := T(*s)
	return &v
}
