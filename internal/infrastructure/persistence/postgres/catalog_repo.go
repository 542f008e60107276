package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rms-hub/residency-hub/internal/domain/epa"
	"github.com/rms-hub/residency-hub/internal/domain/resident"
	"github.com/rms-hub/residency-hub/internal/domain/shared"
)

// EPARepository implements epa.Repository.
type EPARepository struct {
	conn *Connection
}

func NewEPARepository(conn *Connection) *EPARepository {
	return &EPARepository{conn: conn}
}

const epaColumns = `id, specialty_code, name, short_name, description, category, display_order, is_active`

func (r *EPARepository) ListActive(ctx context.Context, specialty shared.SpecialtyCode) ([]epa.EPA, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+epaColumns+` FROM epas
		WHERE specialty_code = $1 AND is_active = TRUE
		ORDER BY display_order, id`, string(specialty))
	if err != nil {
		return nil, fmt.Errorf("failed to list epas: %w", err)
	}
	defer rows.Close()

	out := make([]epa.EPA, 0, 18)
	for rows.Next() {
		e, err := scanEPA(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *EPARepository) GetByID(ctx context.Context, id shared.EPAID) (*epa.EPA, error) {
	e, err := scanEPA(r.conn.QueryRow(ctx, `SELECT `+epaColumns+` FROM epas WHERE id = $1`, int(id)))
	if IsNoRows(err) {
		return nil, shared.ErrEPANotFound
	}
	return e, err
}

func scanEPA(row pgx.Row) (*epa.EPA, error) {
	var (
		e                   epa.EPA
		id                  int
		specialty, category string
	)
	if err := row.Scan(&id, &specialty, &e.Name, &e.ShortName, &e.Description, &category, &e.DisplayOrder, &e.Active); err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan epa: %w", err)
	}
	e.ID = shared.EPAID(id)
	e.SpecialtyCode = shared.SpecialtyCode(specialty)
	e.Category = epa.Category(category)
	return &e, nil
}

// RequirementRepository implements epa.RequirementRepository.
type RequirementRepository struct {
	conn *Connection
}

func NewRequirementRepository(conn *Connection) *RequirementRepository {
	return &RequirementRepository{conn: conn}
}

func (r *RequirementRepository) ListRequirements(ctx context.Context, programID shared.ProgramID) ([]epa.Requirement, error) {
	rows, err := r.conn.Query(ctx, `SELECT epa_id, training_level, target_count, target_level
		FROM epa_requirements WHERE program_id = $1
		ORDER BY epa_id, training_level NULLS LAST`, programID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list requirements: %w", err)
	}
	defer rows.Close()

	out := make([]epa.Requirement, 0)
	for rows.Next() {
		var (
			epaID, count, level int
			training            *int
		)
		if err := rows.Scan(&epaID, &training, &count, &level); err != nil {
			return nil, fmt.Errorf("failed to scan requirement: %w", err)
		}
		req := epa.Requirement{
			ProgramID:   programID,
			EPAID:       shared.EPAID(epaID),
			TargetCount: count,
			TargetLevel: shared.EntrustmentLevel(level),
		}
		if training != nil {
			req.TrainingLevel = epa.PGY(*training)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// ResidentRepository implements resident.Repository.
type ResidentRepository struct {
	conn *Connection
}

func NewResidentRepository(conn *Connection) *ResidentRepository {
	return &ResidentRepository{conn: conn}
}

const residentColumns = `id, program_id, first_name, last_name, email, pgy_level, status, medical_school`

func (r *ResidentRepository) GetByID(ctx context.Context, id shared.ResidentID) (*resident.Resident, error) {
	res, err := scanResident(r.conn.QueryRow(ctx, `SELECT `+residentColumns+` FROM residents WHERE id = $1`, id.String()))
	if IsNoRows(err) {
		return nil, shared.ErrResidentNotFound
	}
	return res, err
}

func (r *ResidentRepository) ListActive(ctx context.Context, programID shared.ProgramID) ([]resident.Resident, error) {
	query := `SELECT ` + residentColumns + ` FROM residents WHERE status = 'active'`
	args := []any{}
	if programID != "" {
		query += ` AND program_id = $1`
		args = append(args, programID.String())
	}
	query += ` ORDER BY pgy_level DESC, last_name, id`

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list residents: %w", err)
	}
	defer rows.Close()

	out := make([]resident.Resident, 0)
	for rows.Next() {
		res, err := scanResident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

func (r *ResidentRepository) GetProgram(ctx context.Context, id shared.ProgramID) (*resident.Program, error) {
	var p resident.Program
	var pid, specialty string
	err := r.conn.QueryRow(ctx, `SELECT id, name, specialty_code FROM programs WHERE id = $1`, id.String()).
		Scan(&pid, &p.Name, &specialty)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProgramNotFound
		}
		return nil, fmt.Errorf("failed to get program: %w", err)
	}
	p.ID = shared.ProgramID(pid)
	p.SpecialtyCode = shared.SpecialtyCode(specialty)
	return &p, nil
}

func scanResident(row pgx.Row) (*resident.Resident, error) {
	var (
		res                   resident.Resident
		id, programID, status string
		pgy                   int
	)
	if err := row.Scan(&id, &programID, &res.FirstName, &res.LastName, &res.Email, &pgy, &status, &res.MedicalSchool); err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan resident: %w", err)
	}
	res.ID = shared.ResidentID(id)
	res.ProgramID = shared.ProgramID(programID)
	res.PGYLevel = shared.TrainingLevel(pgy)
	res.Status = resident.Status(status)
	return &res, nil
}
