package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rms-hub/residency-hub/internal/domain/faculty"
	"github.com/rms-hub/residency-hub/internal/domain/shared"
	"github.com/rms-hub/residency-hub/internal/domain/site"
)

// FacultyRepository implements faculty.Repository.
type FacultyRepository struct {
	conn *Connection
}

func NewFacultyRepository(conn *Connection) *FacultyRepository {
	return &FacultyRepository{conn: conn}
}

const facultyColumns = `id, program_id, first_name, last_name, email, rank, is_core_faculty, is_active`

func (r *FacultyRepository) GetByID(ctx context.Context, id shared.FacultyID) (*faculty.Faculty, error) {
	f, err := scanFaculty(r.conn.QueryRow(ctx, `SELECT `+facultyColumns+` FROM faculty WHERE id = $1`, id.String()))
	if IsNoRows(err) {
		return nil, shared.ErrFacultyNotFound
	}
	return f, err
}

func (r *FacultyRepository) ListActive(ctx context.Context) ([]faculty.Faculty, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+facultyColumns+` FROM faculty
		WHERE is_active = TRUE ORDER BY last_name, first_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list faculty: %w", err)
	}
	defer rows.Close()

	out := make([]faculty.Faculty, 0)
	for rows.Next() {
		f, err := scanFaculty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func scanFaculty(row pgx.Row) (*faculty.Faculty, error) {
	var (
		f                   faculty.Faculty
		id, programID, rank string
	)
	if err := row.Scan(&id, &programID, &f.FirstName, &f.LastName, &f.Email, &rank, &f.IsCoreFaculty, &f.Active); err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan faculty: %w", err)
	}
	f.ID = shared.FacultyID(id)
	f.ProgramID = shared.ProgramID(programID)
	f.Rank = faculty.Rank(rank)
	return &f, nil
}

// SiteRepository implements site.Repository.
type SiteRepository struct {
	conn *Connection
}

func NewSiteRepository(conn *Connection) *SiteRepository {
	return &SiteRepository{conn: conn}
}

const siteColumns = `id, name, site_classification, institution_name, is_active`

func (r *SiteRepository) GetByID(ctx context.Context, id shared.ClinicalSiteID) (*site.ClinicalSite, error) {
	c, err := scanSite(r.conn.QueryRow(ctx, `SELECT `+siteColumns+` FROM clinical_sites WHERE id = $1`, id.String()))
	if IsNoRows(err) {
		return nil, shared.ErrClinicalSiteMissing
	}
	return c, err
}

func (r *SiteRepository) ListActive(ctx context.Context) ([]site.ClinicalSite, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+siteColumns+` FROM clinical_sites
		WHERE is_active = TRUE ORDER BY site_classification, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clinical sites: %w", err)
	}
	defer rows.Close()

	out := make([]site.ClinicalSite, 0)
	for rows.Next() {
		c, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanSite(row pgx.Row) (*site.ClinicalSite, error) {
	var (
		c         site.ClinicalSite
		id, class string
	)
	if err := row.Scan(&id, &c.Name, &class, &c.InstitutionName, &c.Active); err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan clinical site: %w", err)
	}
	c.ID = shared.ClinicalSiteID(id)
	c.Classification = site.Classification(class)
	return &c, nil
}
