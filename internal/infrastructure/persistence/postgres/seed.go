package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rms-hub/residency-hub/internal/infrastructure/persistence/seed"
)

// Seed upserts ds in one transaction. Requirements of every program present
// in ds are replaced; assessments that already exist are left untouched.
func (c *Connection) Seed(ctx context.Context, ds seed.Dataset) error {
	return c.WithTx(ctx, func(tx pgx.Tx) error {
		for _, p := range ds.Programs {
			if _, err := tx.Exec(ctx, `INSERT INTO programs (id, name, specialty_code) VALUES ($1, $2, $3)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, specialty_code = EXCLUDED.specialty_code`,
				p.ID.String(), p.Name, string(p.SpecialtyCode)); err != nil {
				return fmt.Errorf("seed program %s: %w", p.ID, err)
			}
		}

		for _, e := range ds.EPAs {
			if _, err := tx.Exec(ctx, `INSERT INTO epas (`+epaColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, short_name = EXCLUDED.short_name,
					description = EXCLUDED.description, category = EXCLUDED.category,
					display_order = EXCLUDED.display_order, is_active = EXCLUDED.is_active`,
				int(e.ID), string(e.SpecialtyCode), e.Name, e.ShortName, e.Description,
				string(e.Category), e.DisplayOrder, e.Active); err != nil {
				return fmt.Errorf("seed epa %d: %w", e.ID, err)
			}
		}

		replaced := map[string]bool{}
		for _, req := range ds.Requirements {
			if !replaced[req.ProgramID.String()] {
				if _, err := tx.Exec(ctx, `DELETE FROM epa_requirements WHERE program_id = $1`, req.ProgramID.String()); err != nil {
					return fmt.Errorf("clear requirements: %w", err)
				}
				replaced[req.ProgramID.String()] = true
			}
			var training *int
			if req.TrainingLevel != nil {
				n := req.TrainingLevel.Int()
				training = &n
			}
			if _, err := tx.Exec(ctx, `INSERT INTO epa_requirements (program_id, epa_id, training_level, target_count, target_level)
				VALUES ($1, $2, $3, $4, $5)`,
				req.ProgramID.String(), int(req.EPAID), training, req.TargetCount, int(req.TargetLevel)); err != nil {
				return fmt.Errorf("seed requirement epa %d: %w", req.EPAID, err)
			}
		}

		for _, r := range ds.Residents {
			if _, err := tx.Exec(ctx, `INSERT INTO residents (`+residentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (id) DO UPDATE SET pgy_level = EXCLUDED.pgy_level, status = EXCLUDED.status`,
				r.ID.String(), r.ProgramID.String(), r.FirstName, r.LastName, r.Email,
				r.PGYLevel.Int(), string(r.Status), r.MedicalSchool); err != nil {
				return fmt.Errorf("seed resident %s: %w", r.ID, err)
			}
		}

		for _, f := range ds.Faculty {
			if _, err := tx.Exec(ctx, `INSERT INTO faculty (`+facultyColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (id) DO UPDATE SET rank = EXCLUDED.rank, is_active = EXCLUDED.is_active`,
				f.ID.String(), f.ProgramID.String(), f.FirstName, f.LastName, f.Email,
				string(f.Rank), f.IsCoreFaculty, f.Active); err != nil {
				return fmt.Errorf("seed faculty %s: %w", f.ID, err)
			}
		}

		for _, s := range ds.Sites {
			if _, err := tx.Exec(ctx, `INSERT INTO clinical_sites (`+siteColumns+`) VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, is_active = EXCLUDED.is_active`,
				s.ID.String(), s.Name, string(s.Classification), s.InstitutionName, s.Active); err != nil {
				return fmt.Errorf("seed clinical site %s: %w", s.ID, err)
			}
		}

		for _, a := range ds.Assessments {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM epa_assessments WHERE id = $1)`, a.ID.String()).Scan(&exists); err != nil {
				return fmt.Errorf("check assessment %s: %w", a.ID, err)
			}
			if exists {
				continue
			}
			if err := insertAssessment(ctx, tx, a); err != nil {
				return fmt.Errorf("seed assessment %s: %w", a.ID, err)
			}
		}
		return nil
	})
}
