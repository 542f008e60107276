package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rms-hub/residency-hub/pkg/logger"
)

// Migration is one embedded schema step.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies embedded migrations and records them in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a migrator with the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations(), tableName: "schema_migrations"}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`, m.tableName))
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		out[version] = at
	}
	return out, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, ok := done[mig.Version]; ok {
			continue
		}
		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			_, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName), mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
		m.conn.log.Info("migration applied", logger.Int("version", mig.Version), logger.String("name", mig.Name))
	}
	return nil
}

// Rollback reverts the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return err
	}

	last := 0
	for v := range done {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return nil
	}

	var target *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			target = &m.migrations[i]
			break
		}
	}
	if target == nil || target.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, target.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", last, err)
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
}

// Status returns every embedded migration with its applied flag.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Migration, len(m.migrations))
	copy(out, m.migrations)
	for i := range out {
		if at, ok := done[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}

// GetMigrations returns all embedded migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_catalog", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_roster", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_epa_assessments", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CATALOG
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS programs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    specialty_code TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS epas (
    id INTEGER PRIMARY KEY,
    specialty_code TEXT NOT NULL,
    name TEXT NOT NULL,
    short_name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL,
    display_order INTEGER NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,

    CONSTRAINT valid_category CHECK (category IN ('preoperative', 'intraoperative', 'postoperative', 'longitudinal', 'professional')),
    UNIQUE (specialty_code, display_order)
);

-- training_level NULL is the graduation row.
CREATE TABLE IF NOT EXISTS epa_requirements (
    id SERIAL PRIMARY KEY,
    program_id TEXT NOT NULL REFERENCES programs(id),
    epa_id INTEGER NOT NULL REFERENCES epas(id),
    training_level INTEGER,
    target_count INTEGER NOT NULL,
    target_level INTEGER NOT NULL,

    CONSTRAINT valid_target_count CHECK (target_count > 0),
    CONSTRAINT valid_target_level CHECK (target_level BETWEEN 1 AND 5),
    CONSTRAINT valid_training_level CHECK (training_level IS NULL OR training_level BETWEEN 1 AND 10)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_epa_requirements_level
    ON epa_requirements(program_id, epa_id, training_level) WHERE training_level IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_epa_requirements_graduation
    ON epa_requirements(program_id, epa_id) WHERE training_level IS NULL;
`

const migration001Down = `
DROP TABLE IF EXISTS epa_requirements;
DROP TABLE IF EXISTS epas;
DROP TABLE IF EXISTS programs;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: ROSTER
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS residents (
    id TEXT PRIMARY KEY,
    program_id TEXT NOT NULL REFERENCES programs(id),
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL,
    email TEXT NOT NULL,
    pgy_level INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    medical_school TEXT NOT NULL DEFAULT '',

    CONSTRAINT valid_pgy CHECK (pgy_level BETWEEN 1 AND 10),
    CONSTRAINT valid_status CHECK (status IN ('active', 'leave', 'remediation', 'completed', 'withdrawn'))
);

CREATE INDEX IF NOT EXISTS idx_residents_program ON residents(program_id) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS faculty (
    id TEXT PRIMARY KEY,
    program_id TEXT NOT NULL REFERENCES programs(id),
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL,
    email TEXT NOT NULL,
    rank TEXT NOT NULL DEFAULT '',
    is_core_faculty BOOLEAN NOT NULL DEFAULT FALSE,
    is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS clinical_sites (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    site_classification TEXT NOT NULL,
    institution_name TEXT NOT NULL DEFAULT '',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,

    CONSTRAINT valid_classification CHECK (site_classification IN ('primary', 'affiliate', 'community', 'va'))
);
`

const migration002Down = `
DROP TABLE IF EXISTS clinical_sites;
DROP TABLE IF EXISTS faculty;
DROP TABLE IF EXISTS residents;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: ASSESSMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS epa_assessments (
    id TEXT PRIMARY KEY,
    resident_id TEXT NOT NULL REFERENCES residents(id),
    assessor_id TEXT NOT NULL REFERENCES faculty(id),
    epa_id INTEGER NOT NULL REFERENCES epas(id),
    entrustment_level INTEGER NOT NULL,
    assessment_date TIMESTAMP WITH TIME ZONE NOT NULL,
    submission_date TIMESTAMP WITH TIME ZONE NOT NULL,

    clinical_site_id TEXT REFERENCES clinical_sites(id),
    case_urgency TEXT,
    case_complexity TEXT,
    patient_asa_class INTEGER,
    procedure_duration_minutes INTEGER,
    complications_occurred BOOLEAN,
    location_type TEXT,
    location_details TEXT,

    narrative_feedback TEXT,
    specialty_context JSONB NOT NULL DEFAULT '{}'::jsonb,
    entry_method TEXT NOT NULL DEFAULT 'web',

    resident_acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
    resident_acknowledged_at TIMESTAMP WITH TIME ZONE,

    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
    deleted_at TIMESTAMP WITH TIME ZONE,
    deleted_by TEXT,

    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_entrustment CHECK (entrustment_level BETWEEN 1 AND 5),
    CONSTRAINT valid_asa CHECK (patient_asa_class IS NULL OR patient_asa_class BETWEEN 1 AND 6),
    CONSTRAINT valid_duration CHECK (procedure_duration_minutes IS NULL OR procedure_duration_minutes >= 0),
    CONSTRAINT valid_urgency CHECK (case_urgency IS NULL OR case_urgency IN ('elective', 'urgent', 'emergent')),
    CONSTRAINT valid_complexity CHECK (case_complexity IS NULL OR case_complexity IN ('low', 'moderate', 'high')),
    CONSTRAINT valid_entry_method CHECK (entry_method IN ('mobile_ios', 'mobile_android', 'web'))
);

CREATE INDEX IF NOT EXISTS idx_assessments_resident
    ON epa_assessments(resident_id, assessment_date DESC) WHERE is_deleted = FALSE;
CREATE INDEX IF NOT EXISTS idx_assessments_assessor
    ON epa_assessments(assessor_id, assessment_date DESC) WHERE is_deleted = FALSE;
CREATE INDEX IF NOT EXISTS idx_assessments_unacknowledged
    ON epa_assessments(resident_id) WHERE is_deleted = FALSE AND resident_acknowledged = FALSE;
`

const migration003Down = `
DROP TABLE IF EXISTS epa_assessments;
`
