// Package jobstore persists job and stage records to PostgreSQL via the
// pgx stdlib driver, with embedded schema migrations applied at Open:
// one row per dubbing job plus one row per stage outcome.
package jobstore

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const maxJobs = 1000

// Store persists job data to PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to a PostgreSQL jobstore database at connStr.
func Open(connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("jobstore open: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("jobstore ping: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("jobstore migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`)
	if err = row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.Exec(string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateJob inserts a new job row and prunes the oldest rows past maxJobs.
func (s *Store) CreateJob(id string) error {
	_, err := s.db.Exec(
		`INSERT INTO jobs (id, status, started_at) VALUES ($1, 'running', $2)`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`DELETE FROM jobs WHERE id NOT IN (SELECT id FROM jobs ORDER BY started_at DESC LIMIT $1)`,
		maxJobs,
	)
	return err
}

// EndJob sets a job's terminal status and rollup metrics.
func (s *Store) EndJob(id string, durationMs float64, success bool, syncGood, syncFair, syncPoor int, overallLUFS float64, partialCount int) error {
	status := "failed"
	if success {
		status = "succeeded"
	}
	_, err := s.db.Exec(
		`UPDATE jobs SET ended_at = $1, duration_ms = $2, status = $3,
		 sync_good = $4, sync_fair = $5, sync_poor = $6, overall_lufs = $7, partial_count = $8
		 WHERE id = $9`,
		time.Now().UTC(), durationMs, status, syncGood, syncFair, syncPoor, overallLUFS, partialCount, id,
	)
	return err
}

// CreateStage inserts one completed stage row.
func (s *Store) CreateStage(st StageRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO job_stages (id, job_id, name, started_at, duration_ms, status, error_msg, error_kind, warnings)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		st.ID, st.JobID, st.Name, st.StartedAt.UTC(),
		st.DurationMs, st.Status, st.Error, st.ErrorKind, st.Warnings,
	)
	return err
}

// ListJobs returns jobs ordered newest first, with stage counts.
func (s *Store) ListJobs(limit, offset int) ([]JobRecord, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM jobs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(`
		SELECT j.id, j.status, j.started_at, j.ended_at, j.duration_ms,
		       j.sync_good, j.sync_fair, j.sync_poor, j.overall_lufs, j.partial_count,
		       COUNT(st.id) as stage_count
		FROM jobs j
		LEFT JOIN job_stages st ON st.job_id = j.id
		GROUP BY j.id
		ORDER BY j.started_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []JobRecord
	for rows.Next() {
		var j JobRecord
		var endedAt sql.NullTime
		var overallLUFS sql.NullFloat64
		if err = rows.Scan(&j.ID, &j.Status, &j.StartedAt, &endedAt, &j.DurationMs,
			&j.SyncGood, &j.SyncFair, &j.SyncPoor, &overallLUFS, &j.PartialCount, &j.StageCount); err != nil {
			return nil, 0, err
		}
		if endedAt.Valid {
			j.EndedAt = &endedAt.Time
		}
		if overallLUFS.Valid {
			j.OverallLUFS = overallLUFS.Float64
		}
		jobs = append(jobs, j)
	}
	return jobs, total, rows.Err()
}

// GetJob returns a single job with its stages, oldest first.
func (s *Store) GetJob(id string) (*JobRecord, []StageRecord, error) {
	var j JobRecord
	var endedAt sql.NullTime
	var overallLUFS sql.NullFloat64
	err := s.db.QueryRow(
		`SELECT id, status, started_at, ended_at, duration_ms, sync_good, sync_fair, sync_poor, overall_lufs, partial_count
		 FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.Status, &j.StartedAt, &endedAt, &j.DurationMs,
		&j.SyncGood, &j.SyncFair, &j.SyncPoor, &overallLUFS, &j.PartialCount)
	if err != nil {
		return nil, nil, err
	}
	if endedAt.Valid {
		j.EndedAt = &endedAt.Time
	}
	if overallLUFS.Valid {
		j.OverallLUFS = overallLUFS.Float64
	}

	rows, err := s.db.Query(
		`SELECT id, job_id, name, started_at, duration_ms, status, error_msg, error_kind, warnings
		 FROM job_stages WHERE job_id = $1 ORDER BY started_at ASC`,
		id,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var stages []StageRecord
	for rows.Next() {
		var st StageRecord
		var errMsg, errKind, warnings sql.NullString
		if err = rows.Scan(&st.ID, &st.JobID, &st.Name, &st.StartedAt, &st.DurationMs, &st.Status, &errMsg, &errKind, &warnings); err != nil {
			return nil, nil, err
		}
		st.Error = errMsg.String
		st.ErrorKind = errKind.String
		st.Warnings = warnings.String
		stages = append(stages, st)
	}
	return &j, stages, rows.Err()
}
