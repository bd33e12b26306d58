// Package storage journals poll cycles and per-record outcomes in SQLite
// so status and history queries survive restarts.
package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the cycle and post journal.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used
// by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "bidwatch.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Cycles ---

func (s *Store) SaveCycle(c Cycle) error {
	status := c.Status
	if status == "" {
		status = "ok"
	}
	_, err := s.db.Exec(`
		INSERT INTO cycles (id, started_at, finished_at, status, records_found, posted, skipped, failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.StartedAt.UTC().Format(time.RFC3339), c.FinishedAt.UTC().Format(time.RFC3339),
		status, c.RecordsFound, c.Posted, c.Skipped, c.Failed, c.Error,
	)
	return err
}

func (s *Store) GetCycle(id string) (Cycle, error) {
	var c Cycle
	var startedAt, finishedAt string
	err := s.db.QueryRow(`
		SELECT id, started_at, finished_at, status, records_found, posted, skipped, failed, error
		FROM cycles WHERE id = ?`, id,
	).Scan(&c.ID, &startedAt, &finishedAt, &c.Status, &c.RecordsFound, &c.Posted, &c.Skipped, &c.Failed, &c.Error)
	if err == sql.ErrNoRows {
		return Cycle{}, ErrNotFound
	}
	if err != nil {
		return Cycle{}, err
	}
	if c.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return Cycle{}, fmt.Errorf("parsing started_at: %w", err)
	}
	if c.FinishedAt, err = time.Parse(time.RFC3339, finishedAt); err != nil {
		return Cycle{}, fmt.Errorf("parsing finished_at: %w", err)
	}
	return c, nil
}

// LastCycle returns the most recently started cycle.
func (s *Store) LastCycle() (Cycle, error) {
	var id string
	err := s.db.QueryRow("SELECT id FROM cycles ORDER BY started_at DESC LIMIT 1").Scan(&id)
	if err == sql.ErrNoRows {
		return Cycle{}, ErrNotFound
	}
	if err != nil {
		return Cycle{}, err
	}
	return s.GetCycle(id)
}

func (s *Store) RecentCycles(limit int) ([]Cycle, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, status, records_found, posted, skipped, failed, error
		FROM cycles ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Cycle
	for rows.Next() {
		var c Cycle
		var startedAt, finishedAt string
		if err := rows.Scan(&c.ID, &startedAt, &finishedAt, &c.Status, &c.RecordsFound, &c.Posted, &c.Skipped, &c.Failed, &c.Error); err != nil {
			return nil, err
		}
		if c.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if c.FinishedAt, err = time.Parse(time.RFC3339, finishedAt); err != nil {
			return nil, fmt.Errorf("parsing finished_at: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// --- Posts ---

func (s *Store) SavePost(p Post) error {
	_, err := s.db.Exec(`
		INSERT INTO posts (id, cycle_id, record_id, subject_name, contract_number, outcome, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.CycleID, p.RecordID, p.SubjectName, p.ContractNumber, p.Outcome, p.Detail,
		p.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) RecentPosts(limit int) ([]Post, error) {
	rows, err := s.db.Query(`
		SELECT id, cycle_id, record_id, subject_name, contract_number, outcome, detail, created_at
		FROM posts ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// PostsForCycle returns every journal row written during one cycle.
func (s *Store) PostsForCycle(cycleID string) ([]Post, error) {
	rows, err := s.db.Query(`
		SELECT id, cycle_id, record_id, subject_name, contract_number, outcome, detail, created_at
		FROM posts WHERE cycle_id = ? ORDER BY created_at ASC`, cycleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

func scanPosts(rows *sql.Rows) ([]Post, error) {
	var results []Post
	for rows.Next() {
		var p Post
		var createdAt string
		if err := rows.Scan(&p.ID, &p.CycleID, &p.RecordID, &p.SubjectName, &p.ContractNumber, &p.Outcome, &p.Detail, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		p.CreatedAt = t
		results = append(results, p)
	}
	return results, rows.Err()
}
