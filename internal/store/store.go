package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies schema migrations based on user_version.
func (s *Store) migrate() error {
	version, err := s.SchemaVersion()
	if err != nil {
		return err
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, CurrentSchemaVersion)
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			unlocked INTEGER NOT NULL DEFAULT 0,
			credits INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
			theme TEXT NOT NULL DEFAULT 'light',
			language TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS drafts (
			profile_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			task_type TEXT NOT NULL,
			prompt TEXT NOT NULL DEFAULT '',
			essay TEXT NOT NULL DEFAULT '',
			remaining_seconds INTEGER NOT NULL DEFAULT 0,
			timer_running INTEGER NOT NULL DEFAULT 0,
			task_image TEXT NOT NULL DEFAULT '',
			submission_image TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (profile_id, mode),
			FOREIGN KEY (profile_id) REFERENCES profiles(id)
		);

		CREATE TABLE IF NOT EXISTS submissions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			profile_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			task_type TEXT NOT NULL,
			prompt TEXT NOT NULL,
			essay TEXT NOT NULL,
			task_image TEXT NOT NULL DEFAULT '',
			submission_image TEXT NOT NULL DEFAULT '',
			evaluation_json TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (profile_id) REFERENCES profiles(id)
		);

		CREATE INDEX IF NOT EXISTS idx_submissions_profile_seq
		ON submissions(profile_id, seq DESC);

		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		`
		if _, err := s.db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := s.setSchemaVersion(1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// SchemaVersion returns the current schema version (user_version pragma).
func (s *Store) SchemaVersion() (int, error) {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

func (s *Store) setSchemaVersion(version int) error {
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
