package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/chanserv/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	log        TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcripts_log ON transcripts(log, id);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new SQLite store and makes sure the schema exists.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, EnsureSchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema without migrations.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// EnsureSchema creates the transcripts table when missing.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AppendTranscript adds a line to the named transcript.
func (s *SQLiteStore) AppendTranscript(ctx context.Context, log, line string) error {
	if !store.ValidLogName(log) {
		return fmt.Errorf("%w: %q", store.ErrBadLogName, log)
	}
	query := `
		INSERT INTO transcripts (log, body, created_at)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, log, line, s.now().UTC()); err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

// ListTranscript retrieves transcript lines with pagination.
func (s *SQLiteStore) ListTranscript(ctx context.Context, log string, limit int, beforeID *int64) ([]*store.TranscriptLine, error) {
	var query string
	var args []interface{}

	if beforeID != nil {
		query = `
			SELECT id, log, body, created_at
			FROM transcripts
			WHERE log = ? AND id < ?
			ORDER BY id DESC
			LIMIT ?
		`
		args = []interface{}{log, *beforeID, limit}
	} else {
		query = `
			SELECT id, log, body, created_at
			FROM transcripts
			WHERE log = ?
			ORDER BY id DESC
			LIMIT ?
		`
		args = []interface{}{log, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	var lines []*store.TranscriptLine
	for rows.Next() {
		var l store.TranscriptLine
		if err := rows.Scan(&l.ID, &l.Log, &l.Body, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		lines = append(lines, &l)
	}

	// Reverse to get chronological order
	for i := 0; i < len(lines)/2; i++ {
		lines[i], lines[len(lines)-1-i] = lines[len(lines)-1-i], lines[i]
	}

	return lines, rows.Err()
}

var _ store.Store = (*SQLiteStore)(nil)
