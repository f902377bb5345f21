// Package history keeps an append-only record of update attempts in SQLite.
// It is observability only: the fixed-slot ledger, not this database, is
// what guards against repeated forced reinstalls.
package history

import (
	"database/sql"
	"log/slog"

	"github.com/deviceops/fwagent/pkg/errors"
	_ "modernc.org/sqlite"
)

// Schema defines the update-attempt history table.
const Schema = `
CREATE TABLE IF NOT EXISTS attempts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    image_id TEXT NOT NULL,
    version TEXT NOT NULL,
    url TEXT NOT NULL,
    forced INTEGER NOT NULL DEFAULT 0,
    outcome INTEGER NOT NULL,
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_attempts_image_id ON attempts(image_id);
CREATE INDEX IF NOT EXISTS idx_attempts_created_at ON attempts(created_at);
`

// Attempt is one recorded update attempt.
type Attempt struct {
	ID           int64
	ImageID      string
	Version      string
	URL          string
	Forced       bool
	Outcome      int
	ErrorMessage string
	CreatedAt    string
}

// Repository provides database operations for update attempts.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (creating if needed) the history database.
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("history_db_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("history_db_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open history database")
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("history_db_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create history schema")
	}

	return &Repository{db: db}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Record appends an attempt.
func (r *Repository) Record(a *Attempt) error {
	query := `
		INSERT INTO attempts (image_id, version, url, forced, outcome, error_message)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query, a.ImageID, a.Version, a.URL, a.Forced, a.Outcome, a.ErrorMessage)
	if err != nil {
		slog.Error("history_insert_failed", "image_id", a.ImageID, "error", err)
		return errors.Wrap(err, "failed to insert attempt")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to get last insert id")
	}
	a.ID = id

	slog.Info("history_attempt_recorded", "image_id", a.ImageID, "outcome", a.Outcome)
	return nil
}

// List returns all attempts, most recent first.
func (r *Repository) List() ([]*Attempt, error) {
	query := `
		SELECT id, image_id, version, url, forced, outcome, error_message, created_at
		FROM attempts ORDER BY id DESC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		slog.Error("history_list_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list attempts")
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		var a Attempt
		var errorMessage sql.NullString

		if err := rows.Scan(&a.ID, &a.ImageID, &a.Version, &a.URL, &a.Forced, &a.Outcome, &errorMessage, &a.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		a.ErrorMessage = errorMessage.String
		attempts = append(attempts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}
	return attempts, nil
}

// LastInstalled returns the most recent successful attempt, or nil when
// none exists.
func (r *Repository) LastInstalled() (*Attempt, error) {
	query := `
		SELECT id, image_id, version, url, forced, outcome, error_message, created_at
		FROM attempts WHERE outcome = 1 ORDER BY id DESC LIMIT 1
	`
	var a Attempt
	var errorMessage sql.NullString

	err := r.db.QueryRow(query).Scan(&a.ID, &a.ImageID, &a.Version, &a.URL, &a.Forced, &a.Outcome, &errorMessage, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query last install")
	}
	a.ErrorMessage = errorMessage.String
	return &a, nil
}
