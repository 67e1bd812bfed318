// Package ledger persists which alarms have already been dispatched so
// restarts and re-expansions never notify twice.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	_ "github.com/mattn/go-sqlite3"
)

// Ledger records dispatched alarm fingerprints in SQLite.
type Ledger struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// Open opens or creates the ledger database at path and applies the
// schema.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	l := &Ledger{db: db, path: path}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// OpenDefault opens the ledger at its XDG state location.
func OpenDefault() (*Ledger, error) {
	path, err := xdg.StateFile("calremind/fired.db")
	if err != nil {
		return nil, fmt.Errorf("failed to determine ledger path: %w", err)
	}
	return Open(path)
}

func (l *Ledger) migrate() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS fired_alarms (
			fingerprint TEXT PRIMARY KEY,
			due_date    TIMESTAMP NOT NULL,
			fired_at    TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_fired_alarms_fired_at
			ON fired_alarms(fired_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate ledger schema: %w", err)
	}
	return nil
}

// HasFired reports whether the fingerprint was already dispatched.
func (l *Ledger) HasFired(fingerprint string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var one int
	err := l.db.QueryRow(
		"SELECT 1 FROM fired_alarms WHERE fingerprint = ?", fingerprint,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query ledger: %w", err)
	}
	return true, nil
}

// Record marks a fingerprint as dispatched. Recording the same
// fingerprint again is a no-op.
func (l *Ledger) Record(fingerprint string, dueDate, firedAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec(
		"INSERT OR IGNORE INTO fired_alarms (fingerprint, due_date, fired_at) VALUES (?, ?, ?)",
		fingerprint, dueDate.UTC(), firedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record fired alarm: %w", err)
	}
	return nil
}

// Prune removes entries fired before the cutoff. Returns the number of
// rows removed.
func (l *Ledger) Prune(cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.Exec(
		"DELETE FROM fired_alarms WHERE fired_at < ?", cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune ledger: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned rows: %w", err)
	}
	return n, nil
}

// Count returns the number of recorded fingerprints.
func (l *Ledger) Count() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n int
	if err := l.db.QueryRow("SELECT COUNT(*) FROM fired_alarms").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return n, nil
}

// Path returns the ledger database location.
func (l *Ledger) Path() string {
	return l.path
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
