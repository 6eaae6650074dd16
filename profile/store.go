package profile

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("mirror.profile")

// ErrNoRuns indicates the store holds no recorded runs yet.
var ErrNoRuns = errors.New("no recorded runs")

// Store accumulates usage snapshots across runs in a SQLite database.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenStore opens (creating if needed) the history database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at INTEGER NOT NULL,
		version INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating runs table: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		run_id INTEGER NOT NULL REFERENCES runs(id),
		key TEXT NOT NULL,
		kind TEXT NOT NULL,
		invocations INTEGER NOT NULL,
		promoted INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating entries table: %w", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS entries_key ON entries (key)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating key index: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (st *Store) Close() error {
	if st.db != nil {
		return st.db.Close()
	}
	return nil
}

// RecordRun appends one snapshot as a new run and returns its id.
func (st *Store) RecordRun(s *Snapshot) (int64, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	tx, err := st.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"INSERT INTO runs (created_at, version) VALUES (?, ?)",
		s.CreatedAt, s.Version,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading run id: %w", err)
	}

	for _, e := range s.Entries {
		if _, err := tx.Exec(
			"INSERT INTO entries (run_id, key, kind, invocations, promoted) VALUES (?, ?, ?, ?, ?)",
			id, e.Key, e.Kind, e.Invocations, e.Promoted,
		); err != nil {
			return 0, fmt.Errorf("inserting entry %s: %w", e.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing run: %w", err)
	}

	log.Debugf("recorded run %d with %d entries", id, len(s.Entries))
	return id, nil
}

// LastRun reconstructs the most recently recorded snapshot.
func (st *Store) LastRun() (*Snapshot, error) {
	var s Snapshot
	var id int64
	err := st.db.QueryRow(
		"SELECT id, created_at, version FROM runs ORDER BY id DESC LIMIT 1",
	).Scan(&id, &s.CreatedAt, &s.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRuns
		}
		return nil, fmt.Errorf("querying last run: %w", err)
	}

	rows, err := st.db.Query(
		"SELECT key, kind, invocations, promoted FROM entries WHERE run_id = ? ORDER BY key",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Kind, &e.Invocations, &e.Promoted); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		s.Entries = append(s.Entries, e)
	}
	return &s, rows.Err()
}

// Runs returns the number of recorded runs.
func (st *Store) Runs() (int, error) {
	var n int
	if err := st.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting runs: %w", err)
	}
	return n, nil
}

// HotKeys returns keys that were hot (promoted, or at least min
// invocations) in at least minRuns recorded runs, sorted.
func (st *Store) HotKeys(min uint64, minRuns int) ([]string, error) {
	rows, err := st.db.Query(
		`SELECT key FROM entries
		 WHERE promoted != 0 OR invocations >= ?
		 GROUP BY key
		 HAVING COUNT(DISTINCT run_id) >= ?
		 ORDER BY key`,
		min, minRuns,
	)
	if err != nil {
		return nil, fmt.Errorf("querying hot keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
