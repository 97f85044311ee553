// Package store persists user preferences and visit logs in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3" // CGo-based SQLite driver

	"github.com/couchcryptid/church-discovery-engine/internal/domain"
)

// ErrNotFound is returned when a user has no stored preferences.
var ErrNotFound = errors.New("user not found")

// ErrHistoryRewritten is returned when an update modifies existing visit
// records instead of appending to the log.
var ErrHistoryRewritten = errors.New("visit history is append-only")

const schema = `
CREATE TABLE IF NOT EXISTS preferences (
	user_id    TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS visits (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    TEXT NOT NULL,
	id         TEXT NOT NULL,
	venue_id   TEXT NOT NULL,
	visited_at TEXT NOT NULL,
	data       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_visits_user ON visits (user_id, seq);
DELETE FROM visits WHERE seq NOT IN (SELECT MIN(seq) FROM visits GROUP BY user_id, id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_visits_user_id ON visits (user_id, id);
`

// Snapshot is a user's preferences and visit log as of one read.
type Snapshot struct {
	Preferences domain.UserPreferences `json:"preferences"`
	History     []domain.VisitRecord   `json:"history"`
}

// Store is a write-through preference store. Updates for the same user are
// serialized so concurrent read-modify-write cycles never lose a write.
type Store struct {
	db    *sql.DB
	now   func() time.Time
	locks sync.Map // user id -> *sync.Mutex
}

// Open opens (creating if needed) the SQLite database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Load returns the stored snapshot for userID, or ErrNotFound.
func (s *Store) Load(ctx context.Context, userID string) (Snapshot, error) {
	return load(ctx, s.db, userID)
}

// Update runs fn on the user's current snapshot and persists the result in
// one transaction. Users without stored state start from default
// preferences. fn may only append to the visit history and must not call
// back into the store. Appended records whose ID is already logged are
// dropped.
func (s *Store) Update(ctx context.Context, userID string, fn func(Snapshot) (Snapshot, error)) (Snapshot, error) {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	current, err := load(ctx, tx, userID)
	if errors.Is(err, ErrNotFound) {
		current = Snapshot{Preferences: domain.DefaultPreferences()}
	} else if err != nil {
		return Snapshot{}, err
	}

	next, err := fn(Snapshot{
		Preferences: current.Preferences.Clone(),
		History:     append([]domain.VisitRecord(nil), current.History...),
	})
	if err != nil {
		return Snapshot{}, err
	}
	if len(next.History) < len(current.History) {
		return Snapshot{}, ErrHistoryRewritten
	}
	for i := range current.History {
		if next.History[i].ID != current.History[i].ID {
			return Snapshot{}, ErrHistoryRewritten
		}
	}

	next.History = dedupeAppended(next.History, len(current.History))

	if err := s.savePreferences(ctx, tx, userID, next.Preferences); err != nil {
		return Snapshot{}, err
	}
	for _, rec := range next.History[len(current.History):] {
		if err := insertVisit(ctx, tx, userID, rec); err != nil {
			return Snapshot{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Snapshot{}, fmt.Errorf("commit update: %w", err)
	}
	return next, nil
}

// dedupeAppended drops records after the first n whose ID appears earlier in
// history.
func dedupeAppended(history []domain.VisitRecord, n int) []domain.VisitRecord {
	seen := make(map[string]struct{}, len(history))
	for _, rec := range history[:n] {
		seen[rec.ID] = struct{}{}
	}
	out := history[:n:n]
	for _, rec := range history[n:] {
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}
		out = append(out, rec)
	}
	return out
}

func (s *Store) userLock(userID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *Store) savePreferences(ctx context.Context, tx *sql.Tx, userID string, prefs domain.UserPreferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO preferences (user_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		userID, string(data), s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

func insertVisit(ctx context.Context, tx *sql.Tx, userID string, rec domain.VisitRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode visit: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO visits (user_id, id, venue_id, visited_at, data) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO NOTHING`,
		userID, rec.ID, rec.VenueID, rec.VisitedAt.UTC().Format(time.RFC3339Nano), string(data))
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func load(ctx context.Context, q querier, userID string) (Snapshot, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT data FROM preferences WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load preferences: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap.Preferences); err != nil {
		return Snapshot{}, fmt.Errorf("decode preferences: %w", err)
	}

	rows, err := q.QueryContext(ctx, `SELECT data FROM visits WHERE user_id = ? ORDER BY seq`, userID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load visits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return Snapshot{}, fmt.Errorf("scan visit: %w", err)
		}
		var rec domain.VisitRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return Snapshot{}, fmt.Errorf("decode visit: %w", err)
		}
		snap.History = append(snap.History, rec)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("iterate visits: %w", err)
	}
	return snap, nil
}
