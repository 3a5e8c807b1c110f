package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("outfit not found")

// timeLayout is fixed width so that TEXT ordering in SQLite matches
// chronological ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is one saved or suggested outfit. Weather and Emotion are
// snapshots taken when the entry was appended.
type Entry struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ImagePath string    `json:"image_path,omitempty"`
	Weather   string    `json:"weather,omitempty"`
	Emotion   string    `json:"emotion,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store provides SQLite-backed persistence for outfit history.
// Appends are serialised so created_at never goes backwards in id order.
type Store struct {
	db  *sql.DB
	now func() time.Time

	appendMu sync.Mutex
}

type Option func(*Store)

// WithClock overrides the time source used for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates the database file if needed, migrates it and returns a Store
// that owns the handle.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("open history: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("open history: create dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	st, err := New(db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// New returns a Store bound to an already migrated database handle.
func New(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	s := &Store{db: db, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append inserts e and returns it with ID and timestamps assigned. An empty
// name is replaced by a generated "Outfit <date>" label.
func (s *Store) Append(ctx context.Context, e Entry) (Entry, error) {
	if s == nil || s.db == nil {
		return Entry{}, fmt.Errorf("append outfit: store is nil")
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	now := s.now()
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		e.Name = "Outfit " + now.Format("2006-01-02 15:04")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("append outfit: begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var latest sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT MAX(created_at) FROM outfits`).Scan(&latest)
	if err != nil {
		return Entry{}, fmt.Errorf("append outfit: read latest: %w", err)
	}
	created := now.UTC()
	if latest.Valid {
		prev, err := time.Parse(timeLayout, latest.String)
		if err != nil {
			return Entry{}, fmt.Errorf("append outfit: parse latest: %w", err)
		}
		if created.Before(prev) {
			created = prev
		}
	}
	ts := created.Format(timeLayout)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO outfits (name, image_path, weather, emotion, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.Name, nullable(e.ImagePath), nullable(e.Weather), nullable(e.Emotion), ts, ts)
	if err != nil {
		return Entry{}, fmt.Errorf("append outfit: insert: %w", err)
	}
	e.ID, err = res.LastInsertId()
	if err != nil {
		return Entry{}, fmt.Errorf("append outfit: last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("append outfit: commit: %w", err)
	}

	e.CreatedAt = created
	e.UpdatedAt = created
	return e, nil
}

// Recent returns up to n entries, most recent first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	return s.List(ctx, n, 0)
}

// List returns a page of entries ordered most recent first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("list outfits: store is nil")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("list outfits: limit must be > 0")
	}
	if offset < 0 {
		return nil, fmt.Errorf("list outfits: offset must be >= 0")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, image_path, weather, emotion, created_at, updated_at
		 FROM outfits
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list outfits: query: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("list outfits: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list outfits: rows: %w", err)
	}
	return entries, nil
}

// Last returns the most recent entry or ErrNotFound.
func (s *Store) Last(ctx context.Context) (Entry, error) {
	entries, err := s.Recent(ctx, 1)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, ErrNotFound
	}
	return entries[0], nil
}

func (s *Store) Get(ctx context.Context, id int64) (Entry, error) {
	if s == nil || s.db == nil {
		return Entry{}, fmt.Errorf("get outfit: store is nil")
	}
	if id <= 0 {
		return Entry{}, fmt.Errorf("get outfit: invalid id")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, image_path, weather, emotion, created_at, updated_at FROM outfits WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("get outfit: %w", err)
	}
	return e, nil
}

// Rename changes an entry's name and touches updated_at.
func (s *Store) Rename(ctx context.Context, id int64, name string) (Entry, error) {
	if s == nil || s.db == nil {
		return Entry{}, fmt.Errorf("rename outfit: store is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Entry{}, fmt.Errorf("rename outfit: name is empty")
	}

	now := s.now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx, `UPDATE outfits SET name = ?, updated_at = ? WHERE id = ?`, name, now, id)
	if err != nil {
		return Entry{}, fmt.Errorf("rename outfit: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Entry{}, fmt.Errorf("rename outfit: rows affected: %w", err)
	}
	if n == 0 {
		return Entry{}, ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("delete outfit: store is nil")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM outfits WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete outfit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete outfit: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// IsRecentlyUsed reports whether an entry with the same name (compared
// case-insensitively) was created strictly less than window ago.
func (s *Store) IsRecentlyUsed(ctx context.Context, name string, window time.Duration) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("recently used: store is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return false, nil
	}

	cutoff := s.now().UTC().Add(-window)
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, created_at FROM outfits WHERE created_at > ? ORDER BY created_at DESC, id DESC`,
		cutoff.Format(timeLayout))
	if err != nil {
		return false, fmt.Errorf("recently used: query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			other   string
			created string
		)
		if err := rows.Scan(&other, &created); err != nil {
			return false, fmt.Errorf("recently used: scan: %w", err)
		}
		at, err := time.Parse(timeLayout, created)
		if err != nil {
			return false, fmt.Errorf("recently used: parse created_at: %w", err)
		}
		if at.After(cutoff) && strings.EqualFold(strings.TrimSpace(other), name) {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("recently used: rows: %w", err)
	}
	return false, nil
}

// Summary formats entries as "YYYY-MM-DD: name" in local time, keeping
// their order.
func Summary(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, fmt.Sprintf("%s: %s", e.CreatedAt.Local().Format("2006-01-02"), e.Name))
	}
	return out
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e                  Entry
		image, wthr, emo   sql.NullString
		createdAt, updated string
	)
	if err := row.Scan(&e.ID, &e.Name, &image, &wthr, &emo, &createdAt, &updated); err != nil {
		return Entry{}, fmt.Errorf("scan: %w", err)
	}
	e.ImagePath = image.String
	e.Weather = wthr.String
	e.Emotion = emo.String

	var err error
	e.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parse created_at: %w", err)
	}
	e.UpdatedAt, err = time.Parse(timeLayout, updated)
	if err != nil {
		return Entry{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return e, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
