package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when an abbreviation does not exist.
	ErrNotFound = errors.New("store: snippet not found")

	// ErrInvalidSnippet is returned for empty or malformed snippets.
	ErrInvalidSnippet = errors.New("store: invalid snippet")
)

// Store is the SQLite snippet store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	if err := checkSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("check database: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ValidateSnippet checks an abbreviation and expansion pair.
func ValidateSnippet(abbrev, expansion string) error {
	if abbrev == "" {
		return fmt.Errorf("%w: empty abbreviation", ErrInvalidSnippet)
	}
	if strings.IndexFunc(abbrev, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: abbreviation %q contains whitespace", ErrInvalidSnippet, abbrev)
	}
	if expansion == "" {
		return fmt.Errorf("%w: empty expansion for %q", ErrInvalidSnippet, abbrev)
	}
	return nil
}

// Put inserts or replaces a snippet. CreatedAt is preserved on update.
func (s *Store) Put(sn *Snippet) error {
	if err := ValidateSnippet(sn.Abbreviation, sn.Expansion); err != nil {
		return err
	}
	return put(s.db, sn, s.now().UnixNano())
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func put(db execer, sn *Snippet, now int64) error {
	_, err := db.Exec(`
		INSERT INTO snippets (abbreviation, expansion, description, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(abbreviation) DO UPDATE SET
			expansion = excluded.expansion,
			description = excluded.description,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`,
		sn.Abbreviation, sn.Expansion, sn.Description, sn.Enabled, now, now,
	)
	if err != nil {
		return fmt.Errorf("put snippet %q: %w", sn.Abbreviation, err)
	}
	return nil
}

// Get retrieves a snippet. It returns nil without error when the
// abbreviation is unknown.
func (s *Store) Get(abbrev string) (*Snippet, error) {
	row := s.db.QueryRow(`
		SELECT abbreviation, expansion, description, enabled, created_at, updated_at
		FROM snippets WHERE abbreviation = ?`, abbrev)

	sn, err := scanSnippet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get snippet: %w", err)
	}
	return sn, nil
}

// Delete removes a snippet.
func (s *Store) Delete(abbrev string) error {
	result, err := s.db.Exec(`DELETE FROM snippets WHERE abbreviation = ?`, abbrev)
	if err != nil {
		return fmt.Errorf("delete snippet: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, abbrev)
	}
	return nil
}

// SetEnabled enables or disables a snippet without removing it.
func (s *Store) SetEnabled(abbrev string, enabled bool) error {
	result, err := s.db.Exec(`
		UPDATE snippets SET enabled = ?, updated_at = ? WHERE abbreviation = ?`,
		enabled, s.now().UnixNano(), abbrev)
	if err != nil {
		return fmt.Errorf("update snippet: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, abbrev)
	}
	return nil
}

// List returns every snippet ordered by abbreviation.
func (s *Store) List() ([]Snippet, error) {
	rows, err := s.db.Query(`
		SELECT abbreviation, expansion, description, enabled, created_at, updated_at
		FROM snippets ORDER BY abbreviation`)
	if err != nil {
		return nil, fmt.Errorf("list snippets: %w", err)
	}
	defer rows.Close()

	var snippets []Snippet
	for rows.Next() {
		sn, err := scanSnippet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snippet: %w", err)
		}
		snippets = append(snippets, *sn)
	}
	return snippets, rows.Err()
}

// Abbreviations returns the enabled snippets as an abbreviation map.
func (s *Store) Abbreviations() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT abbreviation, expansion FROM snippets WHERE enabled = 1`)
	if err != nil {
		return nil, fmt.Errorf("query abbreviations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var abbrev, expansion string
		if err := rows.Scan(&abbrev, &expansion); err != nil {
			return nil, fmt.Errorf("scan abbreviation: %w", err)
		}
		out[abbrev] = expansion
	}
	return out, rows.Err()
}

// Count returns the number of stored snippets.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM snippets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count snippets: %w", err)
	}
	return n, nil
}

// Import stores a batch of abbreviations in one transaction. Existing
// entries are kept unless overwrite is set. It returns how many rows were
// written.
func (s *Store) Import(entries map[string]string, overwrite bool) (int, error) {
	for abbrev, expansion := range entries {
		if err := ValidateSnippet(abbrev, expansion); err != nil {
			return 0, err
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UnixNano()
	written := 0
	for abbrev, expansion := range entries {
		if !overwrite {
			var exists int
			err := tx.QueryRow(`SELECT COUNT(*) FROM snippets WHERE abbreviation = ?`, abbrev).Scan(&exists)
			if err != nil {
				return 0, fmt.Errorf("check snippet %q: %w", abbrev, err)
			}
			if exists > 0 {
				continue
			}
		}
		if err := put(tx, &Snippet{Abbreviation: abbrev, Expansion: expansion, Enabled: true}, now); err != nil {
			return 0, err
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return written, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnippet(row scanner) (*Snippet, error) {
	var sn Snippet
	var createdAt, updatedAt int64
	if err := row.Scan(&sn.Abbreviation, &sn.Expansion, &sn.Description, &sn.Enabled, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	sn.CreatedAt = time.Unix(0, createdAt)
	sn.UpdatedAt = time.Unix(0, updatedAt)
	return &sn, nil
}
