// Package store persists converted documents in SQLite.
//
// Each record keeps the normalized markup and the model JSON, the latter
// compressed with xz. Records are addressed by name and carry the content
// hash of the model, so a caller can tell whether a document changed.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/enriched/core/builder"
	"github.com/FocuswithJustin/enriched/core/document"
	"github.com/FocuswithJustin/enriched/core/errors"
	"github.com/FocuswithJustin/enriched/core/sqlite"
	"github.com/FocuswithJustin/enriched/core/transcode"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	name       TEXT PRIMARY KEY,
	hash       TEXT NOT NULL,
	markup     TEXT NOT NULL,
	model      BLOB NOT NULL,
	updated_at TEXT NOT NULL
)`

// Injectable for testing.
var (
	xzNewWriter = xz.NewWriter
	xzNewReader = xz.NewReader
	now         = func() time.Time { return time.Now().UTC() }
)

// Record is one stored document.
type Record struct {
	Name      string
	Hash      string
	Markup    string
	Document  *document.Document
	UpdatedAt time.Time
}

// Entry summarizes a stored document.
type Entry struct {
	Name      string    `json:"name"`
	Hash      string    `json:"hash"`
	Size      int       `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a SQLite-backed document store. It is safe for concurrent use.
type Store struct {
	db *sql.DB
	tr *transcode.Transcoder
}

// Open opens or creates the store at path. tr converts markup on Put; nil
// selects a Transcoder without a cache.
func Open(path string, tr *transcode.Transcoder) (*Store, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	return newStore(db, path, tr)
}

// OpenMemory opens a store that lives as long as the process.
func OpenMemory(tr *transcode.Transcoder) (*Store, error) {
	db, err := sqlite.OpenMemory()
	if err != nil {
		return nil, errors.NewIO("open", ":memory:", err)
	}
	return newStore(db, ":memory:", tr)
}

func newStore(db *sql.DB, path string, tr *transcode.Transcoder) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.NewIO("create schema", path, err)
	}
	if tr == nil {
		tr = transcode.New()
	}
	return &Store{db: db, tr: tr}, nil
}

// MaxNameLength is the longest accepted document name, in bytes.
const MaxNameLength = 255

// ValidateName checks that name can address a document from the command
// line and from a URL path segment.
func ValidateName(name string) error {
	switch {
	case name == "":
		return errors.NewValidation("name", "must not be empty")
	case len(name) > MaxNameLength:
		return errors.NewValidation("name", fmt.Sprintf("longer than %d bytes", MaxNameLength))
	case name == "." || name == "..":
		return errors.NewValidation("name", "reserved name")
	case strings.ContainsAny(name, "/\\"):
		return errors.NewValidation("name", "path separator not allowed")
	case strings.HasPrefix(name, "-"):
		return errors.NewValidation("name", "cannot start with a hyphen")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return errors.NewValidation("name", "control character not allowed")
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put converts markup and stores the normalized result under name,
// replacing any previous record.
func (s *Store) Put(ctx context.Context, name, markup string) (*Record, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	doc, err := s.tr.FromMarkup(ctx, markup, builder.Options{})
	if err != nil {
		return nil, err
	}
	return s.PutDocument(ctx, name, doc)
}

// PutDocument stores doc under name, replacing any previous record.
func (s *Store) PutDocument(ctx context.Context, name string, doc *document.Document) (*Record, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	model, err := doc.MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(err, "encode model")
	}
	packed, err := compress(model)
	if err != nil {
		return nil, errors.Wrap(err, "compress model")
	}

	rec := &Record{
		Name:      name,
		Hash:      doc.Hash(),
		Markup:    s.tr.ToMarkup(ctx, doc),
		Document:  doc,
		UpdatedAt: now(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (name, hash, markup, model, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET hash = excluded.hash, markup = excluded.markup,
		 model = excluded.model, updated_at = excluded.updated_at`,
		rec.Name, rec.Hash, rec.Markup, packed, rec.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, errors.NewIO("put", name, err)
	}
	return rec, nil
}

// Get loads the record stored under name.
func (s *Store) Get(ctx context.Context, name string) (*Record, error) {
	var (
		rec     = &Record{Name: name}
		packed  []byte
		updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT hash, markup, model, updated_at FROM documents WHERE name = ?`, name).
		Scan(&rec.Hash, &rec.Markup, &packed, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("document", name)
	}
	if err != nil {
		return nil, errors.NewIO("get", name, err)
	}

	model, err := decompress(packed)
	if err != nil {
		return nil, corrupt(name, "decompress model", err)
	}
	if rec.Document, err = document.Decode(model); err != nil {
		return nil, corrupt(name, "decode model", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, corrupt(name, "parse timestamp", err)
	}
	return rec, nil
}

// corrupt reports a stored row that the store itself could not have written.
func corrupt(name, step string, err error) error {
	return fmt.Errorf("%w: %s of %s: %w", errors.ErrInternal, step, name, err)
}

// List returns every stored document ordered by name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, hash, length(markup), updated_at FROM documents ORDER BY name`)
	if err != nil {
		return nil, errors.NewIO("list", "", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			updated string
		)
		if err := rows.Scan(&e.Name, &e.Hash, &e.Size, &updated); err != nil {
			return nil, errors.NewIO("list", "", err)
		}
		if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
			return nil, errors.Wrapf(err, "parse timestamp of %s", e.Name)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewIO("list", "", err)
	}
	return entries, nil
}

// Delete removes the record stored under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE name = ?`, name)
	if err != nil {
		return errors.NewIO("delete", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewNotFound("document", name)
	}
	return nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xzNewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := xzNewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}
