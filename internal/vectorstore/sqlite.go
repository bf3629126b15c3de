package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"council-pipeline-go/internal/logger"
)

// SQLiteFile is the database file created inside the index directory.
const SQLiteFile = "index.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS collections (
	name TEXT PRIMARY KEY,
	dim  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL REFERENCES collections(name),
	id         TEXT NOT NULL,
	document   TEXT NOT NULL,
	metadata   TEXT NOT NULL,
	embedding  BLOB NOT NULL,
	PRIMARY KEY (collection, id)
);`

// SQLite keeps collections in a single on-disk database. Embeddings are
// stored as little-endian float32 blobs.
type SQLite struct {
	db         *sql.DB
	collection string
	dim        int
	log        *logger.Logger
}

// OpenSQLite opens (creating if needed) dir/index.db. dir ":memory:" opens
// a private in-memory database.
func OpenSQLite(dir string, log *logger.Logger) (*SQLite, error) {
	dsn := ":memory:"
	if dir != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
		dsn = filepath.Join(dir, SQLiteFile)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps :memory: databases shared and writes serialized
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLite{db: db, log: log.Component("vectorstore").With("backend", "sqlite")}, nil
}

func (s *SQLite) EnsureCollection(ctx context.Context, name string, dim int) error {
	var stored int
	err := s.db.QueryRowContext(ctx, "SELECT dim FROM collections WHERE name = ?", name).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx, "INSERT INTO collections (name, dim) VALUES (?, ?)", name, dim); err != nil {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
		s.log.WithField("collection", name).WithField("dim", dim).Info("collection created")
		stored = dim
	case err != nil:
		return fmt.Errorf("read collection %s: %w", name, err)
	case stored != dim:
		return fmt.Errorf("collection %s has %d dims, want %d", name, stored, dim)
	}
	s.collection, s.dim = name, stored
	return nil
}

func (s *SQLite) Existing(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, s.collection)
	for _, id := range ids {
		args = append(args, id)
	}
	q := "SELECT id FROM documents WHERE collection = ? AND id IN (?" + strings.Repeat(", ?", len(ids)-1) + ")"
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = true
	}
	return found, rows.Err()
}

func (s *SQLite) Upsert(ctx context.Context, docs []Document) error {
	if s.collection == "" {
		return errors.New("no collection selected")
	}
	if err := validate(docs, s.dim); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (collection, id, document, metadata, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			document = excluded.document,
			metadata = excluded.metadata,
			embedding = excluded.embedding`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata for %s: %w", d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, s.collection, d.ID, d.Text, string(meta), encodeVector(d.Embedding)); err != nil {
			return fmt.Errorf("upsert %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// Get loads one stored document. Metadata numbers decode as float64.
func (s *SQLite) Get(ctx context.Context, id string) (Document, bool, error) {
	var (
		doc  = Document{ID: id}
		meta string
		blob []byte
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT document, metadata, embedding FROM documents WHERE collection = ? AND id = ?",
		s.collection, id).Scan(&doc.Text, &meta, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, err
	}
	if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
		return Document{}, false, fmt.Errorf("decode metadata for %s: %w", id, err)
	}
	doc.Embedding = decodeVector(blob)
	return doc, true, nil
}

// Count returns the number of documents in the selected collection.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE collection = ?", s.collection).Scan(&n)
	return n, err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func encodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(x))
	}
	return b
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
