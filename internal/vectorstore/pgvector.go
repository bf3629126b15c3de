package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"council-pipeline-go/internal/logger"
)

// Postgres stores each collection as a table with a pgvector column.
type Postgres struct {
	db    *sql.DB
	table string
	dim   int
	log   *logger.Logger
}

func OpenPostgres(ctx context.Context, dsn string, log *logger.Logger) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{db: db, log: log.Component("vectorstore").With("backend", "pgvector")}, nil
}

// createTableSQL is split out so the statement can be checked without a
// server.
func createTableSQL(table string, dim int) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id        TEXT PRIMARY KEY,
	document  TEXT NOT NULL,
	metadata  JSONB NOT NULL,
	embedding vector(%d) NOT NULL
)`, table, dim)
}

func upsertSQL(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (id, document, metadata, embedding)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
	document = EXCLUDED.document,
	metadata = EXCLUDED.metadata,
	embedding = EXCLUDED.embedding`, table)
}

func (p *Postgres) EnsureCollection(ctx context.Context, name string, dim int) error {
	table := pgx.Identifier{name}.Sanitize()
	if _, err := p.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("enable pgvector: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, createTableSQL(table, dim)); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	p.table, p.dim = table, dim
	p.log.WithField("table", table).Debug("collection ready")
	return nil
}

func (p *Postgres) Existing(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf("SELECT id FROM %s WHERE id = ANY($1)", p.table), ids)
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

func (p *Postgres) Upsert(ctx context.Context, docs []Document) error {
	if p.table == "" {
		return errors.New("no collection selected")
	}
	if err := validate(docs, p.dim); err != nil {
		return err
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	q := upsertSQL(p.table)
	for _, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata for %s: %w", d.ID, err)
		}
		if _, err := tx.ExecContext(ctx, q, d.ID, d.Text, string(meta), pgvector.NewVector(d.Embedding)); err != nil {
			return fmt.Errorf("upsert %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
