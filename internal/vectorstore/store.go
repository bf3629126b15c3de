// Package vectorstore persists embedded summary windows. Three backends
// share one interface: a local SQLite file (default), Qdrant and Postgres
// with pgvector.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"council-pipeline-go/internal/config"
	"council-pipeline-go/internal/logger"
)

// Document is one indexed window. Metadata values are scalars: string,
// int64, float64 or bool.
type Document struct {
	ID        string
	Text      string
	Metadata  map[string]any
	Embedding []float32
}

type Store interface {
	// EnsureCollection creates the collection if needed and selects it for
	// the calls that follow.
	EnsureCollection(ctx context.Context, name string, dim int) error
	// Existing reports which of ids are already stored.
	Existing(ctx context.Context, ids []string) (map[string]bool, error)
	// Upsert inserts docs, replacing any stored under the same ID.
	Upsert(ctx context.Context, docs []Document) error
	Close() error
}

// Open connects to the backend named by cfg.Backend.
func Open(ctx context.Context, cfg config.Index, log *logger.Logger) (Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return OpenSQLite(cfg.Dir, log)
	case "qdrant":
		return OpenQdrant(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantAPIKey, log)
	case "pgvector":
		return OpenPostgres(ctx, cfg.PostgresDSN, log)
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
}

// PointID maps a document ID onto the UUID keyspace of backends that only
// accept UUID or integer keys. The mapping is stable across runs.
func PointID(id string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id))
}

func validate(docs []Document, dim int) error {
	for _, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("document with empty id")
		}
		if dim > 0 && len(d.Embedding) != dim {
			return fmt.Errorf("document %s: embedding has %d dims, collection has %d", d.ID, len(d.Embedding), dim)
		}
	}
	return nil
}
