package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"council-pipeline-go/internal/logger"
)

// PayloadDocument and PayloadID hold the text and the original string ID
// in each point's payload.
const (
	PayloadDocument = "document"
	PayloadID       = "doc_id"
)

type Qdrant struct {
	client     *qdrant.Client
	collection string
	log        *logger.Logger
}

func OpenQdrant(host string, port int, apiKey string, log *logger.Logger) (*Qdrant, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	return &Qdrant{client: client, log: log.Component("vectorstore").With("backend", "qdrant")}, nil
}

func (q *Qdrant) EnsureCollection(ctx context.Context, name string, dim int) error {
	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", name, err)
	}
	if !exists {
		err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
		q.log.WithField("collection", name).WithField("dim", dim).Info("collection created")
	}
	q.collection = name
	return nil
}

func (q *Qdrant) Existing(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	byPoint := make(map[string]string, len(ids))
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pid := PointID(id).String()
		byPoint[pid] = id
		pointIDs = append(pointIDs, qdrant.NewID(pid))
	}

	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            pointIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("get points: %w", err)
	}
	for _, p := range points {
		if id, ok := byPoint[p.GetId().GetUuid()]; ok {
			found[id] = true
		}
	}
	return found, nil
}

func (q *Qdrant) Upsert(ctx context.Context, docs []Document) error {
	if q.collection == "" {
		return errors.New("no collection selected")
	}
	if err := validate(docs, 0); err != nil {
		return err
	}
	points := make([]*qdrant.PointStruct, len(docs))
	for i, d := range docs {
		payload := make(map[string]any, len(d.Metadata)+2)
		for k, v := range d.Metadata {
			payload[k] = v
		}
		payload[PayloadDocument] = d.Text
		payload[PayloadID] = d.ID

		vec := make([]float32, len(d.Embedding))
		copy(vec, d.Embedding)
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(d.ID).String()),
			Vectors: qdrant.NewVectors(vec...),
			Payload: qdrant.NewValueMap(payload),
		}
	}

	wait := true
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

func (q *Qdrant) Close() error {
	return q.client.Close()
}
