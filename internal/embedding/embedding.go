// Package embedding turns summary text into vectors through an
// OpenAI-compatible embeddings endpoint.
package embedding

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"council-pipeline-go/internal/config"
	"council-pipeline-go/internal/logger"
	"council-pipeline-go/internal/retry"
)

// Dim is the width of all-minilm vectors.
const Dim = 384

const batchSize = 64

// Embedder maps texts to vectors, one per text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Client struct {
	client     *openai.Client
	model      string
	maxElapsed time.Duration
	log        *logger.Logger
}

func New(cfg config.Index, httpCfg config.HTTP, log *logger.Logger) *Client {
	oc := openai.DefaultConfig(cfg.EmbeddingAPIKey)
	oc.BaseURL = cfg.EmbeddingURL
	oc.HTTPClient = &http.Client{Timeout: httpCfg.Timeout}
	return &Client{
		client:     openai.NewClientWithConfig(oc),
		model:      cfg.EmbeddingModel,
		maxElapsed: httpCfg.MaxRetryElapsed,
		log:        log.Component("embedding"),
	}
}

// Embed returns unit-length vectors so that cosine similarity is a dot
// product in every backend.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		batch := texts[start:min(len(texts), start+batchSize)]

		var resp openai.EmbeddingResponse
		err := retry.Do(ctx, c.maxElapsed, func() error {
			var err error
			resp, err = c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Model: openai.EmbeddingModel(c.model),
				Input: batch,
			})
			if err != nil {
				c.log.WithError(err).WithField("batch", len(batch)).Warn("embedding call failed")
			}
			return retry.OpenAI(err)
		})
		if err != nil {
			return nil, fmt.Errorf("embed: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("embed: got %d vectors for %d texts", len(resp.Data), len(batch))
		}

		vecs := make([][]float32, len(batch))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(batch) {
				return nil, fmt.Errorf("embed: vector index %d out of range", d.Index)
			}
			vecs[d.Index] = Normalize(d.Embedding)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Normalize scales v to unit length. The zero vector is returned as is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
