package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council-pipeline-go/internal/config"
	"council-pipeline-go/internal/logger"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, []float32{0.6, 0.8}, Normalize([]float32{3, 4}))
	assert.Equal(t, []float32{0, 0}, Normalize([]float32{0, 0}))
}

func TestEmbed_BatchesAndOrders(t *testing.T) {
	var (
		mu      sync.Mutex
		batches []int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "all-minilm", req.Model)
		mu.Lock()
		batches = append(batches, len(req.Input))
		mu.Unlock()

		// answer in reverse order to check the index is honored
		var data []string
		for i := len(req.Input) - 1; i >= 0; i-- {
			var n int
			fmt.Sscanf(req.Input[i], "text %d", &n)
			data = append(data, fmt.Sprintf(`{"object": "embedding", "index": %d, "embedding": [%d, 1]}`, i, n))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"object": "list", "model": "all-minilm", "data": [%s]}`, strings.Join(data, ","))
	}))
	defer srv.Close()

	c := New(config.Index{EmbeddingURL: srv.URL + "/v1", EmbeddingModel: "all-minilm"},
		config.HTTP{Timeout: 5 * time.Second, MaxRetryElapsed: 5 * time.Second}, logger.Discard())

	texts := make([]string, 70)
	for i := range texts {
		texts[i] = fmt.Sprintf("text %d", i)
	}
	vecs, err := c.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 70)
	mu.Lock()
	assert.Equal(t, []int{64, 6}, batches)
	mu.Unlock()
	for i, v := range vecs {
		assert.Equal(t, Normalize([]float32{float32(i), 1}), v, "vector %d", i)
	}
}

func TestEmbed_Empty(t *testing.T) {
	c := New(config.Index{EmbeddingURL: "http://127.0.0.1:0/v1"}, config.HTTP{}, logger.Discard())
	vecs, err := c.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}
