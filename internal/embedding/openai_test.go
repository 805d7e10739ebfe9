package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embItem struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// fakeEmbeddings answers an OpenAI-compatible embeddings request. respond
// receives the decoded input and returns the items to send back.
func fakeEmbeddings(t *testing.T, calls *atomic.Int32, respond func(input []string) (int, []embItem)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		status, items := respond(req.Input)
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   items,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// reversed returns one 2-d vector per input, listed in reverse index order.
func reversed(input []string) (int, []embItem) {
	items := make([]embItem, 0, len(input))
	for i := len(input) - 1; i >= 0; i-- {
		items = append(items, embItem{Object: "embedding", Index: i, Embedding: []float64{float64(i + 1), float64(len(input[i]))}})
	}
	return http.StatusOK, items
}

func TestOpenAI_Embed(t *testing.T) {
	var calls atomic.Int32
	var seen []string
	srv := fakeEmbeddings(t, &calls, func(input []string) (int, []embItem) {
		seen = input
		return reversed(input)
	})

	p := NewOpenAI(srv.URL, "test-key", "test-model", 0, 0)
	assert.Equal(t, "test-model", p.Model())

	vecs, err := p.Embed(context.Background(), []string{"print", "", "scan paper"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "one request per batch")
	assert.Equal(t, []string{"print", " ", "scan paper"}, seen, "empty input is sent as a space")
	assert.Equal(t, [][]float32{{1, 5}, {2, 1}, {3, 10}}, vecs)
}

func TestOpenAI_EmptyBatch(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbeddings(t, &calls, reversed)

	vecs, err := NewOpenAI(srv.URL, "k", "m", 0, 0).Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
	assert.Zero(t, calls.Load())
}

func TestOpenAI_Malformed(t *testing.T) {
	tests := map[string]struct {
		dimensions int
		respond    func(input []string) (int, []embItem)
	}{
		"missing-item": {
			respond: func(input []string) (int, []embItem) {
				_, items := reversed(input)
				return http.StatusOK, items[:len(items)-1]
			},
		},
		"index-out-of-range": {
			respond: func(input []string) (int, []embItem) {
				return http.StatusOK, []embItem{{Object: "embedding", Index: 7, Embedding: []float64{1}}}
			},
		},
		"wrong-dimension": {
			dimensions: 3,
			respond:    reversed,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int32
			srv := fakeEmbeddings(t, &calls, tt.respond)
			_, err := NewOpenAI(srv.URL, "k", "m", tt.dimensions, 0).Embed(context.Background(), []string{"a", "b"})
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestOpenAI_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbeddings(t, &calls, func(input []string) (int, []embItem) {
		if calls.Load() == 1 {
			return http.StatusServiceUnavailable, nil
		}
		return reversed(input)
	})

	vecs, err := NewOpenAI(srv.URL, "k", "m", 0, 1).Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAI_UpstreamError(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbeddings(t, &calls, func([]string) (int, []embItem) {
		return http.StatusBadRequest, nil
	})

	_, err := NewOpenAI(srv.URL, "k", "m", 0, 3).Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai embedding")
	assert.Equal(t, int32(1), calls.Load(), "client errors are not retried")
}
