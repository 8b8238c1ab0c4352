package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DreamCats/doubles/internal/config"
	"github.com/DreamCats/doubles/internal/similarity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedderNearDuplicates(t *testing.T) {
	h, err := NewHashEmbedder(512)
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{
			name: "inflection and stop words",
			a:    "Is the warranty transferable to a new owner?",
			b:    "is warranty transferable to new owners",
			min:  0.9,
			max:  1,
		},
		{
			name: "identical",
			a:    "Does the device support wireless charging?",
			b:    "Does the device support wireless charging?",
			min:  1,
			max:  1,
		},
		{
			name: "unrelated",
			a:    "Does the device support wireless charging?",
			b:    "What is the return policy for opened boxes?",
			min:  -0.5,
			max:  0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			va, err := h.Embed(ctx, tt.a)
			require.NoError(t, err)
			vb, err := h.Embed(ctx, tt.b)
			require.NoError(t, err)

			s, err := similarity.Score(va, vb)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, s, tt.min)
			assert.LessOrEqual(t, s, tt.max)
		})
	}
}

func TestHashEmbedderDeterministic(t *testing.T) {
	a, err := NewHashEmbedder(64)
	require.NoError(t, err)
	b, err := NewHashEmbedder(64)
	require.NoError(t, err)

	va, _ := a.Embed(context.Background(), "the quick brown fox")
	vb, _ := b.Embed(context.Background(), "the quick brown fox")
	assert.Equal(t, va, vb)
	assert.Len(t, va, 64)
}

func TestHashEmbedderTerms(t *testing.T) {
	h, err := NewHashEmbedder(16)
	require.NoError(t, err)
	assert.Equal(t, []string{"run", "fast"}, h.Terms("The running is FAST"))
	assert.Empty(t, h.Terms("the and of"))
}

func TestHashEmbedderInvalidDimensions(t *testing.T) {
	_, err := NewHashEmbedder(0)
	assert.Error(t, err)
}

func TestServiceBlankTextIsZeroVector(t *testing.T) {
	svc, err := NewService(&config.EmbeddingConfig{Provider: "hash", Dimensions: 32, BatchSize: 2})
	require.NoError(t, err)

	out, err := svc.EmbedBatch(context.Background(), []string{"alpha beta", "   ", "gamma delta", "epsilon"})
	require.NoError(t, err)
	require.Len(t, out, 4)
	for _, v := range out {
		assert.Len(t, v, 32)
	}
	assert.Equal(t, make([]float32, 32), out[1])

	_, err = similarity.NewScorer(similarity.MetricCosine, out)
	var degenerate *similarity.DegenerateVectorError
	require.ErrorAs(t, err, &degenerate)
	assert.Equal(t, 1, degenerate.Index)
}

func TestNewServiceUnknownProvider(t *testing.T) {
	_, err := NewService(&config.EmbeddingConfig{Provider: "local"})
	assert.Error(t, err)
}

type countingClient struct {
	dim     int
	batches []int
}

func (c *countingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}

func (c *countingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batches = append(c.batches, len(texts))
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i], _ = c.Embed(ctx, text)
	}
	return out, nil
}

func (c *countingClient) Dimensions() int { return c.dim }

func TestServiceBatching(t *testing.T) {
	client := &countingClient{}
	svc := NewServiceWithClient(&config.EmbeddingConfig{BatchSize: 3}, client)

	texts := []string{"a", "bb", "", "ccc", "dddd", "eeeee", "ffffff"}
	out, err := svc.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)

	assert.Equal(t, []int{3, 3}, client.batches)
	assert.Equal(t, []float32{4, 1}, out[4])
	// Dimension learned from the first response when the client does not know it.
	assert.Equal(t, []float32{0, 0}, out[2])
}

type singleOnly struct{ calls int }

func (s *singleOnly) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if text == "boom" {
		return nil, errors.New("boom")
	}
	return []float32{1, float32(len(text))}, nil
}

func TestEmbedAll(t *testing.T) {
	e := &singleOnly{}
	out, err := EmbedAll(context.Background(), e, []string{"a", "bc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {1, 2}}, out)
	assert.Equal(t, 2, e.calls)

	_, err = EmbedAll(context.Background(), e, []string{"ok", "boom"})
	assert.ErrorContains(t, err, "embed text 1")

	out, err = EmbedAll(context.Background(), e, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestOpenAIClient(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)

		// Answer out of order; the client restores input order.
		resp := map[string]any{"object": "list"}
		var data []map[string]any
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"index":     i,
				"embedding": []float32{float32(i), float32(len(req.Input[i]))},
			})
		}
		resp["data"] = data
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(&config.EmbeddingConfig{
		APIKey:     "sk-test",
		Endpoint:   srv.URL,
		Model:      "test-model",
		MaxRetries: 2,
	})
	require.NoError(t, err)
	c.http.backoff = time.Millisecond

	out, err := c.EmbedBatch(context.Background(), []string{"x", "yyy"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 3}}, out)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestOpenAIClientPermanentError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(&config.EmbeddingConfig{APIKey: "k", Endpoint: srv.URL, MaxRetries: 3})
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), "x")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestOpenAIClientGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(&config.EmbeddingConfig{APIKey: "k", Endpoint: srv.URL, MaxRetries: 1})
	require.NoError(t, err)
	c.http.backoff = time.Millisecond

	_, err = c.Embed(context.Background(), "x")
	assert.ErrorContains(t, err, "giving up after 2 attempts")
}

func TestOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(&config.EmbeddingConfig{})
	assert.Error(t, err)
}

func TestVolcEngineClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req arkRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 1)
		assert.Equal(t, "text", req.Input[0].Type)
		assert.Equal(t, 4, req.Dimensions)
		_, _ = w.Write([]byte(`{"id":"1","data":{"embedding":[1,2,3,` + string(rune('0'+len(req.Input[0].Text))) + `]}}`))
	}))
	defer srv.Close()

	c, err := NewVolcEngineClient(&config.EmbeddingConfig{APIKey: "k", Endpoint: srv.URL, Dimensions: 4})
	require.NoError(t, err)

	out, err := c.EmbedBatch(context.Background(), []string{"ab", "abcde"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2, 3, 2}, {1, 2, 3, 5}}, out)
	assert.Equal(t, 4, c.Dimensions())
}

func TestDecodeArkData(t *testing.T) {
	data, err := decodeArkData(json.RawMessage(` [{"embedding":[1]},{"embedding":[2]}]`))
	require.NoError(t, err)
	assert.Len(t, data, 2)

	_, err = decodeArkData(json.RawMessage(`"nope"`))
	assert.Error(t, err)

	_, err = decodeArkData(nil)
	assert.Error(t, err)
}

func TestProviderVectorWidth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,2]}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(&config.EmbeddingConfig{APIKey: "k", Endpoint: srv.URL, Dimensions: 3})
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrVectorWidth)
}

func TestVolcEngineClientStopsOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req arkRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Input[0].Text == "bad" {
			http.Error(w, "rejected", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	c, err := NewVolcEngineClient(&config.EmbeddingConfig{APIKey: "k", Endpoint: srv.URL})
	require.NoError(t, err)
	_, err = c.EmbedBatch(context.Background(), []string{"ok", "bad", "ok"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Contains(t, err.Error(), "text 1")
}
