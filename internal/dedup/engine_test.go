package dedup

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/DreamCats/doubles/internal/config"
	"github.com/DreamCats/doubles/internal/embedding"
	"github.com/DreamCats/doubles/internal/pairwise"
	"github.com/DreamCats/doubles/internal/record"
	"github.com/DreamCats/doubles/internal/similarity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tableEmbedder looks texts up in a fixed table.
type tableEmbedder struct {
	vectors map[string][]float32
	calls   int
}

func (e *tableEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	v, ok := e.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return v, nil
}

func newEngine(t *testing.T, e embedding.Embedder, threshold float64) *Engine {
	t.Helper()
	opts := DefaultOptions()
	opts.Threshold = threshold
	eng, err := New(e, opts)
	require.NoError(t, err)
	return eng
}

func memberSets(res *Result) [][]record.ID {
	out := make([][]record.ID, len(res.Clusters))
	for i, c := range res.Clusters {
		out[i] = c.Members
	}
	return out
}

func TestRunChaining(t *testing.T) {
	// B sits between A and C: A~B and B~C score 0.95, A~C only about 0.80.
	theta := math.Acos(0.95)
	emb := &tableEmbedder{vectors: map[string][]float32{
		"a": {float32(math.Cos(theta)), float32(math.Sin(theta))},
		"b": {1, 0},
		"c": {float32(math.Cos(theta)), float32(-math.Sin(theta))},
	}}
	ac, err := similarity.Score(emb.vectors["a"], emb.vectors["c"])
	require.NoError(t, err)
	require.Less(t, ac, 0.9)

	res, err := newEngine(t, emb, 0.9).Run(context.Background(), []record.Record{
		{ID: "A", Text: "a"}, {ID: "B", Text: "b"}, {ID: "C", Text: "c"},
	})
	require.NoError(t, err)
	require.Len(t, res.Clusters, 1)
	assert.Equal(t, record.ID("A"), res.Clusters[0].ID)
	assert.Equal(t, []record.ID{"A", "B", "C"}, res.Clusters[0].Members)
	assert.Len(t, res.Clusters[0].Edges, 2)
}

func TestRunIdenticalTextsMergeAtThresholdOne(t *testing.T) {
	svc, err := embedding.NewService(&config.EmbeddingConfig{Provider: "hash", Dimensions: 128})
	require.NoError(t, err)

	res, err := newEngine(t, svc, 1.0).Run(context.Background(), []record.Record{
		{ID: "2", Text: "How do I reset my password?"},
		{ID: "1", Text: "How do I reset my password?"},
		{ID: "3", Text: "Where is my order?"},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]record.ID{{"1", "2"}, {"3"}}, memberSets(res))
	require.Len(t, res.Clusters[0].Edges, 1)
	assert.Equal(t, 1.0, res.Clusters[0].Edges[0].Score)
}

func TestRunDegenerateVector(t *testing.T) {
	emb := &tableEmbedder{vectors: map[string][]float32{
		"x": {1, 2, 3},
		"z": {0, 0, 0},
	}}
	res, err := newEngine(t, emb, 0.8).Run(context.Background(), []record.Record{
		{ID: "10", Text: "x"}, {ID: "11", Text: "z"}, {ID: "12", Text: "x"},
	})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, KindDegenerateVector, Kind(err))

	var re *RecordError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, record.ID("11"), re.ID)
	assert.Contains(t, err.Error(), `record "11"`)
}

func TestRunEmptyInput(t *testing.T) {
	emb := &tableEmbedder{}
	res, err := newEngine(t, emb, 0.9).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, res.Clusters)
	assert.Empty(t, res.Clusters)
	assert.Zero(t, res.Stats.Records)
	assert.Zero(t, emb.calls)
}

func TestRunDimensionMismatch(t *testing.T) {
	emb := &tableEmbedder{vectors: map[string][]float32{
		"x": {1, 2, 3},
		"y": {1, 2},
	}}
	_, err := newEngine(t, emb, 0.8).Run(context.Background(), []record.Record{
		{ID: "a", Text: "x"}, {ID: "b", Text: "y"},
	})
	assert.Equal(t, KindDimensionMismatch, Kind(err))
	var re *RecordError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, record.ID("b"), re.ID)
}

func TestRunDuplicateRecordID(t *testing.T) {
	emb := &tableEmbedder{}
	_, err := newEngine(t, emb, 0.8).Run(context.Background(), []record.Record{
		{ID: "a", Text: "x"}, {ID: "a", Text: "y"},
	})
	assert.Equal(t, KindDuplicateRecordID, Kind(err))
	assert.Zero(t, emb.calls)
}

func TestNewInvalidThreshold(t *testing.T) {
	for _, th := range []float64{1.0001, -1.5, math.NaN(), math.Inf(1)} {
		opts := DefaultOptions()
		opts.Threshold = th
		_, err := New(&tableEmbedder{}, opts)
		assert.Equal(t, KindInvalidThreshold, Kind(err), "threshold %v", th)
	}
}

func TestRunCancelled(t *testing.T) {
	emb := &tableEmbedder{vectors: map[string][]float32{"x": {1, 0}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newEngine(t, emb, 0.8).Run(ctx, []record.Record{{ID: "a", Text: "x"}, {ID: "b", Text: "x"}})
	assert.Nil(t, res)
	assert.Equal(t, KindCancelled, Kind(err))
	assert.ErrorIs(t, err, pairwise.ErrCancelled)
	assert.Zero(t, emb.calls)
}

func TestRunEmbedderFailure(t *testing.T) {
	emb := &tableEmbedder{vectors: map[string][]float32{}}
	_, err := newEngine(t, emb, 0.8).Run(context.Background(), []record.Record{{ID: "a", Text: "missing"}})
	assert.Equal(t, KindInternal, Kind(err))
}

func TestKind(t *testing.T) {
	assert.Equal(t, KindNone, Kind(nil))
	assert.Equal(t, KindInternal, Kind(errors.New("x")))
	assert.Equal(t, KindCancelled, Kind(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.Equal(t, "DuplicateRecordId", KindDuplicateRecordID.String())
	assert.Equal(t, "UnknownRecordReference", KindUnknownRecordReference.String())
}

func randomVectors(rng *rand.Rand, n, dim int) ([]record.ID, [][]float32) {
	centers := make([][]float32, 6)
	for c := range centers {
		centers[c] = make([]float32, dim)
		for k := range centers[c] {
			centers[c][k] = float32(rng.NormFloat64())
		}
	}
	ids := make([]record.ID, n)
	vectors := make([][]float32, n)
	for i := range ids {
		ids[i] = record.ID(fmt.Sprintf("q%d", i))
		c := centers[rng.IntN(len(centers))]
		spread := 0.2 + rng.Float64()
		v := make([]float32, dim)
		for k := range v {
			v[k] = c[k] + float32(rng.NormFloat64()*spread)
		}
		vectors[i] = v
	}
	return ids, vectors
}

func TestRunVectorsMonotonicity(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	ids, vectors := randomVectors(rng, 120, 12)

	thresholds := []float64{0.3, 0.5, 0.7, 0.8, 0.9, 0.95, 1}
	var prev *Result
	for _, th := range thresholds {
		res, err := newEngine(t, nil, th).RunVectors(context.Background(), ids, vectors)
		require.NoError(t, err)

		if prev != nil {
			owner := make(map[record.ID]record.ID)
			for _, c := range prev.Clusters {
				for _, m := range c.Members {
					owner[m] = c.ID
				}
			}
			for _, c := range res.Clusters {
				for _, m := range c.Members {
					assert.Equal(t, owner[c.Members[0]], owner[m],
						"cluster %s at %.2f spans clusters of a lower threshold", c.ID, th)
				}
			}
			assert.GreaterOrEqual(t, len(res.Clusters), len(prev.Clusters))
		}
		prev = res
	}
}

func TestRunVectorsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	ids, vectors := randomVectors(rng, 90, 8)

	opts := DefaultOptions()
	opts.Threshold = 0.85
	opts.Workers = 1
	serial, err := New(nil, opts)
	require.NoError(t, err)
	opts.Workers = 8
	opts.BatchSize = 3
	parallel, err := New(nil, opts)
	require.NoError(t, err)

	want, err := serial.RunVectors(context.Background(), ids, vectors)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		// Input order must not matter either.
		perm := rng.Perm(len(ids))
		sIDs := make([]record.ID, len(ids))
		sVecs := make([][]float32, len(ids))
		for k, p := range perm {
			sIDs[k], sVecs[k] = ids[p], vectors[p]
		}
		got, err := parallel.RunVectors(context.Background(), sIDs, sVecs)
		require.NoError(t, err)
		assert.Equal(t, want.Clusters, got.Clusters)
	}
}

func TestRunVectorsPartition(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	ids, vectors := randomVectors(rng, 75, 6)
	res, err := newEngine(t, nil, 0.8).RunVectors(context.Background(), ids, vectors)
	require.NoError(t, err)

	seen := make(map[record.ID]int)
	for _, c := range res.Clusters {
		for _, m := range c.Members {
			seen[m]++
		}
	}
	require.Len(t, seen, len(ids))
	for _, id := range ids {
		assert.Equal(t, 1, seen[id])
	}
	assert.Equal(t, len(res.Clusters), res.Stats.Clusters)
	assert.Equal(t, len(ids)-len(res.Clusters), res.Stats.DuplicateRecords)
}

func TestRunVectorsLengthMismatch(t *testing.T) {
	_, err := newEngine(t, nil, 0.8).RunVectors(context.Background(), []record.ID{"a"}, nil)
	assert.Equal(t, KindInternal, Kind(err))
}

func TestRunVectorsWithFilter(t *testing.T) {
	rng := rand.New(rand.NewPCG(4, 4))
	ids, vectors := randomVectors(rng, 100, 32)

	full, err := newEngine(t, nil, 0.9).RunVectors(context.Background(), ids, vectors)
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Threshold = 0.9
	opts.Filter = pairwise.DefaultSimHashFilter()
	opts.AuditSample = 200
	eng, err := New(nil, opts)
	require.NoError(t, err)
	filtered, err := eng.RunVectors(context.Background(), ids, vectors)
	require.NoError(t, err)

	st := filtered.Stats.Comparison
	assert.NotEmpty(t, st.Filter)
	assert.Equal(t, st.TotalPairs, st.ComparedPairs+st.SkippedPairs)
	// A filtered run can only split clusters of the full run.
	owner := make(map[record.ID]record.ID)
	for _, c := range full.Clusters {
		for _, m := range c.Members {
			owner[m] = c.ID
		}
	}
	for _, c := range filtered.Clusters {
		for _, m := range c.Members {
			assert.Equal(t, owner[c.Members[0]], owner[m])
		}
	}
}

func TestRunOppositesAndStats(t *testing.T) {
	emb := &tableEmbedder{vectors: map[string][]float32{
		"refund":  {1, 0, 0},
		"refund?": {0.99, 0.05, 0},
		"ship":    {0, 1, 0},
		"ship?":   {0, 0.98, 0.1},
		"other":   {0, 0, 1},
	}}
	res, err := newEngine(t, emb, 0.9).Run(context.Background(), []record.Record{
		{ID: "1", Text: "refund", Label: "Yes"},
		{ID: "2", Text: "refund?", Label: "no"},
		{ID: "3", Text: "ship", Label: "yes"},
		{ID: "4", Text: "ship?", Label: "YES"},
		{ID: "5", Text: "other"},
	})
	require.NoError(t, err)
	require.Len(t, res.Clusters, 3)

	assert.Equal(t, []record.ID{"2"}, res.Clusters[0].Opposites)
	assert.Empty(t, res.Clusters[1].Opposites)
	assert.Nil(t, res.Clusters[2].Opposites)

	st := res.Stats
	assert.Equal(t, 5, st.Records)
	assert.Equal(t, 3, st.Clusters)
	assert.Equal(t, 2, st.DuplicateGroups)
	assert.Equal(t, 2, st.DuplicateRecords)
	assert.InDelta(t, 40.0, st.DuplicatePercent, 1e-9)
	assert.Equal(t, 1, st.Opposites)
	assert.Equal(t, int64(10), st.Comparison.TotalPairs)
	assert.Len(t, res.Duplicates(), 2)
}

func TestCompare(t *testing.T) {
	emb := &tableEmbedder{vectors: map[string][]float32{
		"a": {1, 0},
		"b": {1, 1},
	}}
	eng := newEngine(t, emb, 0.7)
	got, err := eng.Compare(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.InDelta(t, 1/math.Sqrt2, got.Score, 1e-12)
	assert.True(t, got.Duplicate)
	assert.Equal(t, 0.7, got.Threshold)
}
