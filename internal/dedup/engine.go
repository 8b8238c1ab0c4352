// Package dedup runs semantic near-duplicate detection over a set of records.
//
// A run loads the records into a Store, asks the injected Embedder for one
// vector per record, compares every pair under a single cosine threshold and
// groups records connected by duplicate edges into clusters. The result is
// all-or-nothing: any failure aborts the run and no clusters are returned.
//
// The engine never constructs an embedder itself; callers pass one in, which
// keeps runs testable with synthetic vectors.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DreamCats/doubles/internal/cluster"
	"github.com/DreamCats/doubles/internal/embedding"
	"github.com/DreamCats/doubles/internal/pairwise"
	"github.com/DreamCats/doubles/internal/record"
	"github.com/DreamCats/doubles/internal/similarity"
)

// Options configures an Engine.
type Options struct {
	// Threshold is the minimum score for a duplicate pair. It has no
	// implicit default; use DefaultOptions for the usual value.
	Threshold float64
	Metric    similarity.Metric

	// Workers and BatchSize tune the comparison phase. Zero picks defaults.
	Workers   int
	BatchSize int

	// Filter enables blocking. Nil compares every pair.
	Filter      pairwise.Filter
	AuditSample int

	Progress pairwise.Progress
	Logger   *slog.Logger
}

// DefaultOptions returns options with the default threshold.
func DefaultOptions() Options {
	return Options{
		Threshold: similarity.DefaultThreshold,
		Metric:    similarity.MetricCosine,
		BatchSize: pairwise.DefaultBatchSize,
	}
}

// Engine runs detection. It holds no state between runs and is safe for
// concurrent use when its Embedder and Progress are.
type Engine struct {
	embedder  embedding.Embedder
	threshold similarity.Threshold
	opts      Options
	logger    *slog.Logger
}

// New validates opts and returns an engine using embedder.
func New(embedder embedding.Embedder, opts Options) (*Engine, error) {
	threshold, err := similarity.NewThreshold(opts.Threshold, opts.Metric)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		embedder:  embedder,
		threshold: threshold,
		opts:      opts,
		logger:    logger,
	}, nil
}

// Threshold returns the validated run threshold.
func (e *Engine) Threshold() similarity.Threshold { return e.threshold }

// Cluster is a cluster of the final partition plus its annotations.
type Cluster struct {
	cluster.Cluster
	// Opposites lists members whose label disagrees with the label of the
	// representative. Members without a label are never opposites.
	Opposites []record.ID `json:"opposites,omitempty"`
}

// Stats summarises a run.
type Stats struct {
	Records          int     `json:"records"`
	Clusters         int     `json:"clusters"`
	DuplicateGroups  int     `json:"duplicate_groups"`
	DuplicateRecords int     `json:"duplicate_records"`
	DuplicatePercent float64 `json:"duplicate_percent"`
	Opposites        int     `json:"opposites"`

	Comparison pairwise.Stats `json:"comparison"`

	EmbedDuration   time.Duration `json:"embed_duration_ns"`
	CompareDuration time.Duration `json:"compare_duration_ns"`
	ClusterDuration time.Duration `json:"cluster_duration_ns"`
	TotalDuration   time.Duration `json:"total_duration_ns"`
}

// Result is the outcome of a successful run.
type Result struct {
	Threshold float64   `json:"threshold"`
	Metric    string    `json:"metric"`
	Clusters  []Cluster `json:"clusters"`
	Stats     Stats     `json:"stats"`
}

// Duplicates returns the clusters with more than one member.
func (r *Result) Duplicates() []Cluster {
	var out []Cluster
	for _, c := range r.Clusters {
		if !c.IsSingleton() {
			out = append(out, c)
		}
	}
	return out
}

// Run detects duplicates among records. Empty input yields an empty result
// without calling the embedder.
func (e *Engine) Run(ctx context.Context, records []record.Record) (*Result, error) {
	start := time.Now()
	store, err := record.NewStore(records)
	if err != nil {
		return nil, err
	}
	if store.Len() == 0 {
		return e.empty(), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", pairwise.ErrCancelled, err)
	}

	e.logger.Info("embedding records", "records", store.Len())
	vectors, err := embedding.EmbedAll(ctx, e.embedder, store.Texts())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", pairwise.ErrCancelled, ctxErr)
		}
		return nil, fmt.Errorf("embed records: %w", err)
	}
	if len(vectors) != store.Len() {
		return nil, fmt.Errorf("embedder returned %d vectors for %d records", len(vectors), store.Len())
	}
	embedDuration := time.Since(start)

	res, err := e.run(ctx, store, vectors)
	if err != nil {
		return nil, err
	}
	res.Stats.EmbedDuration = embedDuration
	res.Stats.TotalDuration = time.Since(start)
	return res, nil
}

// RunVectors runs detection over precomputed vectors, positionally matched
// with ids.
func (e *Engine) RunVectors(ctx context.Context, ids []record.ID, vectors [][]float32) (*Result, error) {
	start := time.Now()
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("got %d vectors for %d ids", len(vectors), len(ids))
	}
	records := make([]record.Record, len(ids))
	for i, id := range ids {
		records[i] = record.Record{ID: id}
	}
	store, err := record.NewStore(records)
	if err != nil {
		return nil, err
	}
	if store.Len() == 0 {
		return e.empty(), nil
	}
	res, err := e.run(ctx, store, vectors)
	if err != nil {
		return nil, err
	}
	res.Stats.TotalDuration = time.Since(start)
	return res, nil
}

func (e *Engine) empty() *Result {
	return &Result{
		Threshold: e.threshold.Value(),
		Metric:    e.threshold.Metric().String(),
		Clusters:  []Cluster{},
	}
}

func (e *Engine) run(ctx context.Context, store *record.Store, vectors [][]float32) (*Result, error) {
	ids := store.IDs()

	scorer, err := similarity.NewScorer(e.threshold.Metric(), vectors)
	if err != nil {
		return nil, attachRecord(err, ids)
	}

	driver := &pairwise.Driver{
		Workers:     e.opts.Workers,
		BatchSize:   e.opts.BatchSize,
		Filter:      e.opts.Filter,
		AuditSample: e.opts.AuditSample,
		Progress:    e.opts.Progress,
		Logger:      e.logger,
	}
	out, err := driver.Run(ctx, ids, scorer, e.threshold)
	if err != nil {
		return nil, err
	}

	clusterStart := time.Now()
	clusters, err := cluster.Build(ids, out.Edges)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Threshold: e.threshold.Value(),
		Metric:    e.threshold.Metric().String(),
		Clusters:  make([]Cluster, len(clusters)),
	}
	for i, c := range clusters {
		res.Clusters[i] = Cluster{Cluster: c, Opposites: opposites(store, c)}
	}
	res.Stats = summarize(store.Len(), res.Clusters)
	res.Stats.Comparison = out.Stats
	res.Stats.CompareDuration = out.Stats.Duration
	res.Stats.ClusterDuration = time.Since(clusterStart)

	e.logger.Info("detection finished",
		"records", res.Stats.Records,
		"clusters", res.Stats.Clusters,
		"duplicate_groups", res.Stats.DuplicateGroups,
		"duplicate_records", res.Stats.DuplicateRecords,
		"threshold", res.Threshold,
	)
	return res, nil
}

// attachRecord replaces a vector position in err with the record id.
func attachRecord(err error, ids []record.ID) error {
	var dm *similarity.DimensionMismatchError
	if errors.As(err, &dm) && dm.Index >= 0 && dm.Index < len(ids) {
		return &RecordError{ID: ids[dm.Index], Err: err}
	}
	var dv *similarity.DegenerateVectorError
	if errors.As(err, &dv) && dv.Index >= 0 && dv.Index < len(ids) {
		return &RecordError{ID: ids[dv.Index], Err: err}
	}
	return err
}

func opposites(store *record.Store, c cluster.Cluster) []record.ID {
	if c.IsSingleton() {
		return nil
	}
	rep, _ := store.Get(c.ID)
	repLabel := strings.TrimSpace(rep.Label)
	if repLabel == "" {
		return nil
	}
	var out []record.ID
	for _, id := range c.Members[1:] {
		r, _ := store.Get(id)
		label := strings.TrimSpace(r.Label)
		if label != "" && !strings.EqualFold(label, repLabel) {
			out = append(out, id)
		}
	}
	return out
}

func summarize(records int, clusters []Cluster) Stats {
	s := Stats{Records: records, Clusters: len(clusters)}
	for _, c := range clusters {
		if c.IsSingleton() {
			continue
		}
		s.DuplicateGroups++
		s.DuplicateRecords += c.Size() - 1
		s.Opposites += len(c.Opposites)
	}
	if records > 0 {
		s.DuplicatePercent = float64(s.DuplicateRecords) / float64(records) * 100
	}
	return s
}
