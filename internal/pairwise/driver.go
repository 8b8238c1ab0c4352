// Package pairwise enumerates record pairs, scores them and collects the
// pairs that meet the run threshold as duplicate edges.
//
// Full comparison of all C(n,2) pairs is the reference behaviour. An
// optional blocking Filter may skip pairs it considers unlikely to match;
// when one is active the driver reports how many pairs were skipped, the
// theoretical miss bound at the threshold, and optionally an audit of a
// sample of skipped pairs.
package pairwise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DreamCats/doubles/internal/cluster"
	"github.com/DreamCats/doubles/internal/record"
	"github.com/DreamCats/doubles/internal/similarity"
)

// ErrCancelled is returned when the context ends before all pairs were
// compared. No edges are returned with it.
var ErrCancelled = errors.New("comparison cancelled")

// DefaultBatchSize is the number of rows a worker takes at a time.
const DefaultBatchSize = 64

// Scorer gives positional access to the vectors of a run.
// *similarity.Scorer implements it.
type Scorer interface {
	Len() int
	Vector(i int) []float32
	Score(i, j int) float64
}

// Progress receives the number of pairs finished after every batch.
// Implementations must be safe for concurrent use.
type Progress interface {
	Start(total int)
	Add(n int)
	Finish()
}

// Driver runs the comparison phase.
type Driver struct {
	// Workers bounds the number of concurrent batches. Zero means GOMAXPROCS.
	Workers int
	// BatchSize is the number of rows per batch. Zero means DefaultBatchSize.
	BatchSize int
	// Filter optionally skips pairs. Nil compares every pair.
	Filter Filter
	// AuditSample re-scores up to this many skipped pairs when Filter is set.
	AuditSample int
	Progress    Progress
	Logger      *slog.Logger
}

// Stats describes one comparison phase.
type Stats struct {
	Records       int           `json:"records"`
	TotalPairs    int64         `json:"total_pairs"`
	ComparedPairs int64         `json:"compared_pairs"`
	SkippedPairs  int64         `json:"skipped_pairs"`
	Edges         int           `json:"edges"`
	Duration      time.Duration `json:"duration_ns"`

	Filter          string  `json:"filter,omitempty"`
	FilterMissBound float64 `json:"filter_miss_bound,omitempty"`
	AuditedPairs    int     `json:"audited_pairs,omitempty"`
	AuditMisses     int     `json:"audit_misses,omitempty"`
}

// Output is the sorted edge list plus stats.
type Output struct {
	Edges []cluster.Edge
	Stats Stats
}

type batch struct {
	start, end int
}

// Run compares the pairs of ids (positionally matched with scorer) and
// returns the edges that meet threshold, sorted by (A, B).
func (d *Driver) Run(ctx context.Context, ids []record.ID, scorer Scorer, threshold similarity.Threshold) (*Output, error) {
	n := len(ids)
	if scorer.Len() != n {
		return nil, fmt.Errorf("scorer holds %d vectors for %d records", scorer.Len(), n)
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := d.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	batchSize := d.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	start := time.Now()
	total := int64(n) * int64(n-1) / 2
	stats := Stats{Records: n, TotalPairs: total}

	var blocking Blocking
	if d.Filter != nil && n > 1 {
		b, err := d.Filter.Prepare(scorer)
		if err != nil {
			return nil, fmt.Errorf("prepare %s filter: %w", d.Filter.Name(), err)
		}
		blocking = b
		stats.Filter = d.Filter.Name()
		stats.FilterMissBound = d.Filter.MissProbability(threshold.Value())
		logger.Warn("blocking filter enabled, pairs outside shared buckets are not compared",
			"filter", stats.Filter,
			"miss_bound_at_threshold", stats.FilterMissBound,
			"threshold", threshold.Value(),
		)
	}

	var batches []batch
	for s := 0; s < n; s += batchSize {
		batches = append(batches, batch{start: s, end: min(s+batchSize, n)})
	}

	if d.Progress != nil {
		d.Progress.Start(int(total))
		defer d.Progress.Finish()
	}

	results := make([][]cluster.Edge, len(batches))
	var compared atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for bi, b := range batches {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var local []cluster.Edge
			var done, cmp int64
			for i := b.start; i < b.end; i++ {
				if blocking != nil {
					blocking.ForEachCandidate(i, func(j int) {
						cmp++
						if s := scorer.Score(i, j); threshold.Matches(s) {
							local = append(local, cluster.NewEdge(ids[i], ids[j], s))
						}
					})
				} else {
					for j := i + 1; j < n; j++ {
						if s := scorer.Score(i, j); threshold.Matches(s) {
							local = append(local, cluster.NewEdge(ids[i], ids[j], s))
						}
					}
					cmp += int64(n - i - 1)
				}
				done += int64(n - i - 1)
			}
			results[bi] = local
			compared.Add(cmp)
			if d.Progress != nil {
				d.Progress.Add(int(done))
			}
			return nil
		})
	}
	waitErr := g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if waitErr != nil {
		return nil, waitErr
	}

	var edges []cluster.Edge
	for _, r := range results {
		edges = append(edges, r...)
	}
	slices.SortFunc(edges, cluster.CompareEdges)

	stats.ComparedPairs = compared.Load()
	stats.SkippedPairs = total - stats.ComparedPairs
	stats.Edges = len(edges)

	if blocking != nil && d.AuditSample > 0 && stats.SkippedPairs > 0 {
		audited, misses := audit(scorer, blocking, threshold, d.AuditSample, d.Filter.Seed())
		stats.AuditedPairs = audited
		stats.AuditMisses = misses
		if misses > 0 {
			logger.Warn("blocking filter skipped pairs that meet the threshold",
				"audited", audited,
				"misses", misses,
			)
		}
	}
	stats.Duration = time.Since(start)

	logger.Debug("comparison finished",
		"records", n,
		"compared", stats.ComparedPairs,
		"skipped", stats.SkippedPairs,
		"edges", stats.Edges,
		"duration", stats.Duration,
	)
	return &Output{Edges: edges, Stats: stats}, nil
}
