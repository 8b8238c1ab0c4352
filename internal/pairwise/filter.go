package pairwise

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/DreamCats/doubles/internal/similarity"
)

// Filter is an optional blocking stage in front of the comparison loop.
type Filter interface {
	Name() string
	// Prepare indexes the vectors of a run.
	Prepare(scorer Scorer) (Blocking, error)
	// MissProbability bounds the chance that a pair scoring exactly at
	// threshold is never compared. Pairs scoring higher are missed less often.
	MissProbability(threshold float64) float64
	// Seed makes sampling decisions reproducible.
	Seed() uint64
}

// Blocking answers which pairs a prepared filter lets through.
type Blocking interface {
	// ForEachCandidate calls fn for every j > i that shares a bucket with i,
	// in ascending order.
	ForEachCandidate(i int, fn func(j int))
	IsCandidate(i, j int) bool
}

// SimHashFilter buckets vectors with random-hyperplane LSH. The signature
// of a vector has Bands*Rows sign bits; two vectors become candidates when
// all Rows bits of at least one band agree. For cosine similarity s the
// chance one bit agrees is p = 1 - arccos(s)/pi.
type SimHashFilter struct {
	Bands int
	Rows  int
	Salt  uint64
}

// DefaultSimHashFilter favours recall: at cosine 0.85 the miss bound is
// below 0.1%.
func DefaultSimHashFilter() *SimHashFilter {
	return &SimHashFilter{Bands: 24, Rows: 6, Salt: 0x5eed}
}

func (f *SimHashFilter) Name() string {
	return fmt.Sprintf("simhash(bands=%d,rows=%d)", f.Bands, f.Rows)
}

func (f *SimHashFilter) Seed() uint64 { return f.Salt }

// Validate checks the band layout.
func (f *SimHashFilter) Validate() error {
	if f.Bands <= 0 {
		return fmt.Errorf("simhash bands must be positive (got %d)", f.Bands)
	}
	if f.Rows <= 0 || f.Rows > 64 {
		return fmt.Errorf("simhash rows must be between 1 and 64 (got %d)", f.Rows)
	}
	return nil
}

func (f *SimHashFilter) MissProbability(threshold float64) float64 {
	t := math.Max(-1, math.Min(1, threshold))
	p := 1 - math.Acos(t)/math.Pi
	return math.Pow(1-math.Pow(p, float64(f.Rows)), float64(f.Bands))
}

func (f *SimHashFilter) Prepare(scorer Scorer) (Blocking, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	n := scorer.Len()
	if n == 0 {
		return &simHashBlocking{}, nil
	}
	dim := len(scorer.Vector(0))
	if dim == 0 {
		return nil, errors.New("simhash: vectors have no components")
	}

	rng := rand.New(rand.NewPCG(f.Salt, f.Salt^0x9e3779b97f4a7c15))
	planes := make([][]float32, f.Bands*f.Rows)
	for i := range planes {
		plane := make([]float32, dim)
		for k := range plane {
			plane[k] = float32(rng.NormFloat64())
		}
		planes[i] = plane
	}

	b := &simHashBlocking{
		keys:    make([][]uint64, n),
		buckets: make([]map[uint64]*roaring.Bitmap, f.Bands),
	}
	for band := range b.buckets {
		b.buckets[band] = make(map[uint64]*roaring.Bitmap)
	}
	for i := 0; i < n; i++ {
		v := scorer.Vector(i)
		if len(v) != dim {
			return nil, &similarity.DimensionMismatchError{Expected: dim, Actual: len(v), Index: i}
		}
		keys := make([]uint64, f.Bands)
		for band := 0; band < f.Bands; band++ {
			var key uint64
			for r := 0; r < f.Rows; r++ {
				if project(v, planes[band*f.Rows+r]) >= 0 {
					key |= 1 << uint(r)
				}
			}
			keys[band] = key
			bm, ok := b.buckets[band][key]
			if !ok {
				bm = roaring.New()
				b.buckets[band][key] = bm
			}
			bm.Add(uint32(i))
		}
		b.keys[i] = keys
	}
	return b, nil
}

func project(v, plane []float32) float64 {
	var sum float64
	for i := range v {
		sum += float64(v[i]) * float64(plane[i])
	}
	return sum
}

type simHashBlocking struct {
	keys    [][]uint64
	buckets []map[uint64]*roaring.Bitmap
}

func (b *simHashBlocking) ForEachCandidate(i int, fn func(j int)) {
	if i >= len(b.keys) {
		return
	}
	sets := make([]*roaring.Bitmap, 0, len(b.buckets))
	for band, key := range b.keys[i] {
		if bm := b.buckets[band][key]; bm != nil && bm.GetCardinality() > 1 {
			sets = append(sets, bm)
		}
	}
	if len(sets) == 0 {
		return
	}
	union := roaring.FastOr(sets...)
	it := union.Iterator()
	it.AdvanceIfNeeded(uint32(i + 1))
	for it.HasNext() {
		fn(int(it.Next()))
	}
}

func (b *simHashBlocking) IsCandidate(i, j int) bool {
	for band, key := range b.keys[i] {
		if b.keys[j][band] == key {
			return true
		}
	}
	return false
}

// audit draws random skipped pairs and counts those that would have matched.
func audit(scorer Scorer, blocking Blocking, threshold similarity.Threshold, sample int, seed uint64) (audited, misses int) {
	n := scorer.Len()
	rng := rand.New(rand.NewPCG(seed, uint64(n)))
	for attempts := 0; audited < sample && attempts < sample*50; attempts++ {
		i, j := rng.IntN(n), rng.IntN(n)
		if i == j {
			continue
		}
		if i > j {
			i, j = j, i
		}
		if blocking.IsCandidate(i, j) {
			continue
		}
		audited++
		if threshold.Matches(scorer.Score(i, j)) {
			misses++
		}
	}
	return audited, misses
}
