package embedding

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// bigramWeight scales adjacent-term features against single terms.
const bigramWeight = 0.5

// HashEmbedder is an offline lexical embedder. Text runs through the English
// analyzer (unicode tokenizer, lowercase, stop words, porter stemmer) and
// every stem and adjacent stem pair is hashed into a signed bucket of a
// fixed-size vector. Texts that share most stems score high under cosine.
//
// It needs no network or model files and is deterministic across runs, so
// it is the default provider and the one tests use.
type HashEmbedder struct {
	dim      int
	analyzer analysis.Analyzer
}

// NewHashEmbedder builds a hash embedder producing vectors of dim components.
func NewHashEmbedder(dim int) (*HashEmbedder, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("hash embedder dimensions must be positive (got %d)", dim)
	}
	analyzer := mapping.NewIndexMapping().AnalyzerNamed(en.AnalyzerName)
	if analyzer == nil {
		return nil, fmt.Errorf("analyzer %q is not registered", en.AnalyzerName)
	}
	return &HashEmbedder{dim: dim, analyzer: analyzer}, nil
}

// Embed returns the hashed term vector of text. Text with no indexable terms
// maps to the zero vector.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.vector(text), nil
}

func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *HashEmbedder) Dimensions() int { return h.dim }

// Terms returns the analyzed stems of text in order.
func (h *HashEmbedder) Terms(text string) []string {
	tokens := h.analyzer.Analyze([]byte(text))
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		terms = append(terms, string(tok.Term))
	}
	return terms
}

func (h *HashEmbedder) vector(text string) []float32 {
	v := make([]float32, h.dim)
	terms := h.Terms(text)
	for i, term := range terms {
		h.add(v, term, 1)
		if i > 0 {
			h.add(v, terms[i-1]+" "+term, bigramWeight)
		}
	}
	return v
}

func (h *HashEmbedder) add(v []float32, feature string, weight float32) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	bucket := int(sum % uint64(h.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	v[bucket] += weight
}
