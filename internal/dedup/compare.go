package dedup

import (
	"context"
	"fmt"

	"github.com/DreamCats/doubles/internal/embedding"
	"github.com/DreamCats/doubles/internal/similarity"
)

// PairScore is the outcome of comparing two texts.
type PairScore struct {
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
	Duplicate bool    `json:"duplicate"`
}

// Compare embeds a and b and scores them under the engine threshold.
func (e *Engine) Compare(ctx context.Context, a, b string) (PairScore, error) {
	vectors, err := embedding.EmbedAll(ctx, e.embedder, []string{a, b})
	if err != nil {
		return PairScore{}, fmt.Errorf("embed texts: %w", err)
	}
	score, err := similarity.Score(vectors[0], vectors[1])
	if err != nil {
		return PairScore{}, err
	}
	return PairScore{
		Score:     score,
		Threshold: e.threshold.Value(),
		Duplicate: e.threshold.Matches(score),
	}, nil
}
