package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/DreamCats/doubles/internal/config"
)

// ErrVectorWidth is returned when a provider answers with vectors of a
// different width than configured.
var ErrVectorWidth = errors.New("provider returned unexpected vector width")

func checkWidth(vectors [][]float32, want int) error {
	if want <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != want {
			return fmt.Errorf("%w: item %d has %d values, configured %d", ErrVectorWidth, i, len(v), want)
		}
	}
	return nil
}

// OpenAIClient embeds batches through an OpenAI compatible /embeddings
// endpoint. One request carries the whole batch.
type OpenAIClient struct {
	endpoint   string
	model      string
	dimensions int
	http       *transport
}

type openAIRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// NewOpenAIClient needs an API key; endpoint and model have defaults.
func NewOpenAIClient(cfg *config.EmbeddingConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api_key is required (set api_key or %s)", envOr(cfg.APIKeyEnv, "OPENAI_API_KEY"))
	}
	return &OpenAIClient{
		endpoint:   orDefault(cfg.Endpoint, "https://api.openai.com/v1/embeddings"),
		model:      orDefault(cfg.Model, "text-embedding-3-small"),
		dimensions: cfg.Dimensions,
		http:       newTransport(cfg),
	}, nil
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch returns vectors in input order whatever order the response
// lists them in.
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp openAIResponse
	req := openAIRequest{Input: texts, Model: c.model, Dimensions: c.dimensions}
	if err := c.http.postJSON(ctx, c.endpoint, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("asked for %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		switch {
		case d.Index < 0 || d.Index >= len(texts):
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		case out[d.Index] != nil:
			return nil, fmt.Errorf("embedding index %d repeated", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	if err := checkWidth(out, c.dimensions); err != nil {
		return nil, err
	}
	return out, nil
}

// Dimensions is zero when the model default is used.
func (c *OpenAIClient) Dimensions() int {
	return c.dimensions
}

// arkConcurrency bounds in-flight requests to the multimodal endpoint,
// which accepts one text per request. The rate limiter still applies.
const arkConcurrency = 4

// VolcEngineClient embeds through the VolcEngine Ark multimodal endpoint.
type VolcEngineClient struct {
	endpoint   string
	model      string
	dimensions int
	http       *transport
}

type arkRequest struct {
	Input          []arkInput `json:"input"`
	Model          string     `json:"model"`
	EncodingFormat string     `json:"encoding_format,omitempty"`
	Dimensions     int        `json:"dimensions,omitempty"`
}

type arkInput struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type arkResponse struct {
	Data json.RawMessage `json:"data"`
}

type arkVector struct {
	Embedding []float32 `json:"embedding"`
}

func NewVolcEngineClient(cfg *config.EmbeddingConfig) (*VolcEngineClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("volcengine api_key is required (set api_key or %s)", envOr(cfg.APIKeyEnv, "ARK_API_KEY"))
	}
	return &VolcEngineClient{
		endpoint:   orDefault(cfg.Endpoint, "https://ark.cn-beijing.volces.com/api/v3/embeddings/multimodal"),
		model:      orDefault(cfg.Model, "doubao-embedding-vision-250615"),
		dimensions: cfg.Dimensions,
		http:       newTransport(cfg),
	}, nil
}

func (c *VolcEngineClient) Embed(ctx context.Context, text string) ([]float32, error) {
	req := arkRequest{
		Input:          []arkInput{{Type: "text", Text: text}},
		Model:          c.model,
		EncodingFormat: "float",
		Dimensions:     c.dimensions,
	}
	var resp arkResponse
	if err := c.http.postJSON(ctx, c.endpoint, req, &resp); err != nil {
		return nil, err
	}
	vectors, err := decodeArkData(resp.Data)
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("asked for 1 embedding, got %d", len(vectors))
	}
	v := vectors[0].Embedding
	if err := checkWidth([][]float32{v}, c.dimensions); err != nil {
		return nil, err
	}
	return v, nil
}

// EmbedBatch sends one request per text, a few at a time, and keeps input
// order. The first failure cancels the rest.
func (c *VolcEngineClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(arkConcurrency)
	for i, text := range texts {
		g.Go(func() error {
			v, err := c.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("text %d: %w", i, err)
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *VolcEngineClient) Dimensions() int {
	return c.dimensions
}

// decodeArkData accepts both the array and the single object shape of the
// data field.
func decodeArkData(raw json.RawMessage) ([]arkVector, error) {
	trimmed := bytes.TrimLeft(raw, " \n\r\t")
	if len(trimmed) == 0 {
		return nil, errors.New("empty embedding data")
	}
	switch trimmed[0] {
	case '[':
		var vs []arkVector
		if err := json.Unmarshal(trimmed, &vs); err != nil {
			return nil, fmt.Errorf("decode embedding array: %w", err)
		}
		return vs, nil
	case '{':
		var v arkVector
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return nil, fmt.Errorf("decode embedding object: %w", err)
		}
		return []arkVector{v}, nil
	default:
		return nil, fmt.Errorf("unexpected embedding data %.20q", trimmed)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func envOr(name, def string) string {
	if name == "" {
		return def
	}
	return name
}
