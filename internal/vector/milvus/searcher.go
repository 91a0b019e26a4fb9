package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/yachtops/pms-backend/internal/search"
	"github.com/yachtops/pms-backend/pkg/utils"
)

// Embedder turns query text into an embedding vector.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingCache avoids re-embedding repeated query text. Embeddings are
// tenant-neutral, only search responses are scoped per yacht.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

const embeddingTTL = 24 * time.Hour

// Searcher adapts the Milvus client to the search router's vector wave:
// embed the query, search within the yacht, map hits to result rows.
type Searcher struct {
	client   *Client
	embedder Embedder
	cache    EmbeddingCache
}

// NewSearcher builds the wave-3 backend. cache may be nil.
func NewSearcher(client *Client, embedder Embedder, cache EmbeddingCache) *Searcher {
	return &Searcher{client: client, embedder: embedder, cache: cache}
}

func (s *Searcher) Search(ctx context.Context, yachtID, query string, topK int) ([]search.Row, error) {
	embedding, err := s.queryEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := s.client.Search(ctx, yachtID, embedding, topK)
	if err != nil {
		return nil, err
	}

	rows := make([]search.Row, 0, len(hits))
	for _, hit := range hits {
		table := hit.SourceTable
		if table == "" {
			table = "search_index"
		}
		id := hit.SourceID
		if id == "" {
			id = hit.ChunkID
		}
		rows = append(rows, search.Row{
			Table:   table,
			ID:      id,
			Label:   hit.DocTitle,
			Snippet: hit.Text,
			Score:   float64(hit.Score),
		})
	}
	return rows, nil
}

func (s *Searcher) queryEmbedding(ctx context.Context, query string) ([]float32, error) {
	hash := utils.HashString(query)

	if s.cache != nil {
		if embedding, ok, err := s.cache.GetEmbedding(ctx, hash); err == nil && ok {
			return embedding, nil
		}
	}

	embedding, err := s.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.SetEmbedding(ctx, hash, embedding, embeddingTTL)
	}
	return embedding, nil
}
