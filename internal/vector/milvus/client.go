package milvus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/yachtops/pms-backend/pkg/logger"
)

// Client wraps the Milvus collection holding PMS document chunk embeddings.
// Every chunk carries its yacht_id and every search filters on it; the
// vector store follows the same tenant rule as the SQL tables.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

// Chunk is one embedded slice of a manual or PMS record.
type Chunk struct {
	ID          string
	YachtID     string
	Embedding   []float32
	Text        string
	SourceTable string
	SourceID    string
	DocTitle    string
	Timestamp   time.Time
}

// Hit is one scored chunk from a vector search.
type Hit struct {
	ChunkID     string
	Text        string
	SourceTable string
	SourceID    string
	DocTitle    string
	Score       float32
}

func NewClient(endpoint, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(
		context.Background(),
		endpoint,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) CreateCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "PMS document chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "yacht_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
			{
				Name:     "text",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "4096",
				},
			},
			{
				Name:     "source_table",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "source_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "doc_title",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
			{
				Name:     "timestamp",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.L2, 1024)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	err = m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

func (m *Client) Insert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	for _, chunk := range chunks {
		if chunk.YachtID == "" {
			return fmt.Errorf("chunk %s has no yacht_id", chunk.ID)
		}
	}

	chunkIDs := make([]string, len(chunks))
	yachtIDs := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	texts := make([]string, len(chunks))
	sourceTables := make([]string, len(chunks))
	sourceIDs := make([]string, len(chunks))
	docTitles := make([]string, len(chunks))
	timestamps := make([]int64, len(chunks))

	for i, chunk := range chunks {
		chunkIDs[i] = chunk.ID
		yachtIDs[i] = chunk.YachtID
		embeddings[i] = chunk.Embedding
		texts[i] = chunk.Text
		sourceTables[i] = chunk.SourceTable
		sourceIDs[i] = chunk.SourceID
		docTitles[i] = chunk.DocTitle
		timestamps[i] = chunk.Timestamp.Unix()
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnVarChar("yacht_id", yachtIDs),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("source_table", sourceTables),
		entity.NewColumnVarChar("source_id", sourceIDs),
		entity.NewColumnVarChar("doc_title", docTitles),
		entity.NewColumnInt64("timestamp", timestamps),
	)

	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	err = m.client.Flush(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Chunks inserted into vector DB", zap.Int("count", len(chunks)))

	return nil
}

// Search runs an embedding search restricted to one yacht. The yacht_id
// expression is built here, not by the caller, so no code path can search
// unfiltered.
func (m *Client) Search(ctx context.Context, yachtID string, queryEmbedding []float32, topK int) ([]Hit, error) {
	if yachtID == "" {
		return nil, fmt.Errorf("vector search requires a yacht_id")
	}

	expr := fmt.Sprintf(`yacht_id == "%s"`, strings.ReplaceAll(yachtID, `"`, ""))

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		[]string{"chunk_id", "text", "source_table", "source_id", "doc_title"},
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.L2,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]Hit, 0)
	for _, sr := range searchResult {
		chunkIDCol := sr.Fields.GetColumn("chunk_id")
		textCol := sr.Fields.GetColumn("text")
		sourceTableCol := sr.Fields.GetColumn("source_table")
		sourceIDCol := sr.Fields.GetColumn("source_id")
		docTitleCol := sr.Fields.GetColumn("doc_title")

		for i := 0; i < sr.ResultCount; i++ {
			chunkID, _ := chunkIDCol.Get(i)
			text, _ := textCol.Get(i)
			sourceTable, _ := sourceTableCol.Get(i)
			sourceID, _ := sourceIDCol.Get(i)
			docTitle, _ := docTitleCol.Get(i)

			// L2 distance to a bounded similarity score.
			score := 1.0 / (1.0 + sr.Scores[i])

			results = append(results, Hit{
				ChunkID:     chunkID.(string),
				Text:        text.(string),
				SourceTable: sourceTable.(string),
				SourceID:    sourceID.(string),
				DocTitle:    docTitle.(string),
				Score:       score,
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.String("yacht_id", yachtID),
		zap.Int("topK", topK),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// DeleteSourceChunks removes every chunk for one source record, used when a
// document is re-ingested.
func (m *Client) DeleteSourceChunks(ctx context.Context, yachtID, sourceTable, sourceID string) error {
	expr := fmt.Sprintf(`yacht_id == "%s" && source_table == "%s" && source_id == "%s"`,
		strings.ReplaceAll(yachtID, `"`, ""),
		strings.ReplaceAll(sourceTable, `"`, ""),
		strings.ReplaceAll(sourceID, `"`, ""),
	)
	if err := m.client.Delete(ctx, m.collectionName, "", expr); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}
