// Package ingestion turns uploaded manuals and certificates into searchable
// rows and embeddings. Each document is cleaned, chunked, embedded, and
// written to both the tenant search_index table and the vector collection,
// always under the uploader's yacht.
package ingestion

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yachtops/pms-backend/internal/storage/models"
	"github.com/yachtops/pms-backend/internal/vector/milvus"
	"github.com/yachtops/pms-backend/pkg/logger"
	"github.com/yachtops/pms-backend/pkg/utils"
)

// DocumentStore is the tenant-side destination for chunk rows.
type DocumentStore interface {
	InsertSearchDocument(ctx context.Context, doc *models.SearchDocument) error
}

// Embedder produces embeddings for chunk batches.
type Embedder interface {
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore receives the embedded chunks.
type VectorStore interface {
	Insert(ctx context.Context, chunks []milvus.Chunk) error
	DeleteSourceChunks(ctx context.Context, yachtID, sourceTable, sourceID string) error
}

type Processor struct {
	store        DocumentStore
	vectorDB     VectorStore
	embedder     Embedder
	chunkSize    int
	chunkOverlap int
}

func NewProcessor(store DocumentStore, vectorDB VectorStore, embedder Embedder) *Processor {
	return &Processor{
		store:        store,
		vectorDB:     vectorDB,
		embedder:     embedder,
		chunkSize:    1000,
		chunkOverlap: 100,
	}
}

// Document is one upload: raw HTML or plain text plus its metadata.
type Document struct {
	YachtID string
	Title   string
	DocType string
	Content string
	IsHTML  bool
}

// ProcessDocument cleans, chunks, embeds, and stores one document. Re-runs
// for the same document replace its previous chunks.
func (p *Processor) ProcessDocument(ctx context.Context, doc Document) (string, int, error) {
	if doc.YachtID == "" {
		return "", 0, fmt.Errorf("document has no yacht_id")
	}

	text := doc.Content
	if doc.IsHTML {
		text = p.cleanHTML(doc.Content)
		if doc.Title == "" {
			doc.Title = p.extractTitle(doc.Content)
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", 0, fmt.Errorf("no content extracted from document")
	}
	if doc.Title == "" {
		doc.Title = "Untitled"
	}
	if doc.DocType == "" {
		doc.DocType = "manual"
	}

	docID := docIdentity(doc.YachtID, doc.Title, doc.DocType)
	logger.Info("Processing document",
		zap.String("yacht_id", doc.YachtID),
		zap.String("doc_id", docID),
		zap.String("title", doc.Title),
	)

	if err := p.vectorDB.DeleteSourceChunks(ctx, doc.YachtID, "search_index", docID); err != nil {
		logger.Warn("Failed to clear previous chunks", zap.Error(err))
	}

	chunks := p.chunkText(text)
	logger.Info("Document chunked", zap.Int("chunks", len(chunks)))

	embeddings, err := p.embedder.GenerateBatchEmbeddings(ctx, chunks)
	if err != nil {
		return "", 0, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return "", 0, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(chunks))
	}

	now := time.Now().UTC()
	vectorChunks := make([]milvus.Chunk, 0, len(chunks))
	for i, chunkText := range chunks {
		chunkID := uuid.NewString()

		row := &models.SearchDocument{
			ID:         chunkID,
			YachtID:    doc.YachtID,
			DocID:      docID,
			Title:      doc.Title,
			Content:    chunkText,
			DocType:    doc.DocType,
			ChunkIndex: i,
			CreatedAt:  now,
		}
		if err := p.store.InsertSearchDocument(ctx, row); err != nil {
			return "", 0, fmt.Errorf("failed to insert chunk row: %w", err)
		}

		vectorChunks = append(vectorChunks, milvus.Chunk{
			ID:          chunkID,
			YachtID:     doc.YachtID,
			Embedding:   embeddings[i],
			Text:        chunkText,
			SourceTable: "search_index",
			SourceID:    docID,
			DocTitle:    doc.Title,
			Timestamp:   now,
		})
	}

	if len(vectorChunks) > 0 {
		if err := p.vectorDB.Insert(ctx, vectorChunks); err != nil {
			return "", 0, fmt.Errorf("failed to insert into vector DB: %w", err)
		}
	}

	logger.Info("Document processed successfully",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(vectorChunks)),
	)

	return docID, len(vectorChunks), nil
}

func (p *Processor) cleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()

	text = regexp.MustCompile(`\s+`).ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	return text
}

func (p *Processor) extractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	title := doc.Find("title").First().Text()
	if title == "" {
		title = doc.Find("h1").First().Text()
	}

	return strings.TrimSpace(title)
}

func (p *Processor) chunkText(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var currentChunk strings.Builder
	currentSize := 0

	for _, word := range words {
		wordLen := len(word) + 1

		if currentSize+wordLen > p.chunkSize && currentChunk.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(currentChunk.String()))

			overlapWords := strings.Fields(currentChunk.String())
			overlapStart := len(overlapWords) - p.chunkOverlap/10
			if overlapStart < 0 {
				overlapStart = 0
			}
			currentChunk.Reset()
			currentChunk.WriteString(strings.Join(overlapWords[overlapStart:], " ") + " ")
			currentSize = currentChunk.Len()
		}

		currentChunk.WriteString(word + " ")
		currentSize += wordLen
	}

	if currentChunk.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(currentChunk.String()))
	}

	return chunks
}

// docIdentity derives a stable document ID so re-uploads of the same manual
// replace rather than duplicate.
func docIdentity(yachtID, title, docType string) string {
	return utils.HashString(yachtID + "|" + strings.ToLower(title) + "|" + docType)[:32]
}
