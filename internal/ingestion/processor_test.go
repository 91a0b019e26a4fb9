package ingestion

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yachtops/pms-backend/internal/storage/models"
	"github.com/yachtops/pms-backend/internal/vector/milvus"
)

type fakeDocStore struct {
	rows []*models.SearchDocument
}

func (f *fakeDocStore) InsertSearchDocument(_ context.Context, doc *models.SearchDocument) error {
	f.rows = append(f.rows, doc)
	return nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) GenerateBatchEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

type fakeVectorStore struct {
	inserted []milvus.Chunk
	deleted  []string
}

func (f *fakeVectorStore) Insert(_ context.Context, chunks []milvus.Chunk) error {
	f.inserted = append(f.inserted, chunks...)
	return nil
}

func (f *fakeVectorStore) DeleteSourceChunks(_ context.Context, _, _, sourceID string) error {
	f.deleted = append(f.deleted, sourceID)
	return nil
}

func TestProcessDocumentDualWrites(t *testing.T) {
	store := &fakeDocStore{}
	vec := &fakeVectorStore{}
	p := NewProcessor(store, vec, fakeEmbedder{})

	docID, chunks, err := p.ProcessDocument(context.Background(), Document{
		YachtID: "y-1",
		Title:   "Sea Water Pump Manual",
		DocType: "manual",
		Content: "Impeller replacement procedure. Close the seacock before opening the pump housing.",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, chunks)
	require.Len(t, store.rows, 1)
	require.Len(t, vec.inserted, 1)

	row := store.rows[0]
	assert.Equal(t, "y-1", row.YachtID)
	assert.Equal(t, docID, row.DocID)
	assert.Equal(t, 0, row.ChunkIndex)

	chunk := vec.inserted[0]
	assert.Equal(t, "y-1", chunk.YachtID)
	assert.Equal(t, "search_index", chunk.SourceTable)
	assert.Equal(t, docID, chunk.SourceID)
	assert.Equal(t, row.ID, chunk.ID)

	// Previous chunks for this document were cleared first.
	assert.Equal(t, []string{docID}, vec.deleted)
}

func TestProcessDocumentStableIdentity(t *testing.T) {
	p := NewProcessor(&fakeDocStore{}, &fakeVectorStore{}, fakeEmbedder{})
	ctx := context.Background()

	first, _, err := p.ProcessDocument(ctx, Document{YachtID: "y-1", Title: "Genset Manual", Content: "text"})
	require.NoError(t, err)
	second, _, err := p.ProcessDocument(ctx, Document{YachtID: "y-1", Title: "GENSET MANUAL", Content: "revised text"})
	require.NoError(t, err)

	// Re-uploads replace; the identity ignores title casing.
	assert.Equal(t, first, second)

	other, _, err := p.ProcessDocument(ctx, Document{YachtID: "y-2", Title: "Genset Manual", Content: "text"})
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestProcessDocumentRequiresYacht(t *testing.T) {
	p := NewProcessor(&fakeDocStore{}, &fakeVectorStore{}, fakeEmbedder{})

	_, _, err := p.ProcessDocument(context.Background(), Document{Title: "Manual", Content: "text"})
	assert.Error(t, err)
}

func TestProcessDocumentRejectsEmptyContent(t *testing.T) {
	p := NewProcessor(&fakeDocStore{}, &fakeVectorStore{}, fakeEmbedder{})

	_, _, err := p.ProcessDocument(context.Background(), Document{YachtID: "y-1", Content: "   "})
	assert.Error(t, err)
}

func TestProcessDocumentStripsHTMLChrome(t *testing.T) {
	store := &fakeDocStore{}
	p := NewProcessor(store, &fakeVectorStore{}, fakeEmbedder{})

	html := `<html><head><title>Watermaker SOP</title><style>body{}</style></head>
		<body><nav>menu</nav><h1>Flushing</h1><p>Flush membranes weekly.</p>
		<script>alert(1)</script><footer>legal</footer></body></html>`

	docID, _, err := p.ProcessDocument(context.Background(), Document{
		YachtID: "y-1",
		Content: html,
		IsHTML:  true,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, docID)
	require.Len(t, store.rows, 1)

	content := store.rows[0].Content
	assert.Contains(t, content, "Flush membranes weekly.")
	assert.NotContains(t, content, "alert(1)")
	assert.NotContains(t, content, "menu")
	assert.NotContains(t, content, "legal")
	assert.Equal(t, "Watermaker SOP", store.rows[0].Title)
}

func TestChunkTextOverlaps(t *testing.T) {
	p := NewProcessor(&fakeDocStore{}, &fakeVectorStore{}, fakeEmbedder{})

	words := make([]string, 400)
	for i := range words {
		words[i] = "word"
	}
	chunks := p.chunkText(strings.Join(words, " "))

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), p.chunkSize)
	}
}

func TestChunkTextEmpty(t *testing.T) {
	p := NewProcessor(&fakeDocStore{}, &fakeVectorStore{}, fakeEmbedder{})
	assert.Nil(t, p.chunkText("   "))
}
