package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BarAvidan1996/eilam-sub000/internal/storage/models"
)

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if v, ok := args.Get(0).([]float32); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEmbedder) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if v, ok := args.Get(0).([][]float32); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

type memStore struct {
	docs map[string]*models.Document
}

func (m *memStore) InsertDocument(_ context.Context, doc *models.Document) error {
	if m.docs == nil {
		m.docs = map[string]*models.Document{}
	}
	m.docs[doc.ID] = doc
	return nil
}

func vectorsFor(n int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(i), 1}
	}
	return out
}

func TestIngest_HTMLHebrewAutoDetected(t *testing.T) {
	embedder := new(mockEmbedder)
	store := &memStore{}
	p := NewProcessor(store, embedder)

	html := `<html><head><style>p{}</style></head><body><nav>menu</nav>
		<p>בעת שמיעת אזעקה יש להיכנס למרחב המוגן.</p><script>alert(1)</script></body></html>`

	embedder.On("GenerateBatchEmbeddings", mock.Anything, []string{"בעת שמיעת אזעקה יש להיכנס למרחב המוגן."}).
		Return(vectorsFor(1), nil).Once()

	res, err := p.Ingest(context.Background(), Request{
		Title:       "הנחיות אזעקה",
		FileName:    "sirens.html",
		StoragePath: "official/sirens.html",
		Content:     html,
	})
	require.NoError(t, err)

	assert.Equal(t, "he", res.Language)
	assert.Equal(t, 1, res.Chunks)
	require.Len(t, store.docs, 1)
	doc := store.docs[res.DocumentIDs[0]]
	assert.Equal(t, "he", doc.Language)
	assert.NotContains(t, doc.Content, "menu")
	assert.NotContains(t, doc.Content, "alert")
	assert.Equal(t, []float32{0, 1}, doc.Embedding)
	embedder.AssertExpectations(t)
}

func TestIngest_ReingestReplacesChunks(t *testing.T) {
	embedder := new(mockEmbedder)
	embedder.On("GenerateBatchEmbeddings", mock.Anything, mock.Anything).Return(vectorsFor(1), nil)
	store := &memStore{}
	p := NewProcessor(store, embedder)

	req := Request{Title: "Kit", StoragePath: "official/kit.txt", Language: "en", Content: "Keep water and food."}
	first, err := p.Ingest(context.Background(), req)
	require.NoError(t, err)
	second, err := p.Ingest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.DocumentIDs, second.DocumentIDs)
	assert.Len(t, store.docs, 1)
}

func TestIngest_Errors(t *testing.T) {
	embedder := new(mockEmbedder)
	p := NewProcessor(&memStore{}, embedder)

	_, err := p.Ingest(context.Background(), Request{Content: "text"})
	assert.ErrorIs(t, err, ErrNoTitle)

	_, err = p.Ingest(context.Background(), Request{Title: "Empty", Content: "  \n "})
	assert.ErrorIs(t, err, ErrNoContent)

	embedder.On("GenerateBatchEmbeddings", mock.Anything, mock.Anything).Return(nil, errors.New("quota")).Once()
	_, err = p.Ingest(context.Background(), Request{Title: "T", Content: "Some text."})
	assert.ErrorContains(t, err, "failed to generate embeddings")

	embedder.On("GenerateBatchEmbeddings", mock.Anything, mock.Anything).Return(vectorsFor(3), nil).Once()
	_, err = p.Ingest(context.Background(), Request{Title: "T", Content: "Some text."})
	assert.ErrorContains(t, err, "embedding count mismatch")
}

func TestChunkText(t *testing.T) {
	p := NewProcessor(nil, nil)
	text := strings.Repeat("protected space ", 300)

	chunks := p.chunkText(text)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), p.chunkSize)
	}

	lastWords := strings.Fields(chunks[0])
	assert.True(t, strings.HasPrefix(chunks[1], lastWords[len(lastWords)-1]) ||
		strings.Contains(chunks[1], lastWords[len(lastWords)-1]))

	assert.Nil(t, p.chunkText("   "))
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "First sentence.", summarize("First sentence. Second one."))
	assert.Equal(t, 200, utf8.RuneCountInString(summarize(strings.Repeat("א", 500))))
}
