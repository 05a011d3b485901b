package ingestion

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/internal/language"
	"github.com/BarAvidan1996/eilam-sub000/internal/llm"
	"github.com/BarAvidan1996/eilam-sub000/internal/metrics"
	"github.com/BarAvidan1996/eilam-sub000/internal/storage/models"
	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
	"github.com/BarAvidan1996/eilam-sub000/pkg/utils"
)

var (
	ErrNoContent = errors.New("no content to ingest")
	ErrNoTitle   = errors.New("document title is required")
)

var whitespace = regexp.MustCompile(`\s+`)

// DocumentStore is the write side of a vector backend.
type DocumentStore interface {
	InsertDocument(ctx context.Context, doc *models.Document) error
}

type Request struct {
	Title       string   `json:"title"`
	FileName    string   `json:"fileName"`
	StoragePath string   `json:"storagePath"`
	Language    string   `json:"language"`
	Content     string   `json:"content"`
	Keywords    []string `json:"keywords"`
}

type Result struct {
	DocumentIDs []string `json:"documentIds"`
	Chunks      int      `json:"chunks"`
	Language    string   `json:"language"`
}

type Processor struct {
	store        DocumentStore
	embedder     llm.Embedder
	chunkSize    int
	chunkOverlap int
}

func NewProcessor(store DocumentStore, embedder llm.Embedder) *Processor {
	return &Processor{
		store:        store,
		embedder:     embedder,
		chunkSize:    1000,
		chunkOverlap: 100,
	}
}

// Ingest cleans, chunks, embeds and stores one source document. Chunk ids
// are derived from the storage path so re-ingesting a file replaces it.
func (p *Processor) Ingest(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, ErrNoTitle
	}

	text := req.Content
	if looksLikeHTML(text) {
		text = cleanHTML(text)
	} else {
		text = strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
	}
	if text == "" {
		return nil, ErrNoContent
	}

	lang := language.Code(req.Language)
	if lang == "" {
		lang = language.Detect(req.Title + " " + text)
	} else {
		lang = language.Parse(req.Language)
	}

	logger.Info("Ingesting document",
		zap.String("title", req.Title),
		zap.String("storage_path", req.StoragePath),
		zap.String("language", lang.String()),
	)

	chunks := p.chunkText(text)
	embeddings, err := p.embedder.GenerateBatchEmbeddings(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(chunks))
	}

	source := req.StoragePath
	if source == "" {
		source = req.FileName + "/" + req.Title
	}
	now := time.Now()
	result := &Result{Language: lang.String(), DocumentIDs: make([]string, 0, len(chunks))}

	for i, chunk := range chunks {
		doc := &models.Document{
			ID:          utils.HashKey(source, strconv.Itoa(i)),
			Title:       req.Title,
			FileName:    req.FileName,
			StoragePath: req.StoragePath,
			Content:     chunk,
			Language:    lang.String(),
			Keywords:    strings.Join(req.Keywords, ","),
			Summary:     summarize(chunk),
			Embedding:   embeddings[i],
			CreatedAt:   now,
		}
		if err := p.store.InsertDocument(ctx, doc); err != nil {
			return nil, fmt.Errorf("failed to store chunk %d: %w", i, err)
		}
		result.DocumentIDs = append(result.DocumentIDs, doc.ID)
	}

	result.Chunks = len(chunks)
	metrics.DocumentsProcessed.Add(float64(len(chunks)))
	logger.Info("Document ingested",
		zap.String("title", req.Title),
		zap.Int("chunks", len(chunks)),
	)
	return result, nil
}

func looksLikeHTML(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<body") ||
		strings.Contains(lower, "<p>") || strings.Contains(lower, "<div")
}

func cleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header, aside").Remove()

	text := doc.Find("body").Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// summarize keeps the first line of a chunk, at most 200 characters.
func summarize(chunk string) string {
	end := strings.IndexAny(chunk, ".!?")
	if end >= 0 {
		chunk = chunk[:end+1]
	}
	if utf8.RuneCountInString(chunk) > 200 {
		chunk = string([]rune(chunk)[:200])
	}
	return chunk
}

// chunkText splits on words into chunks of at most chunkSize characters,
// carrying about chunkOverlap characters of words into the next chunk.
func (p *Processor) chunkText(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	size := 0

	for _, word := range words {
		wordLen := utf8.RuneCountInString(word) + 1

		if size+wordLen > p.chunkSize && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))

			overlap := 0
			start := len(current)
			for start > 0 && overlap < p.chunkOverlap {
				start--
				overlap += utf8.RuneCountInString(current[start]) + 1
			}
			current = append([]string(nil), current[start:]...)
			size = overlap
		}

		current = append(current, word)
		size += wordLen
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}
