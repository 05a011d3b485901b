package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/BarAvidan1996/eilam-sub000/internal/storage/models"
	"github.com/BarAvidan1996/eilam-sub000/internal/vector"
)

func (c *Client) InsertDocument(ctx context.Context, doc *models.Document) error {
	embeddingJSON, err := json.Marshal(doc.Embedding)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO documents (id, title, file_name, storage_path, content, language,
			keywords, summary, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		doc.ID,
		doc.Title,
		doc.FileName,
		doc.StoragePath,
		doc.Content,
		doc.Language,
		doc.Keywords,
		doc.Summary,
		string(embeddingJSON),
		doc.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (c *Client) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// MatchDocuments scores every document in the language by cosine similarity
// and returns at most count of them at or above threshold, best first.
// An empty language matches all documents.
func (c *Client) MatchDocuments(ctx context.Context, embedding []float32, threshold float64, count int, language string) ([]models.RetrievedDocument, error) {
	query := `
		SELECT id, title, file_name, storage_path, content, language, keywords, summary, embedding, created_at
		FROM documents`
	args := []any{}
	if language != "" {
		query += ` WHERE language = ?`
		args = append(args, language)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	matches := make([]models.RetrievedDocument, 0)
	for rows.Next() {
		var doc models.Document
		var fileName, storagePath, keywords, summary *string
		var embeddingJSON string
		var createdAt int64

		err := rows.Scan(&doc.ID, &doc.Title, &fileName, &storagePath, &doc.Content, &doc.Language,
			&keywords, &summary, &embeddingJSON, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &doc.Embedding); err != nil {
			return nil, fmt.Errorf("failed to decode embedding for %s: %w", doc.ID, err)
		}

		score := vector.CosineSimilarity(embedding, doc.Embedding)
		if score < threshold {
			continue
		}

		doc.FileName = deref(fileName)
		doc.StoragePath = deref(storagePath)
		doc.Keywords = deref(keywords)
		doc.Summary = deref(summary)
		doc.CreatedAt = time.Unix(0, createdAt)
		matches = append(matches, models.RetrievedDocument{Document: doc, Similarity: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if count > 0 && len(matches) > count {
		matches = matches[:count]
	}

	return matches, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
