package pgvector

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/internal/storage/models"
	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
)

// Store keeps official documents in Postgres with a pgvector embedding column.
type Store struct {
	db        *sqlx.DB
	vectorDim int
}

func NewStore(ctx context.Context, dsn string, vectorDim int) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	logger.Info("Postgres vector store initialized", zap.Int("dim", vectorDim))
	return &Store{db: db, vectorDim: vectorDim}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			file_name TEXT NOT NULL DEFAULT '',
			storage_path TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			language TEXT NOT NULL,
			keywords TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.vectorDim),
		`CREATE INDEX IF NOT EXISTS idx_documents_language ON documents (language)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_embedding ON documents USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize pgvector schema: %w", err)
		}
	}
	return nil
}

func (s *Store) InsertDocument(ctx context.Context, doc *models.Document) error {
	if len(doc.Embedding) != s.vectorDim {
		return fmt.Errorf("embedding has %d dimensions, want %d", len(doc.Embedding), s.vectorDim)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	const query = `
		INSERT INTO documents (id, title, file_name, storage_path, content, language, keywords, summary, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			language = EXCLUDED.language,
			keywords = EXCLUDED.keywords,
			summary = EXCLUDED.summary,
			embedding = EXCLUDED.embedding
	`
	_, err := s.db.ExecContext(ctx, query,
		doc.ID,
		doc.Title,
		doc.FileName,
		doc.StoragePath,
		doc.Content,
		doc.Language,
		doc.Keywords,
		doc.Summary,
		pgvector.NewVector(doc.Embedding),
		doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// MatchDocuments mirrors the match_documents SQL function: cosine similarity
// at or above threshold, restricted to language when set, best first.
func (s *Store) MatchDocuments(ctx context.Context, embedding []float32, threshold float64, count int, language string) ([]models.RetrievedDocument, error) {
	const query = `
		SELECT id, title, file_name, storage_path, content, language, keywords, summary, created_at,
			1 - (embedding <=> $1) AS similarity
		FROM documents
		WHERE ($2 = '' OR language = $2)
			AND 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1
		LIMIT $4
	`

	docs := make([]models.RetrievedDocument, 0, count)
	err := s.db.SelectContext(ctx, &docs, query, pgvector.NewVector(embedding), language, threshold, count)
	if err != nil {
		return nil, fmt.Errorf("failed to match documents: %w", err)
	}

	logger.Debug("pgvector match completed",
		zap.String("language", language),
		zap.Int("results", len(docs)),
	)
	return docs, nil
}
