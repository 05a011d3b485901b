package zilliz

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/internal/storage/models"
	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
)

var outputFields = []string{"doc_id", "title", "file_name", "storage_path", "content", "language", "keywords", "summary", "created_at"}

type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

func NewClient(ctx context.Context, endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address:       endpoint,
		APIKey:        apiKey,
		EnableTLSAuth: apiKey != "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Zilliz/Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (z *Client) Close() error {
	return z.client.Close()
}

func varchar(name string, maxLen int) *entity.Field {
	return &entity.Field{
		Name:       name,
		DataType:   entity.FieldTypeVarChar,
		TypeParams: map[string]string{"max_length": strconv.Itoa(maxLen)},
	}
}

func (z *Client) CreateCollection(ctx context.Context) error {
	has, err := z.client.HasCollection(ctx, z.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		logger.Info("Collection already exists", zap.String("collection", z.collectionName))
		return z.client.LoadCollection(ctx, z.collectionName, false)
	}

	pk := varchar("doc_id", 64)
	pk.PrimaryKey = true

	schema := &entity.Schema{
		CollectionName: z.collectionName,
		Description:    "Civil-defense document embeddings",
		Fields: []*entity.Field{
			pk,
			{
				Name:       "embedding",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(z.vectorDim)},
			},
			varchar("title", 512),
			varchar("file_name", 512),
			varchar("storage_path", 1024),
			varchar("content", 8192),
			varchar("language", 8),
			varchar("keywords", 1024),
			varchar("summary", 2048),
			{Name: "created_at", DataType: entity.FieldTypeInt64},
		},
	}

	if err := z.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, 16, 200)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := z.client.CreateIndex(ctx, z.collectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := z.client.LoadCollection(ctx, z.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", z.collectionName))
	return nil
}

func (z *Client) InsertDocument(ctx context.Context, doc *models.Document) error {
	return z.Insert(ctx, []*models.Document{doc})
}

func (z *Client) Insert(ctx context.Context, docs []*models.Document) error {
	if len(docs) == 0 {
		return nil
	}

	n := len(docs)
	ids := make([]string, n)
	embeddings := make([][]float32, n)
	titles := make([]string, n)
	fileNames := make([]string, n)
	paths := make([]string, n)
	contents := make([]string, n)
	languages := make([]string, n)
	keywords := make([]string, n)
	summaries := make([]string, n)
	created := make([]int64, n)

	for i, doc := range docs {
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = time.Now()
		}
		ids[i] = doc.ID
		embeddings[i] = doc.Embedding
		titles[i] = doc.Title
		fileNames[i] = doc.FileName
		paths[i] = doc.StoragePath
		contents[i] = doc.Content
		languages[i] = doc.Language
		keywords[i] = doc.Keywords
		summaries[i] = doc.Summary
		created[i] = doc.CreatedAt.Unix()
	}

	_, err := z.client.Insert(
		ctx,
		z.collectionName,
		"",
		entity.NewColumnVarChar("doc_id", ids),
		entity.NewColumnFloatVector("embedding", z.vectorDim, embeddings),
		entity.NewColumnVarChar("title", titles),
		entity.NewColumnVarChar("file_name", fileNames),
		entity.NewColumnVarChar("storage_path", paths),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnVarChar("language", languages),
		entity.NewColumnVarChar("keywords", keywords),
		entity.NewColumnVarChar("summary", summaries),
		entity.NewColumnInt64("created_at", created),
	)
	if err != nil {
		return fmt.Errorf("failed to insert documents: %w", err)
	}

	if err := z.client.Flush(ctx, z.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Documents inserted into vector DB", zap.Int("count", n))
	return nil
}

// LanguageExpr builds the boolean filter for a language restriction.
func LanguageExpr(language string) string {
	if language == "" {
		return ""
	}
	return fmt.Sprintf(`language == "%s"`, strings.ReplaceAll(language, `"`, ""))
}

// MatchDocuments runs a COSINE search and keeps hits at or above threshold.
// Milvus returns hits best first.
func (z *Client) MatchDocuments(ctx context.Context, embedding []float32, threshold float64, count int, language string) ([]models.RetrievedDocument, error) {
	sp, err := entity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	searchResult, err := z.client.Search(
		ctx,
		z.collectionName,
		[]string{},
		LanguageExpr(language),
		outputFields,
		[]entity.Vector{entity.FloatVector(embedding)},
		"embedding",
		entity.COSINE,
		count,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]models.RetrievedDocument, 0)
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			score := float64(sr.Scores[i])
			if score < threshold {
				continue
			}

			doc := models.Document{
				ID:          columnString(sr.Fields, "doc_id", i),
				Title:       columnString(sr.Fields, "title", i),
				FileName:    columnString(sr.Fields, "file_name", i),
				StoragePath: columnString(sr.Fields, "storage_path", i),
				Content:     columnString(sr.Fields, "content", i),
				Language:    columnString(sr.Fields, "language", i),
				Keywords:    columnString(sr.Fields, "keywords", i),
				Summary:     columnString(sr.Fields, "summary", i),
			}
			if col := sr.Fields.GetColumn("created_at"); col != nil {
				if v, err := col.GetAsInt64(i); err == nil {
					doc.CreatedAt = time.Unix(v, 0)
				}
			}
			results = append(results, models.RetrievedDocument{Document: doc, Similarity: score})
		}
	}

	logger.Info("Vector search completed",
		zap.Int("topK", count),
		zap.Int("results", len(results)),
		zap.String("language", language),
	)

	return results, nil
}

func columnString(fields client.ResultSet, name string, i int) string {
	col := fields.GetColumn(name)
	if col == nil {
		return ""
	}
	v, err := col.GetAsString(i)
	if err != nil {
		return ""
	}
	return v
}
