package models

import "time"

type SourceType string

const (
	SourceOfficial    SourceType = "official"
	SourceWeb         SourceType = "web"
	SourceAIGenerated SourceType = "ai_generated"
)

// Source is the provenance of an answer. Official sources are ordered by
// descending similarity.
type Source struct {
	Title       string     `json:"title"`
	FileName    string     `json:"file_name,omitempty"`
	StoragePath string     `json:"storage_path,omitempty"`
	URL         string     `json:"url,omitempty"`
	Similarity  float64    `json:"similarity"`
	SourceType  SourceType `json:"sourceType"`
}

// Document is one chunk of official civil-defense material.
type Document struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	FileName    string    `db:"file_name" json:"file_name"`
	StoragePath string    `db:"storage_path" json:"storage_path"`
	Content     string    `db:"content" json:"content"`
	Language    string    `db:"language" json:"language"`
	Keywords    string    `db:"keywords" json:"keywords"`
	Summary     string    `db:"summary" json:"summary"`
	Embedding   []float32 `db:"-" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// RetrievedDocument lives for one request only.
type RetrievedDocument struct {
	Document
	Similarity float64 `db:"similarity" json:"similarity"`
}

func (d RetrievedDocument) Source() Source {
	return Source{
		Title:       d.Title,
		FileName:    d.FileName,
		StoragePath: d.StoragePath,
		Similarity:  d.Similarity,
		SourceType:  SourceOfficial,
	}
}

type CachedAnswer struct {
	ID        int64     `json:"id"`
	Question  string    `json:"question"`
	Language  string    `json:"language"`
	Answer    string    `json:"answer"`
	Sources   []Source  `json:"sources"`
	CreatedAt time.Time `json:"created_at"`
}

type ChatSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

type ChatMessage struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Sources   []Source    `json:"sources,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

type QueryRecord struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	QueryText      string    `json:"query"`
	Language       string    `json:"language"`
	Response       string    `json:"response"`
	Terminal       string    `json:"terminal"`
	DocumentsFound int       `json:"documents_found"`
	UsedFallback   bool      `json:"used_fallback"`
	UsedWebSearch  bool      `json:"used_web_search"`
	UsedCache      bool      `json:"used_cache"`
	LatencyMS      int       `json:"latency_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

type QuerySource struct {
	ID         int64      `json:"id"`
	QueryID    string     `json:"query_id"`
	SourceType SourceType `json:"source_type"`
	Title      string     `json:"title"`
	SourceURL  string     `json:"source_url"`
	Similarity float64    `json:"similarity"`
}

type Feedback struct {
	ID        int64     `json:"id"`
	QueryID   string    `json:"query_id"`
	Helpful   bool      `json:"helpful"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}
