package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Postgres  PostgresConfig
	Zilliz    ZillizConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Search    SearchConfig
	RAG       RAGConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	Development    bool
	// AdminToken guards the admin routes. Empty disables them.
	AdminToken string
}

type SQLiteConfig struct {
	Path string
}

type PostgresConfig struct {
	DSN string
}

type ZillizConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	Provider       string
	Model          string
	JudgeModel     string
	APIKey         string
	BaseURL        string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
	EmbeddingModel string
	EmbeddingDim   int
	// IngestRetryAttempts applies to document ingestion only. Request-path
	// calls are never retried.
	IngestRetryAttempts int
}

type SearchConfig struct {
	Enabled        bool
	TavilyAPIKey   string
	MaxResults     int
	TimeoutSec     int
	IncludeDomains []string
}

type RAGConfig struct {
	MatchThreshold       float64
	MatchCount           int
	ContextCharBudget    int
	MaxPromptTokens      int
	MinAnswerLength      int
	EmbeddingTimeoutSec  int
	RetrievalTimeoutSec  int
	GenerationTimeoutSec int
	RouterEnabled        bool
	TimeEntityLLM        bool
	VectorBackend        string
	EmbeddingCacheSize   int
}

type CacheConfig struct {
	Backend       string
	LRUSize       int
	LRUTTLMinutes int
	PruneDays     int
	PruneSchedule string
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func (c RAGConfig) EmbeddingTimeout() time.Duration {
	return time.Duration(c.EmbeddingTimeoutSec) * time.Second
}

func (c RAGConfig) RetrievalTimeout() time.Duration {
	return time.Duration(c.RetrievalTimeoutSec) * time.Second
}

func (c RAGConfig) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSec) * time.Second
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/eilam")

	v.SetEnvPrefix("EILAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.RAG.VectorBackend {
	case "sqlite", "pgvector", "milvus":
	default:
		return fmt.Errorf("unsupported rag.vectorBackend %q", c.RAG.VectorBackend)
	}
	switch c.Cache.Backend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("unsupported cache.backend %q", c.Cache.Backend)
	}
	if c.RAG.VectorBackend == "pgvector" && c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required for the pgvector backend")
	}
	if c.RAG.MatchThreshold <= 0 || c.RAG.MatchThreshold >= 1 {
		return fmt.Errorf("rag.matchThreshold must be in (0, 1), got %v", c.RAG.MatchThreshold)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 90)
	v.SetDefault("server.bodyLimit", 10485760)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.development", false)
	v.SetDefault("server.adminToken", "")

	v.SetDefault("sqlite.path", "./data/eilam.db")

	v.SetDefault("postgres.dsn", "")

	v.SetDefault("zilliz.endpoint", "localhost:19530")
	v.SetDefault("zilliz.collectionName", "civil_defense_docs")
	v.SetDefault("zilliz.vectorDim", 1536)
	v.SetDefault("zilliz.apiKey", "")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.judgeModel", "gpt-4o-mini")
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.baseURL", "")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.maxTokens", 1000)
	v.SetDefault("llm.timeoutSec", 30)
	v.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	v.SetDefault("llm.embeddingDim", 1536)
	v.SetDefault("llm.ingestRetryAttempts", 3)

	v.SetDefault("search.enabled", true)
	v.SetDefault("search.tavilyAPIKey", "")
	v.SetDefault("search.maxResults", 5)
	v.SetDefault("search.timeoutSec", 10)
	v.SetDefault("search.includeDomains", []string{
		"oref.org.il",
		"gov.il",
		"mda.org.il",
		"idf.il",
		"police.gov.il",
		"ynet.co.il",
		"timesofisrael.com",
	})

	v.SetDefault("rag.matchThreshold", 0.7)
	v.SetDefault("rag.matchCount", 3)
	v.SetDefault("rag.contextCharBudget", 2500)
	v.SetDefault("rag.maxPromptTokens", 3800)
	v.SetDefault("rag.minAnswerLength", 20)
	v.SetDefault("rag.embeddingTimeoutSec", 5)
	v.SetDefault("rag.retrievalTimeoutSec", 5)
	v.SetDefault("rag.generationTimeoutSec", 30)
	v.SetDefault("rag.routerEnabled", true)
	v.SetDefault("rag.timeEntityLLM", false)
	v.SetDefault("rag.vectorBackend", "sqlite")
	v.SetDefault("rag.embeddingCacheSize", 512)

	v.SetDefault("cache.backend", "sqlite")
	v.SetDefault("cache.lruSize", 256)
	v.SetDefault("cache.lruTTLMinutes", 10)
	v.SetDefault("cache.pruneDays", 30)
	v.SetDefault("cache.pruneSchedule", "0 3 * * *")

	v.SetDefault("ratelimit.requestsPerMinute", 30)
	v.SetDefault("ratelimit.burst", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
