package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/internal/api/handlers"
	"github.com/BarAvidan1996/eilam-sub000/internal/cache"
	"github.com/BarAvidan1996/eilam-sub000/internal/cache/redis"
	"github.com/BarAvidan1996/eilam-sub000/internal/evaluation"
	"github.com/BarAvidan1996/eilam-sub000/internal/ingestion"
	"github.com/BarAvidan1996/eilam-sub000/internal/job"
	"github.com/BarAvidan1996/eilam-sub000/internal/llm"
	"github.com/BarAvidan1996/eilam-sub000/internal/metrics"
	"github.com/BarAvidan1996/eilam-sub000/internal/middleware/ratelimit"
	"github.com/BarAvidan1996/eilam-sub000/internal/middleware/security"
	"github.com/BarAvidan1996/eilam-sub000/internal/middleware/validation"
	"github.com/BarAvidan1996/eilam-sub000/internal/rag"
	"github.com/BarAvidan1996/eilam-sub000/internal/retrieval"
	"github.com/BarAvidan1996/eilam-sub000/internal/router"
	"github.com/BarAvidan1996/eilam-sub000/internal/search/web"
	"github.com/BarAvidan1996/eilam-sub000/internal/session"
	"github.com/BarAvidan1996/eilam-sub000/internal/storage/sqlite"
	"github.com/BarAvidan1996/eilam-sub000/internal/timeentity"
	"github.com/BarAvidan1996/eilam-sub000/internal/vector/pgvector"
	"github.com/BarAvidan1996/eilam-sub000/internal/vector/zilliz"
	"github.com/BarAvidan1996/eilam-sub000/pkg/config"
	appLogger "github.com/BarAvidan1996/eilam-sub000/pkg/logger"
)

// documentStore is what every vector backend offers: ingestion writes and
// retrieval reads.
type documentStore interface {
	retrieval.DocumentStore
	ingestion.DocumentStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Eilam emergency assistant API")
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	readiness := map[string]handlers.Pinger{"sqlite": sqliteClient}

	var (
		answerStore cache.Store = sqliteClient
		remoteEmbed retrieval.RemoteEmbeddingCache
	)
	if cfg.Cache.Backend == "redis" {
		redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()

		answerStore = redisClient
		remoteEmbed = redisClient
		readiness["redis"] = redisClient
	}
	answerCache := cache.NewService(answerStore,
		cache.WithLRU(cfg.Cache.LRUSize, time.Duration(cfg.Cache.LRUTTLMinutes)*time.Minute),
	)

	var docs documentStore
	switch cfg.RAG.VectorBackend {
	case "pgvector":
		store, err := pgvector.NewStore(ctx, cfg.Postgres.DSN, cfg.LLM.EmbeddingDim)
		if err != nil {
			appLogger.Fatal("Failed to connect to Postgres", zap.Error(err))
		}
		defer store.Close()
		if err := store.InitSchema(ctx); err != nil {
			appLogger.Fatal("Failed to initialize pgvector schema", zap.Error(err))
		}
		docs = store
		readiness["postgres"] = store
	case "milvus":
		zillizClient, err := zilliz.NewClient(ctx,
			cfg.Zilliz.Endpoint,
			cfg.Zilliz.APIKey,
			cfg.Zilliz.CollectionName,
			cfg.Zilliz.VectorDim,
		)
		if err != nil {
			appLogger.Fatal("Failed to create Zilliz client", zap.Error(err))
		}
		defer zillizClient.Close()
		if err := zillizClient.CreateCollection(ctx); err != nil {
			appLogger.Fatal("Failed to create collection", zap.Error(err))
		}
		docs = zillizClient
	default:
		docs = sqliteClient
	}

	provider, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		appLogger.Fatal("Failed to create LLM provider", zap.Error(err))
	}

	embedder := retrieval.NewCachedEmbedder(provider, cfg.LLM.EmbeddingModel,
		cfg.RAG.EmbeddingCacheSize, 24*time.Hour, remoteEmbed)
	retriever := retrieval.NewRetriever(embedder, docs, retrieval.Config{
		Threshold:        cfg.RAG.MatchThreshold,
		Limit:            cfg.RAG.MatchCount,
		EmbeddingTimeout: cfg.RAG.EmbeddingTimeout(),
		SearchTimeout:    cfg.RAG.RetrievalTimeout(),
	})

	deps := rag.Deps{
		Cache:     answerCache,
		Retriever: retriever,
		Generator: provider,
		Judge:     evaluation.NewJudge(provider, cfg.LLM.JudgeModel),
		Recorder:  sqliteClient,
	}
	if cfg.Search.Enabled && cfg.Search.TavilyAPIKey != "" {
		deps.Web = web.NewClient(web.Config{
			APIKey:         cfg.Search.TavilyAPIKey,
			MaxResults:     cfg.Search.MaxResults,
			Timeout:        time.Duration(cfg.Search.TimeoutSec) * time.Second,
			IncludeDomains: cfg.Search.IncludeDomains,
		})
	} else {
		appLogger.Warn("Web search disabled; fallbacks go straight to general knowledge")
	}
	if cfg.RAG.TimeEntityLLM {
		deps.Time = timeentity.NewExtractor(provider)
	}
	if cfg.RAG.RouterEnabled {
		deps.Router = router.New(provider)
	}

	pipeline := rag.NewPipeline(deps, rag.ConfigFromSettings(cfg.RAG, cfg.LLM))
	sessions := session.NewService(sqliteClient, pipeline)

	ingestOpts := llm.OptionsFromConfig(cfg.LLM)
	ingestOpts.RetryAttempts = cfg.LLM.IngestRetryAttempts
	ingestProvider, err := llm.NewWithOptions(ctx, cfg.LLM.Provider, ingestOpts)
	if err != nil {
		appLogger.Fatal("Failed to create ingestion LLM provider", zap.Error(err))
	}
	processor := ingestion.NewProcessor(docs, ingestProvider)

	scheduler := job.NewScheduler()
	if err := scheduler.AddJob(job.CachePrune{Cache: answerCache, DaysOld: cfg.Cache.PruneDays}, cfg.Cache.PruneSchedule); err != nil {
		appLogger.Fatal("Failed to schedule cache pruning", zap.Error(err))
	}
	scheduler.Start(ctx)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	rateLimiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:                cfg.RateLimit.Burst,
		Logger:               appLogger.GetLogger(),
	})
	defer rateLimiter.Stop()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID, " + security.AdminTokenHeader,
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))

	queryHandler := handlers.NewQueryHandler(pipeline, sqliteClient)
	chatHandler := handlers.NewChatHandler(sessions)
	documentHandler := handlers.NewDocumentHandler(processor)
	adminHandler := handlers.NewAdminHandler(answerCache, cfg.Cache.PruneDays)
	healthHandler := handlers.NewHealthHandler(readiness)
	wsHandler := handlers.NewWebSocketHandler(pipeline, sessions, 0)

	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1")
	api.Get("/health", healthHandler.Health)
	api.Get("/ready", healthHandler.Ready)

	limited := api.Group("", rateLimiter.Middleware(), validation.Middleware(validation.Config{
		MaxDocumentSize: cfg.Server.BodyLimit,
		Logger:          appLogger.GetLogger(),
	}))
	limited.Post("/ask", queryHandler.Ask)
	limited.Post("/chat", chatHandler.Chat)
	limited.Post("/sessions", chatHandler.CreateSession)
	limited.Get("/sessions/:id/messages", chatHandler.ListMessages)
	limited.Get("/query/history", queryHandler.GetQueryHistory)
	limited.Post("/feedback", queryHandler.SubmitFeedback)
	limited.Post("/documents", documentHandler.UploadDocument)
	if cfg.Server.AdminToken == "" {
		appLogger.Warn("Admin token not set; admin routes are disabled")
	}
	limited.Post("/admin/cache/prune", security.AdminGuard(cfg.Server.AdminToken), adminHandler.PruneCache)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting",
		zap.String("address", addr),
		zap.String("vector_backend", cfg.RAG.VectorBackend),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("llm_provider", cfg.LLM.Provider),
	)

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()

	appLogger.Info("Server shutting down gracefully...")
	scheduler.Stop()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
