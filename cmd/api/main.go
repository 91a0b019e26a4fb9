package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/yachtops/pms-backend/internal/actions"
	"github.com/yachtops/pms-backend/internal/api/handlers"
	"github.com/yachtops/pms-backend/internal/audit"
	"github.com/yachtops/pms-backend/internal/auth"
	rediscache "github.com/yachtops/pms-backend/internal/cache/redis"
	"github.com/yachtops/pms-backend/internal/extraction"
	"github.com/yachtops/pms-backend/internal/idempotency"
	"github.com/yachtops/pms-backend/internal/ingestion"
	"github.com/yachtops/pms-backend/internal/intent"
	"github.com/yachtops/pms-backend/internal/kg/neo4j"
	"github.com/yachtops/pms-backend/internal/llm"
	"github.com/yachtops/pms-backend/internal/metrics"
	"github.com/yachtops/pms-backend/internal/middleware/ratelimit"
	"github.com/yachtops/pms-backend/internal/middleware/security"
	"github.com/yachtops/pms-backend/internal/middleware/validation"
	"github.com/yachtops/pms-backend/internal/ownership"
	"github.com/yachtops/pms-backend/internal/pipeline"
	"github.com/yachtops/pms-backend/internal/search"
	"github.com/yachtops/pms-backend/internal/storage/postgres"
	"github.com/yachtops/pms-backend/internal/vector/milvus"
	"github.com/yachtops/pms-backend/pkg/config"
	appLogger "github.com/yachtops/pms-backend/pkg/logger"
)

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

	appLogger.Info("Starting PMS API Server")

	tenantStore, err := postgres.NewTenantStore(
		cfg.Tenant.DSN,
		cfg.Tenant.MaxOpenConns,
		cfg.Tenant.MaxIdleConns,
		cfg.Tenant.StatementTimeoutMS,
	)
	if err != nil {
		appLogger.Fatal("Failed to create tenant store", zap.Error(err))
	}
	defer tenantStore.Close()

	// The master database holds idempotency records and the audit log. If it
	// is unreachable at startup the server still comes up, with in-process
	// replay detection and no audit persistence.
	var idemStore idempotency.Store
	var auditSink audit.Sink
	masterStore, err := postgres.NewMasterStore(
		cfg.Master.DSN,
		cfg.Master.MaxOpenConns,
		cfg.Master.MaxIdleConns,
	)
	if err != nil {
		appLogger.Warn("Master database unavailable, using in-memory idempotency store", zap.Error(err))
		idemStore = idempotency.NewMemoryStore()
	} else {
		defer masterStore.Close()
		if err := masterStore.InitSchema(context.Background()); err != nil {
			appLogger.Fatal("Failed to initialize master schema", zap.Error(err))
		}
		idemStore = masterStore
		auditSink = masterStore
	}

	var cacheClient *rediscache.Client
	if c, err := rediscache.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB); err != nil {
		appLogger.Warn("Redis unavailable, caching disabled", zap.Error(err))
	} else {
		cacheClient = c
		defer cacheClient.Close()
	}

	var llmClient *llm.Client
	if cfg.LLM.APIKey == "" {
		appLogger.Warn("No LLM API key configured, AI extraction and vector search disabled")
	} else {
		llmClient = llm.NewClient(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.EmbeddingModel, cfg.LLM.MaxTokens)
	}

	var vectorSearcher search.VectorSearcher
	var milvusClient *milvus.Client
	if llmClient != nil {
		mc, err := milvus.NewClient(cfg.Milvus.Endpoint, cfg.Milvus.CollectionName, cfg.Milvus.VectorDim)
		if err != nil {
			appLogger.Warn("Milvus unavailable, vector wave disabled", zap.Error(err))
		} else {
			milvusClient = mc
			defer milvusClient.Close()
			if err := milvusClient.CreateCollection(context.Background()); err != nil {
				appLogger.Fatal("Failed to create vector collection", zap.Error(err))
			}
			var embCache milvus.EmbeddingCache
			if cacheClient != nil {
				embCache = cacheClient
			}
			vectorSearcher = milvus.NewSearcher(milvusClient, llmClient, embCache)
		}
	}

	var graph pipeline.GraphSuggester
	neo4jClient, err := neo4j.NewClient(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password)
	if err != nil {
		appLogger.Warn("Neo4j unavailable, related-equipment suggestions disabled", zap.Error(err))
	} else {
		defer neo4jClient.Close(context.Background())
		graph = neo4jClient
	}

	var tracer *search.Tracer
	if cfg.Trace.Enabled {
		tracer, err = search.NewTracer(cfg.Trace.Path, appLogger.GetLogger())
		if err != nil {
			appLogger.Fatal("Failed to open probe trace log", zap.Error(err))
		}
		defer tracer.Close()
	}

	router := search.NewRouter(tenantStore, vectorSearcher, tracer, search.Config{
		TrigramThreshold: cfg.Search.TrigramThreshold,
		MaxResults:       cfg.Search.MaxResults,
		WaveTimeout:      time.Duration(cfg.Search.WaveTimeoutSec) * time.Second,
		VectorTopK:       cfg.Search.VectorTopK,
	}, appLogger.GetLogger())

	var completer extraction.Completer
	if llmClient != nil {
		completer = llmClient
	}

	var responseCache pipeline.ResponseCache
	if cacheClient != nil {
		responseCache = cacheClient
	}

	orchestrator := pipeline.NewOrchestrator(pipeline.Config{
		Extractor: extraction.NewExtractor(appLogger.GetLogger()),
		AI:        extraction.NewAIExtractor(completer, cfg.LLM.TimeoutSec, appLogger.GetLogger()),
		Canon:     extraction.NewCanonicalizer(),
		Intents:   intent.NewDetector(),
		Router:    router,
		Catalog:   actions.NewCatalog(),
		Graph:     graph,
		Cache:     responseCache,
		CacheTTL:  time.Duration(cfg.Search.CacheTTLSec) * time.Second,
	}, appLogger.GetLogger())

	idemService := idempotency.NewService(idemStore, appLogger.GetLogger())
	ownershipValidator := ownership.NewValidator(tenantStore, appLogger.GetLogger())

	auditWriter := audit.NewWriter(auditSink, 50, 5*time.Second, appLogger.GetLogger())
	auditWriter.Start()
	defer auditWriter.Stop()

	var resolver auth.Resolver
	if cfg.Auth.ServiceURL != "" {
		resolver = auth.NewHTTPResolver(cfg.Auth.ServiceURL, cfg.Auth.TimeoutSec)
	} else if cfg.Auth.DevToken != "" {
		appLogger.Warn("Using static development auth token")
		resolver = &auth.StaticResolver{Tokens: map[string]auth.Identity{
			cfg.Auth.DevToken: {
				YachtID: cfg.Auth.DevYachtID,
				UserID:  cfg.Auth.DevUserID,
				Role:    auth.Role(cfg.Auth.DevRole),
			},
		}}
	} else {
		appLogger.Fatal("No auth service URL or development token configured")
	}

	metrics.Init()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Auth.ServiceURL == "",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Idempotency-Key",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	app.Get("/metrics", metrics.MetricsHandler())
	app.Get("/api/v1/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})
	app.Get("/api/v1/ready", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()
		if err := tenantStore.Ping(ctx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
			})
		}
		return c.JSON(fiber.Map{"status": "ready"})
	})

	rateLimiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 120,
		Logger:               appLogger.GetLogger(),
	})
	defer rateLimiter.Stop()

	searchHandler := handlers.NewSearchHandler(orchestrator)
	workOrderHandler := handlers.NewWorkOrderHandler(tenantStore, idemService, ownershipValidator, auditWriter)
	wsHandler := handlers.NewWebSocketHandler(orchestrator)

	var documentHandler *handlers.DocumentHandler
	if llmClient != nil && milvusClient != nil {
		processor := ingestion.NewProcessor(tenantStore, milvusClient, llmClient)
		var invalidator handlers.CacheInvalidator
		if cacheClient != nil {
			invalidator = cacheClient
		}
		documentHandler = handlers.NewDocumentHandler(processor, invalidator, auditWriter)
	}

	api := app.Group("/api/v1",
		auth.Middleware(resolver),
		rateLimiter.Middleware(),
		validation.Middleware(validation.Config{
			MaxDocumentSize: cfg.Server.BodyLimit,
			Logger:          appLogger.GetLogger(),
		}),
	)

	api.Post("/search", searchHandler.HandleSearch)
	api.Post("/work-orders", workOrderHandler.HandleCreate)
	if documentHandler != nil {
		api.Post("/documents", documentHandler.HandleIngest)
	}

	ws := app.Group("/ws", auth.Middleware(resolver))
	ws.Use(func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	ws.Get("/search", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
