package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/terracehq/terrace/internal/api/handlers"
	mw "github.com/terracehq/terrace/internal/api/middleware"
	"github.com/terracehq/terrace/internal/config"
	"github.com/terracehq/terrace/internal/domain"
	"github.com/terracehq/terrace/internal/embedding"
	"github.com/terracehq/terrace/internal/engine"
	"github.com/terracehq/terrace/internal/interpret"
	"github.com/terracehq/terrace/internal/scout"
	"github.com/terracehq/terrace/internal/store"
	"go.uber.org/zap"
)

// App holds the router and background workers for lifecycle management.
type App struct {
	Router       *chi.Mux
	Consolidator *engine.Consolidator
	Decay        *engine.DecayWorker
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	// Stores
	itemStore := store.NewItemStore(db)
	statsStore := store.NewStatsStore(db)
	edgeStore := store.NewEdgeStore(db)
	coactStore := store.NewCoactivationStore(db)
	receiptStore := store.NewReceiptStore(db)
	linkStore := store.NewLinkStore(db)

	// External clients via provider factories
	embeddingClient, err := embedding.NewClient(config.EmbeddingProvider(), config.OpenAIAPIKey())
	if err != nil {
		logger.Warn("embedding client initialization failed",
			zap.String("provider", config.EmbeddingProvider()), zap.Error(err))
	} else {
		logger.Info("embedding client initialized", zap.String("provider", config.EmbeddingProvider()))
	}

	interpretClient, err := interpret.NewClient(config.InterpretProvider(), config.InterpretAPIKey())
	if err != nil {
		logger.Warn("interpretive client initialization failed",
			zap.String("provider", config.InterpretProvider()), zap.Error(err))
	} else {
		logger.Info("interpretive client initialized", zap.String("provider", config.InterpretProvider()))
	}

	// Scouts fan out independently; the explorer only runs on hot queries.
	scouts := []domain.Scout{
		scout.NewLexicalScout(db),
		scout.NewVectorScout(db, embeddingClient),
		scout.NewMetadataScout(db),
		scout.NewRecencyScout(db),
	}
	explorer := scout.NewExplorationScout(db, embeddingClient)

	// Engine
	sessions := engine.NewSessionTracker()
	conflictSvc := engine.NewConflictService(edgeStore, logger)
	retrievalSvc := engine.NewRetrievalService(
		scouts, explorer, linkStore,
		itemStore, statsStore, edgeStore, coactStore, receiptStore,
		interpretClient, conflictSvc, sessions, logger,
	)
	retrievalSvc.SetScoutTimeout(config.ScoutTimeout())
	retrievalSvc.SetThresholds(config.TemperatureLow(), config.TemperatureHigh())

	learningSvc := engine.NewLearningService(receiptStore, statsStore, edgeStore, itemStore, sessions, logger)
	conceptSvc := engine.NewConceptService(coactStore, itemStore, edgeStore, statsStore, logger)

	consolidator := engine.NewConsolidator(sessions, statsStore, edgeStore, itemStore, conceptSvc, logger)
	consolidator.SetInterval(config.ConsolidationInterval())

	decayWorker := engine.NewDecayWorker(statsStore, logger)
	decayWorker.SetInterval(config.DecayInterval())

	// Handlers
	retrieveHandler := handlers.NewRetrieveHandler(retrievalSvc)
	outcomeHandler := handlers.NewOutcomeHandler(learningSvc)
	edgeHandler := handlers.NewEdgeHandler(edgeStore, conflictSvc)
	nodeHandler := handlers.NewNodeHandler(statsStore, edgeStore)
	receiptHandler := handlers.NewReceiptHandler(receiptStore)
	consolidateHandler := handlers.NewConsolidateHandler(consolidator, conceptSvc)

	r := chi.NewRouter()

	app := &App{
		Router:       r,
		Consolidator: consolidator,
		Decay:        decayWorker,
		startTime:    time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health (no auth)
	r.Get("/health", healthHandler(db))

	// Metrics (no auth)
	r.Get("/metrics", app.metricsHandler())

	// Authenticated routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(config.APIKey()))

		r.Post("/retrieve", retrieveHandler.Retrieve)
		r.Post("/outcome", outcomeHandler.Report)
		r.Post("/consolidate", consolidateHandler.Consolidate)

		r.Route("/edges", func(r chi.Router) {
			r.Post("/", edgeHandler.Create)
			r.Post("/resolve", edgeHandler.Resolve)
		})

		r.Route("/nodes/{id}", func(r chi.Router) {
			r.Get("/stats", nodeHandler.GetStats)
			r.Get("/edges", nodeHandler.GetEdges)
		})

		r.Route("/receipts", func(r chi.Router) {
			r.Get("/", receiptHandler.List)
			r.Get("/{id}", receiptHandler.GetByID)
		})
	})

	return app
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.ItemStore          = (*store.ItemStore)(nil)
	_ domain.StatsStore         = (*store.StatsStore)(nil)
	_ domain.EdgeStore          = (*store.EdgeStore)(nil)
	_ domain.CoactivationStore  = (*store.CoactivationStore)(nil)
	_ domain.ReceiptStore       = (*store.ReceiptStore)(nil)
	_ domain.LinkClient         = (*store.LinkStore)(nil)
	_ domain.Scout              = (*scout.LexicalScout)(nil)
	_ domain.Scout              = (*scout.VectorScout)(nil)
	_ domain.Scout              = (*scout.MetadataScout)(nil)
	_ domain.Scout              = (*scout.RecencyScout)(nil)
	_ domain.EmbeddingClient    = (*embedding.OpenAIClient)(nil)
	_ domain.EmbeddingClient    = (*embedding.MockClient)(nil)
	_ domain.InterpretiveClient = (*interpret.OpenAIClient)(nil)
	_ domain.InterpretiveClient = (*interpret.AnthropicClient)(nil)
	_ domain.InterpretiveClient = (*interpret.MockClient)(nil)
)
