package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"docqa/features/asset"
	"docqa/features/index"
	"docqa/features/job"
	"docqa/features/mcp"
	"docqa/features/query"
	"docqa/features/stats"
	"docqa/internal/blob"
	"docqa/internal/config"
	"docqa/internal/ingest"
	"docqa/internal/middleware"
	"docqa/internal/provider"
	"docqa/internal/rag"
	"docqa/internal/retrieval"
	"docqa/internal/settings"
	"docqa/internal/worker"
)

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// disabledPublisher stands in when no NSQ producer is configured.
type disabledPublisher struct{}

func (disabledPublisher) Publish(topic string, body []byte) error {
	return fmt.Errorf("%w: asynchronous processing is disabled", rag.ErrConfiguration)
}

type App struct {
	Handler       http.Handler
	AssetService  *asset.Service
	IngestService *ingest.Service
	AssetConsumer *worker.AssetConsumer
	port          int
}

func New(
	ctx context.Context,
	cfg *config.Config,
	db *sql.DB,
	vectorIndex provider.VectorIndex,
	blobs blob.Store,
	pub EventPublisher,
) (*App, error) {
	if pub == nil {
		pub = disabledPublisher{}
	}

	// Feature: Settings
	settingsRepo := settings.NewPostgresRepo(db)
	settingsService := settings.NewService(settingsRepo)
	SeedSettings(ctx, settingsService, cfg)
	settingsHandler := settings.NewHandler(settingsService)

	// Adapters: providers
	limiter := provider.NewLimiter(cfg.ProviderRPS, max(1, int(cfg.ProviderRPS)))
	embedders, err := NewEmbedders(cfg, settingsService, limiter)
	if err != nil {
		return nil, err
	}
	generator, err := NewGenerator(cfg, settingsService, limiter)
	if err != nil {
		return nil, err
	}

	// Ingestion
	ingestService, err := ingest.NewService(embedders.Documents, vectorIndex, ingest.Options{
		Chunking:    ingest.Chunking{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
		Concurrency: cfg.IngestionConcurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid chunking configuration: %w", err)
	}

	// Feature: Asset
	assetRepo := asset.NewPostgresRepo(db)
	assetService := asset.NewService(assetRepo, blobs, ingestService, pub, cfg.AllowedExtensions)
	assetHandler := asset.NewHandler(assetService, cfg.MaxUploadSizeMB)

	// Feature: Index
	indexHandler := index.NewHandler(assetService, ingestService)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(jobRepo, pub)
	jobHandler := job.NewHandler(jobService)

	// Feature: Stats
	statsHandler := stats.NewHandler(assetRepo, jobRepo, ingestService)

	// Feature: Retrieval, Query & MCP
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	retrievalService := retrieval.NewService(embedders.Queries, vectorIndex, generator, settingsService, retrieval.Defaults{
		TopK:             cfg.SearchTopK,
		ScoreThreshold:   cfg.SearchScoreThreshold,
		MaxContextTokens: cfg.MaxContextTokens,
		MaxOutputTokens:  cfg.MaxOutputTokens,
	}, queryLogger)
	queryHandler := query.NewHandler(retrievalService)
	mcpHandler := mcp.NewHandler(retrievalService, assetService)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}
	route := func(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, middleware.CorrelationID(enableCORS(h)))
	}

	// Routes
	mux := http.NewServeMux()

	route(mux, "POST /projects/{project_id}/assets", assetHandler.Upload)
	route(mux, "GET /projects/{project_id}/assets", assetHandler.List)
	route(mux, "GET /projects/{project_id}/assets/{asset_id}", assetHandler.Get)
	route(mux, "DELETE /projects/{project_id}/assets/{asset_id}", assetHandler.Delete)
	route(mux, "POST /projects/{project_id}/assets/{asset_id}/process", assetHandler.Process)
	route(mux, "POST /projects/{project_id}/process", assetHandler.ProcessAll)

	route(mux, "POST /projects/{project_id}/index/push", indexHandler.Push)
	route(mux, "GET /projects/{project_id}/index/info", indexHandler.Info)
	route(mux, "DELETE /projects/{project_id}/index", indexHandler.Delete)

	route(mux, "POST /projects/{project_id}/search", queryHandler.Search)
	route(mux, "POST /projects/{project_id}/answer", queryHandler.Answer)

	route(mux, "GET /projects/{project_id}/stats", statsHandler.GetProjectStats)
	route(mux, "GET /stats", statsHandler.GetStats)

	route(mux, "GET /settings", settingsHandler.GetSettings)
	route(mux, "PUT /settings", settingsHandler.UpdateSettings)

	route(mux, "GET /jobs/failed", jobHandler.List)
	route(mux, "POST /jobs/{id}/retry", jobHandler.Retry)

	mux.Handle("/mcp", middleware.CorrelationID(mcpHandler))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Worker (Asset Consumer)
	assetConsumer := worker.NewAssetConsumer(assetService, jobService, worker.DefaultMaxAttempts)

	return &App{
		Handler:       mux,
		AssetService:  assetService,
		IngestService: ingestService,
		AssetConsumer: assetConsumer,
		port:          cfg.ServerPort,
	}, nil
}

// SeedSettings copies configured values into the settings row where the row
// has none yet.
func SeedSettings(ctx context.Context, svc *settings.Service, cfg *config.Config) {
	set, err := svc.Get(ctx)
	if err != nil {
		slog.Warn("failed to fetch settings for seeding", "error", err)
		return
	}

	changed := false
	if set.GeminiAPIKey == "" && cfg.GeminiAPIKey != "" {
		set.GeminiAPIKey = cfg.GeminiAPIKey
		changed = true
	}
	if set.SearchTopK < 1 {
		set.SearchTopK = cfg.SearchTopK
		changed = true
	}
	if set.MaxContextTokens < 1 {
		set.MaxContextTokens = cfg.MaxContextTokens
		changed = true
	}
	if !changed {
		return
	}
	if err := svc.Update(ctx, set); err != nil {
		slog.Warn("failed to seed settings", "error", err)
		return
	}
	slog.Info("seeded settings from environment")
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
