package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"clipdex/internal/config"
	"clipdex/internal/drive"
	"clipdex/internal/embed"
	"clipdex/internal/http"
	"clipdex/internal/index"
	"clipdex/internal/report"
	"clipdex/internal/scan"
	"clipdex/internal/storage"
	"clipdex/internal/vectorstore"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	// One writer at a time: the catalog and index are single-owner state, so
	// a second instance pointed at the same DB must refuse to start.
	lock := flock.New(cfg.DBPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatalf("Failed to acquire instance lock: %v", err)
	}
	if !locked {
		log.Fatalf("Another instance is already running against %s", cfg.DBPath)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	videoRepo := storage.NewVideoRepo(db)
	chunkRepo := storage.NewChunkRepo(db)
	stateRepo := storage.NewIndexStateRepo(db)
	metaRepo := storage.NewIndexMetaRepo(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Pick the drive backend
	var driveStore drive.Store
	switch cfg.DriveBackend {
	case "minio":
		driveStore, err = drive.NewMinioStore(ctx, drive.MinioConfig{
			Endpoint:  cfg.DriveEndpoint,
			AccessKey: cfg.DriveAccessKey,
			SecretKey: cfg.DriveSecretKey,
			Bucket:    cfg.DriveBucket,
			UseSSL:    cfg.DriveUseSSL,
		})
		if err != nil {
			log.Fatalf("Failed to connect to drive: %v", err)
		}
	case "local":
		driveStore, err = drive.NewLocalStore(cfg.DriveLocalPath)
		if err != nil {
			log.Fatalf("Failed to open local drive: %v", err)
		}
	}
	slog.Info("Drive backend ready", "backend", cfg.DriveBackend, "root", cfg.DriveRoot)

	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
	if err != nil {
		log.Fatalf("Failed to create Qdrant client: %v", err)
	}

	// Validate embedding client vector size (fail-fast)
	embedder := embed.NewClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.QdrantVectorSize)
	testEmbeddings, err := embedder.EmbedTexts(ctx, []string{"test"})
	if err != nil {
		log.Fatalf("Failed to validate embedding client: %v", err)
	}
	if len(testEmbeddings) == 0 || len(testEmbeddings[0]) != cfg.QdrantVectorSize {
		log.Fatalf("Embedding vector size mismatch: expected %d, got %d", cfg.QdrantVectorSize, len(testEmbeddings[0]))
	}
	slog.Info("Embedding client validated", "vector_size", cfg.QdrantVectorSize)

	scanner := scan.New(driveStore, videoRepo, scan.Options{
		Root:           cfg.DriveRoot,
		AutoMetaMode:   cfg.AutoMetaMode,
		StabilityDelay: cfg.StabilityDelay,
	})

	indexService := index.NewService(db, videoRepo, chunkRepo, stateRepo, metaRepo, driveStore, embedder, vectorStore, index.Config{
		BaseCollection:      cfg.QdrantCollection,
		VectorSize:          cfg.QdrantVectorSize,
		EmbeddingModel:      cfg.EmbeddingModelName,
		SimThreshold:        cfg.SimThreshold,
		CandidateMultiplier: cfg.CandidateMultiplier,
	})
	if err := indexService.EnsureReady(ctx); err != nil {
		log.Fatalf("Failed to prepare search index: %v", err)
	}
	slog.Info("Search index ready", "collection", indexService.LiveCollection())

	recorder := report.NewRecorder()

	scanTrigger := make(chan struct{}, 1)
	indexTrigger := make(chan bool, 1)
	go runLoop(ctx, scanner, indexService, recorder, cfg.ScanInterval, scanTrigger, indexTrigger)

	deps := &http.Deps{
		Index:      indexService,
		Videos:     videoRepo,
		Report:     recorder,
		Vectors:    vectorStore,
		DB:         db,
		Collection: indexService.LiveCollection,
		TriggerScan: func() {
			select {
			case scanTrigger <- struct{}{}:
			default:
			}
		},
		TriggerIndex: func(force bool) {
			select {
			case indexTrigger <- force:
			default:
			}
		},
	}
	router := http.NewRouter(deps)

	addr := ":" + cfg.APIPort
	server := &nethttp.Server{Addr: addr, Handler: router}
	go func() {
		slog.Info("Starting API server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
}

// runLoop drives the periodic scan-then-index cycle and serves out-of-cycle
// triggers from the API. Runs are single-flight; a trigger arriving while a
// run is in progress waits for the next loop iteration.
func runLoop(
	ctx context.Context,
	scanner *scan.Scanner,
	indexService *index.Service,
	recorder *report.Recorder,
	interval time.Duration,
	scanTrigger <-chan struct{},
	indexTrigger <-chan bool,
) {
	// First cycle right away so a fresh deployment serves data without
	// waiting a full interval.
	runCycle(ctx, scanner, indexService, recorder, false)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCycle(ctx, scanner, indexService, recorder, false)
		case <-scanTrigger:
			runCycle(ctx, scanner, indexService, recorder, false)
		case force := <-indexTrigger:
			runIndex(ctx, indexService, recorder, force)
		}
	}
}

// runCycle runs one scan followed by one index update.
func runCycle(ctx context.Context, scanner *scan.Scanner, indexService *index.Service, recorder *report.Recorder, force bool) {
	summary, err := scanner.RunOnce(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "scan cycle failed", "error", err)
	}
	if summary != nil {
		recorder.RecordScan(summary)
	}
	runIndex(ctx, indexService, recorder, force)
}

func runIndex(ctx context.Context, indexService *index.Service, recorder *report.Recorder, force bool) {
	stats, err := indexService.BuildOrUpdate(ctx, force)
	if err != nil {
		slog.ErrorContext(ctx, "index update failed", "error", err)
	}
	if stats != nil {
		recorder.RecordIndex(stats)
	}
}
