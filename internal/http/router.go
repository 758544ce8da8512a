package http

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"clipdex/internal/handlers"
	"clipdex/internal/report"
	"clipdex/internal/storage"
	"clipdex/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Index        handlers.IndexService
	Videos       storage.VideoStore
	Report       *report.Recorder
	Vectors      vectorstore.VectorStore
	DB           *sql.DB
	Collection   func() string    // live collection name, for health checks
	TriggerScan  func()           // request an out-of-cycle scan
	TriggerIndex func(force bool) // request an out-of-cycle index update
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(CORS)

	searchHandler := handlers.NewSearchHandler(deps.Index)
	videosHandler := handlers.NewVideosHandler(deps.Videos, deps.Index)
	opsHandler := handlers.NewOpsHandler(deps.TriggerScan, deps.TriggerIndex)
	reportHandler := handlers.NewReportHandler(deps.Report, deps.Videos, deps.Index)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Vectors, deps.Collection)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)

		r.Method(http.MethodGet, "/search", searchHandler)
		r.Method(http.MethodPost, "/search", searchHandler)

		r.Get("/videos", videosHandler.List)
		// Video IDs are folder paths and contain slashes, so item routes
		// hang off a wildcard and dispatch on the path suffix.
		r.Handle("/videos/*", videosHandler)

		r.Method(http.MethodPost, "/scan", http.HandlerFunc(opsHandler.Scan))
		r.Method(http.MethodPost, "/index", http.HandlerFunc(opsHandler.Index))

		r.Method(http.MethodGet, "/report", reportHandler)
	})

	return r
}
