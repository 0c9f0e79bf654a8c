package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"manga-translate-pipeline/internal/domain/ports/repository"
	security "manga-translate-pipeline/internal/domain/ports/security"
	"manga-translate-pipeline/internal/domain/ports/storage"
	"manga-translate-pipeline/internal/infra/importer"
	"manga-translate-pipeline/internal/usecase"
)

// Server exposes the control API: job and page CRUD, imports, run/rerun
// triggers, and operator settings.
type Server struct {
	jobs      repository.JobRepository
	pages     repository.PageRepository
	artifacts storage.ArtifactStore
	importer  *importer.Importer
	pipeline  *usecase.Pipeline
	settings  *usecase.SettingsStore
	vault     security.Vault
	log       *zerolog.Logger
}

func NewServer(
	jobs repository.JobRepository,
	pages repository.PageRepository,
	artifacts storage.ArtifactStore,
	imp *importer.Importer,
	pipeline *usecase.Pipeline,
	settings *usecase.SettingsStore,
	vault security.Vault,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		jobs:      jobs,
		pages:     pages,
		artifacts: artifacts,
		importer:  imp,
		pipeline:  pipeline,
		settings:  settings,
		vault:     vault,
		log:       logger,
	}
}

func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/jobs", func(r chi.Router) {
		r.Post("/", s.handleJobCreate)
		r.Get("/", s.handleJobList)
		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", s.handleJobGet)
			r.Patch("/", s.handleJobUpdate)
			r.Delete("/", s.handleJobDelete)
			r.Post("/import", s.handleJobImport)
			r.Post("/pages", s.handleJobAppendPages)
			r.Post("/cover", s.handleJobCover)
			r.Post("/run", s.handleJobRun)
			r.Get("/pages", s.handleJobPages)
		})
	})

	r.Route("/api/pages/{pageID}", func(r chi.Router) {
		r.Get("/", s.handlePageGet)
		r.Get("/layout", s.handlePageLayoutGet)
		r.Put("/layout", s.handlePageLayoutPut)
		r.Post("/rerun", s.handlePageRerun)
		r.Get("/image", s.handlePageImage)
	})

	r.Route("/api/settings", func(r chi.Router) {
		r.Get("/", s.handleSettingsGet)
		r.Put("/", s.handleSettingsPut)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
