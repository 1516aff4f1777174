package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"dobkap/internal/calendar"
	"dobkap/internal/core"
	"dobkap/internal/jobs"
	"dobkap/internal/log"
)

// Store is the persistence the API reads and edits.
type Store interface {
	GetMailbox(ctx context.Context) (core.Mailbox, error)
	SaveMailbox(ctx context.Context, m core.Mailbox) (core.Mailbox, error)

	ListImporters(ctx context.Context) ([]core.Importer, error)
	GetImporter(ctx context.Context, id int64) (core.Importer, error)
	CreateImporter(ctx context.Context, im core.Importer) (core.Importer, error)
	UpdateImporter(ctx context.Context, im core.Importer) error
	DeleteImporter(ctx context.Context, id int64) error

	GetProfile(ctx context.Context) (core.TaxpayerProfile, error)
	SaveProfile(ctx context.Context, p core.TaxpayerProfile) error

	ListReports(ctx context.Context) ([]core.Report, error)
	CreateManualReport(ctx context.Context, content []byte) (core.Report, error)
	DeleteReport(ctx context.Context, id int64) error

	ListFilings(ctx context.Context) ([]core.Filing, error)
	GetFiling(ctx context.Context, id int64) (core.Filing, error)
	UpdateFiling(ctx context.Context, id int64, status core.FilingStatus, paymentReference string) (core.Filing, error)
	DeleteFiling(ctx context.Context, id int64) error
	GetFilingContent(ctx context.Context, id int64) ([]byte, error)

	GetHolidayConf(ctx context.Context) (calendar.HolidayConf, error)
	SetHolidayConf(ctx context.Context, conf calendar.HolidayConf) error

	Ping(ctx context.Context) error
}

// Syncer starts sync jobs.
type Syncer interface {
	StartSync(ctx context.Context) (*jobs.Job, bool)
}

// JobRegistry looks up and cancels jobs by id.
type JobRegistry interface {
	Get(id string) (jobs.Snapshot, bool)
	Cancel(id string) bool
}

type Server struct {
	http.Server
	store       Store
	sync        Syncer
	jobs        JobRegistry
	logger      *log.Logger
	rateLimiter *rateLimiter

	shutdownOnce sync.Once
}

// Deps groups the collaborators of the API.
type Deps struct {
	Store  Store
	Sync   Syncer
	Jobs   JobRegistry
	Logger *log.Logger

	// RequestsPerMinute bounds mutating requests per client. Zero selects
	// the default.
	RequestsPerMinute int
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 16,
		},
		store:       deps.Store,
		sync:        deps.Sync,
		jobs:        deps.Jobs,
		logger:      logger,
		rateLimiter: newRateLimiter(deps.RequestsPerMinute),
	}
	s.Handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(log.Middleware(s.logger))
	r.Use(securityHeaders)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(s.rateLimiter.middleware)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.handleStartJob)
			r.Get("/{id}", s.handleGetJob)
			r.Post("/{id}/cancel", s.handleCancelJob)
		})

		r.Get("/mailbox", s.handleGetMailbox)
		r.Put("/mailbox", s.handlePutMailbox)

		r.Route("/importers", func(r chi.Router) {
			r.Get("/", s.handleListImporters)
			r.Post("/", s.handleCreateImporter)
			r.Put("/{id}", s.handleUpdateImporter)
			r.Delete("/{id}", s.handleDeleteImporter)
		})

		r.Get("/profile", s.handleGetProfile)
		r.Put("/profile", s.handlePutProfile)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/", s.handleListReports)
			r.Post("/manual", s.handleCreateManualReport)
			r.Delete("/{id}", s.handleDeleteReport)
		})

		r.Route("/filings", func(r chi.Router) {
			r.Get("/", s.handleListFilings)
			r.Patch("/{id}", s.handleUpdateFiling)
			r.Delete("/{id}", s.handleDeleteFiling)
			r.Get("/{id}/form", s.handleGetFilingForm)
		})

		r.Get("/holidays", s.handleGetHolidays)
		r.Put("/holidays", s.handlePutHolidays)
	})
	return r
}

// Shutdown gracefully shuts down the server and the rate limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		log.FromContext(r.Context()).Warn("Readiness check failed", log.FieldError, err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
