// Package server exposes the doodle gate, client storage, contract addresses
// and gallery views over HTTP.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/finverse/finverse/pkg/contracts"
	"github.com/finverse/finverse/pkg/gallery"
	"github.com/finverse/finverse/pkg/inference"
	"github.com/finverse/finverse/pkg/policy"
	"github.com/finverse/finverse/pkg/session"
	"github.com/finverse/finverse/pkg/storage"
)

// Deps are the components the server routes to. Gallery, Market and Claims
// are optional; their routes answer 501 when absent.
type Deps struct {
	Sessions  *session.Manager
	Loader    *inference.Loader
	Store     storage.ClientStore
	Addresses *contracts.AddressBook
	Policy    policy.Evaluator
	Metrics   *Metrics
	Logger    *slog.Logger

	Gallery  *gallery.Loader
	Market   gallery.MarketReader
	Claims   gallery.ClaimReader
	HotCount int
}

// Server is the HTTP API.
type Server struct {
	deps   Deps
	logger *slog.Logger
	router chi.Router
}

// New builds the router.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	if deps.HotCount <= 0 {
		deps.HotCount = gallery.DefaultHotCount
	}
	s := &Server{deps: deps, logger: deps.Logger}
	s.router = s.routes()
	return s
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "finverse")
}

// Metrics returns the Prometheus metrics.
func (s *Server) Metrics() *Metrics { return s.deps.Metrics }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(s.deps.Metrics.MetricsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleSessionState)
				r.Delete("/", s.handleDeleteSession)
				r.Put("/pen", s.handleSetPen)
				r.Post("/pointer", s.handlePointer)
				r.Post("/undo", s.handleEdit((*session.Session).Undo))
				r.Post("/clear", s.handleEdit((*session.Session).Clear))
				r.Post("/flip", s.handleEdit((*session.Session).Flip))
				r.Get("/canvas.png", s.handleCanvas)
			})
		})

		r.Get("/storage/{client}", s.handleStorageList)
		r.Get("/storage/{client}/{key}", s.handleStorageGet)
		r.Put("/storage/{client}/{key}", s.handleStoragePut)
		r.Delete("/storage/{client}/{key}", s.handleStorageDelete)

		r.Get("/contracts", s.handleContracts)
		r.Get("/contracts/{name}", s.handleContract)

		r.Post("/actions/check", s.handleActionCheck)
		r.Get("/profile/{client}", s.handleProfile)

		r.Get("/gallery", s.handleGallery)
		r.Get("/market", s.handleMarket)
		r.Get("/rewards/{address}", s.handleRewards)
	})

	return r
}
