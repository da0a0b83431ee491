// Package api serves the Beacon REST endpoints over a graph repository.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/NCATS-Tangerine/tkg-beacon/internal/biolink"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/config"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/logging"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/metadata"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/namespace"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/server/graph"
	"github.com/NCATS-Tangerine/tkg-beacon/pkg/types"
)

// Citer builds citations for publication identifiers.
type Citer interface {
	Citations(ctx context.Context, publications []string) []types.BeaconStatementCitation
}

// Deps are the collaborators of the API server.
type Deps struct {
	Repo       graph.Repository
	Normalizer *namespace.Normalizer
	CaseMap    *namespace.CaseMap
	Model      *biolink.Model
	Metadata   *metadata.Service
	Citer      Citer
	Logger     *zap.Logger
}

// Options configure routing and identifier handling.
type Options struct {
	BeaconName       string
	IdentifierMode   string
	FilterBiolink    bool
	RedirectNotFound bool
	// RateLimit is requests per second across all clients, 0 disables it.
	RateLimit float64
	RateBurst int
	Version   string
}

// Server holds the HTTP server dependencies
type Server struct {
	repo       graph.Repository
	normalizer *namespace.Normalizer
	caseMap    *namespace.CaseMap
	model      *biolink.Model
	metadata   *metadata.Service
	citer      Citer
	logger     *zap.Logger

	opts    Options
	limiter *rate.Limiter
}

// New creates a new API server
func New(deps Deps, opts Options) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.BeaconName == "" {
		opts.BeaconName = "kg"
	}
	if opts.IdentifierMode == "" {
		opts.IdentifierMode = config.ModeCURIE
	}
	s := &Server{
		repo:       deps.Repo,
		normalizer: deps.Normalizer,
		caseMap:    deps.CaseMap,
		model:      deps.Model,
		metadata:   deps.Metadata,
		citer:      deps.Citer,
		logger:     deps.Logger,
		opts:       opts,
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = int(opts.RateLimit)
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s
}

// BasePath is the route prefix of the beacon API.
func (s *Server) BasePath() string {
	return "/beacon/" + s.opts.BeaconName
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(s.logger))
	r.Use(s.recoverer)
	r.Use(s.instrument)

	r.Get("/health", s.HealthCheck)
	r.Get("/ready", s.ReadyCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route(s.BasePath(), func(r chi.Router) {
		r.Use(s.rateLimit)

		r.Get("/", s.Index)
		r.Get("/concepts", s.GetConcepts)
		r.Get("/concepts/{conceptId}", s.GetConceptDetails)
		r.Get("/exactmatches", s.GetExactMatches)
		r.Get("/statements", s.GetStatements)
		r.Get("/statements/{statementId}", s.GetStatementDetails)
		r.Get("/categories", s.GetConceptCategories)
		r.Get("/knowledge_map", s.GetKnowledgeMap)
		r.Get("/predicates", s.GetPredicates)
	})

	if s.opts.RedirectNotFound {
		target := s.BasePath() + "/"
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, target, http.StatusFound)
		})
	} else {
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, r, http.StatusNotFound, "no such endpoint: "+r.URL.Path)
		})
	}
	return r
}

// HealthCheck handles GET /health
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.HealthResponse{Status: "ok", Version: s.opts.Version})
}

// ReadyCheck handles GET /ready. The gateway is ready once the graph answers,
// metadata is computed and the case map is built.
func (s *Server) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	ready := true

	if err := s.repo.Ping(r.Context()); err != nil {
		checks["graph"] = err.Error()
		ready = false
	} else {
		checks["graph"] = "ok"
	}
	checks["metadata"], ready = readiness(s.metadata == nil || s.metadata.Ready(), ready)
	checks["case_map"], ready = readiness(s.caseMap == nil || s.caseMap.Ready(), ready)

	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, types.HealthResponse{Status: "not_ready", Version: s.opts.Version, Checks: checks})
		return
	}
	writeJSON(w, http.StatusOK, types.HealthResponse{Status: "ready", Version: s.opts.Version, Checks: checks})
}

func readiness(ok, ready bool) (string, bool) {
	if ok {
		return "ok", ready
	}
	return "warming", false
}

func (s *Server) iriMode() bool {
	return strings.EqualFold(s.opts.IdentifierMode, config.ModeIRI)
}
