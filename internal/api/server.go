package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/refinery/internal/corpus"
	"github.com/MikeSquared-Agency/refinery/internal/processor"
	"github.com/MikeSquared-Agency/refinery/internal/prompts"
	"github.com/MikeSquared-Agency/refinery/internal/skills"
	"github.com/MikeSquared-Agency/refinery/internal/store"
	"github.com/MikeSquared-Agency/refinery/internal/trust"
)

type CallProcessor interface {
	Process(ctx context.Context, call processor.Call) (*processor.Result, error)
}

type PromptStore interface {
	Resolve(ctx context.Context, seg prompts.Segment) (prompts.Resolution, error)
	SetSegment(ctx context.Context, seg prompts.Segment, prompt string) error
	SetIndustry(ctx context.Context, industry, prompt string) error
	SetBase(ctx context.Context, prompt string) error
}

type TestCaseStore interface {
	All(ctx context.Context) ([]corpus.TestCase, error)
	Append(ctx context.Context, tc corpus.TestCase) error
}

// Ledger is the read side of the Postgres audit trail.
type Ledger interface {
	ListOptimizations(ctx context.Context, segment string, limit int) ([]store.OptimizationRecord, error)
	GetTrust(ctx context.Context, segment string) (*trust.Record, error)
}

// Deps are the components the API fronts. Ledger may be a nil *store.Store,
// in which case the ledger endpoints answer 503.
type Deps struct {
	Processor CallProcessor
	Prompts   PromptStore
	Retriever skills.Retriever
	Skills    skills.Scanner
	Corpus    TestCaseStore
	Ledger    Ledger
	Gatherer  prometheus.Gatherer
	InFlight  func() []string
	Connected func() bool
	APIToken  string
}

type Server struct {
	router *chi.Mux
	port   int
	deps   Deps
	logger *slog.Logger
	srv    *http.Server
}

func NewServer(port int, d Deps, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		deps:   d,
		logger: logger,
	}

	metricsHandler := promhttp.Handler()
	if d.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})
	}

	router.Get("/health", s.health)
	router.Handle("/metrics", metricsHandler)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(d.APIToken))
		r.Get("/refinery/status", s.status)

		r.Post("/calls/completed", s.callCompleted)

		r.Get("/prompts", s.getPrompt)
		r.Put("/prompts/base", s.setBasePrompt)
		r.Put("/prompts/industries/{industry}", s.setIndustryPrompt)
		r.Put("/prompts/segments/{country}/{industry}", s.setSegmentPrompt)

		r.Post("/skills/search", s.searchSkills)
		r.Get("/skills/clusters", s.skillClusters)
		r.Get("/skills/tool", s.skillTool)

		r.Get("/test-cases", s.listTestCases)
		r.Post("/test-cases", s.addTestCase)

		r.Get("/optimizations", s.listOptimizations)
		r.Get("/trust/{segment}", s.getTrust)
	})

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server starting", "addr", addr)
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// BearerAuthMiddleware requires "Authorization: Bearer <token>". An empty
// token disables the check.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	inFlight := []string{}
	if s.deps.InFlight != nil {
		inFlight = s.deps.InFlight()
	}
	body := map[string]any{
		"agent":                   "refinery",
		"status":                  "active",
		"optimizations_in_flight": inFlight,
	}
	if s.deps.Connected != nil {
		body["nats_connected"] = s.deps.Connected()
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
