// Package api exposes the pipeline over HTTP. Every response is a JSON
// envelope {success, data|error, details, timestamp}.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/foodtruck-cli/internal/config"
	"github.com/sells-group/foodtruck-cli/internal/extract"
	"github.com/sells-group/foodtruck-cli/internal/jobs"
	"github.com/sells-group/foodtruck-cli/internal/monitoring"
	"github.com/sells-group/foodtruck-cli/internal/pipeline"
	"github.com/sells-group/foodtruck-cli/internal/store"
)

// Pipeline is the pipeline surface the API drives.
type Pipeline interface {
	Run(ctx context.Context, req pipeline.Request) *pipeline.Result
	Status(ctx context.Context) (*pipeline.Status, error)
	ExecuteJob(ctx context.Context, id string) (*pipeline.JobOutcome, error)
}

// Usage reports API quota consumption.
type Usage interface {
	Usage(ctx context.Context, service string) (*monitoring.ServiceUsage, error)
	Snapshot(ctx context.Context) ([]monitoring.ServiceUsage, error)
}

// Scheduler exposes periodic task state and toggles.
type Scheduler interface {
	Status() []jobs.TaskStatus
	Enable(id string) error
	Disable(id string) error
}

// Extractor runs one ad-hoc extraction.
type Extractor interface {
	Extract(ctx context.Context, kind extract.Kind, input string) *extract.Result
}

// Server holds the handlers' collaborators. Scheduler and extractor may be
// nil; their endpoints then answer 503.
type Server struct {
	cfg       *config.Config
	pipeline  Pipeline
	usage     Usage
	scheduler Scheduler
	extractor Extractor
	now       func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithExtractor enables POST /api/extract.
func WithExtractor(e Extractor) Option {
	return func(s *Server) { s.extractor = e }
}

// New creates a Server.
func New(cfg *config.Config, p Pipeline, usage Usage, sched Scheduler, opts ...Option) *Server {
	s := &Server{cfg: cfg, pipeline: p, usage: usage, scheduler: sched, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/pipeline", s.runPipeline)
		r.Get("/pipeline/status", s.pipelineStatus)
		r.Post("/jobs/{id}/execute", s.executeJob)
		r.Post("/extract", s.runExtract)
		r.Get("/usage", s.getUsage)
		r.Get("/scheduler", s.schedulerStatus)
		r.Post("/scheduler/{id}/enable", s.toggleTask(true))
		r.Post("/scheduler/{id}/disable", s.toggleTask(false))
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		s.fail(w, http.StatusNotFound, "not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		s.fail(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})
	return r
}

type envelope struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Details   any       `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) write(w http.ResponseWriter, status int, env envelope) {
	env.Timestamp = s.now().UTC()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func (s *Server) ok(w http.ResponseWriter, data any) {
	s.write(w, http.StatusOK, envelope{Success: true, Data: data})
}

func (s *Server) fail(w http.ResponseWriter, status int, msg string, details any) {
	s.write(w, status, envelope{Error: msg, Details: details})
}

// failErr maps store and scheduler sentinels to status codes.
func (s *Server) failErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, jobs.ErrTaskNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, monitoring.ErrUnknownService), errors.Is(err, pipeline.ErrUnknownType):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Error(err))
	}
	s.fail(w, status, err.Error(), nil)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
