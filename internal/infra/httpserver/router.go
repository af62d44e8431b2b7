package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	appanalyses "github.com/bryanwahyu/imageproof/internal/application/analyses"
	domain "github.com/bryanwahyu/imageproof/internal/domain/analyses"
	"github.com/bryanwahyu/imageproof/internal/infra/auth"
	"github.com/bryanwahyu/imageproof/internal/infra/events"
	"github.com/bryanwahyu/imageproof/internal/middleware"
	"github.com/bryanwahyu/imageproof/internal/observability"
)

const maxBodyBytes = 1 << 20

// Options wires the router. Only Analyses is required.
type Options struct {
	Analyses    *appanalyses.Service
	Hub         *events.Hub
	Auth        auth.Authenticator
	Metrics     *observability.Metrics
	Health      map[string]middleware.HealthChecker
	Ready       *atomic.Bool
	CORSOrigins []string
	RateRPS     float64
	RateBurst   int
}

type Router struct {
	analyses *appanalyses.Service
	hub      *events.Hub
}

func NewRouter(opts Options) http.Handler {
	r := &Router{analyses: opts.Analyses, hub: opts.Hub}
	mux := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	mux.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}),
		middleware.LoggingMiddleware,
		middleware.MetricsMiddleware(opts.Metrics),
		middleware.Authenticate(opts.Auth),
	)

	mux.Get("/health", middleware.HealthHandler(opts.Health))
	mux.Get("/healthz", middleware.LivenessHandler)
	mux.Get("/readyz", middleware.ReadinessHandler(opts.Ready))
	if opts.Metrics != nil {
		mux.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	mux.Route("/v1", func(rt chi.Router) {
		rt.Use(middleware.RateLimitMiddleware(opts.RateRPS, opts.RateBurst))

		rt.Post("/uploads", r.wrap(r.handleIssueUpload))

		rt.Get("/analyses", r.wrap(r.handleList))
		rt.Post("/analyses", r.wrap(r.handleCreate))
		rt.Get("/analyses/recent", r.wrap(r.handleRecent))
		rt.Get("/analyses/stats", r.wrap(r.handleStats))
		rt.Get("/analyses/events", r.wrap(r.handleEvents))
		rt.Get("/analyses/{id}", r.wrap(r.handleGet))
		rt.Post("/analyses/{id}/score", r.wrap(r.handleScore))
		rt.Delete("/analyses/{id}", r.wrap(r.handleDelete))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			status := statusFor(err)
			msg := http.StatusText(status)
			if status == http.StatusBadRequest {
				msg = err.Error()
			}
			if status >= 500 {
				zap.L().Error("request failed",
					zap.String("method", req.Method),
					zap.String("path", req.URL.Path),
					zap.String("trace", eris.ToString(err, true)),
				)
			}
			writeJSON(w, status, map[string]string{"error": msg})
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyScored):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response failed", zap.Error(err))
	}
}

func caller(req *http.Request) string {
	return middleware.OwnerFromContext(req.Context())
}

func analysisID(req *http.Request) (domain.AnalysisID, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateAnalysisID(id); err != nil {
		return "", err
	}
	return domain.AnalysisID(id), nil
}

// GET /v1/analyses
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	list, err := r.analyses.List(req.Context(), caller(req))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

// GET /v1/analyses/recent?limit=10
func (r *Router) handleRecent(w http.ResponseWriter, req *http.Request) error {
	limit, err := middleware.ParseLimit(req.URL.Query().Get("limit"))
	if err != nil {
		return err
	}
	list, err := r.analyses.Recent(req.Context(), caller(req), limit)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

// GET /v1/analyses/stats
func (r *Router) handleStats(w http.ResponseWriter, req *http.Request) error {
	st, err := r.analyses.Stats(req.Context(), caller(req))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, st)
	return nil
}

// POST /v1/uploads
func (r *Router) handleIssueUpload(w http.ResponseWriter, req *http.Request) error {
	target, err := r.analyses.IssueUploadTarget(req.Context(), caller(req))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, target)
	return nil
}

// POST /v1/analyses
// Body: {"storage_id": "...", "filename": "..."}
func (r *Router) handleCreate(w http.ResponseWriter, req *http.Request) error {
	owner := caller(req)
	if owner == "" {
		return domain.ErrUnauthenticated
	}
	var body struct {
		StorageID string `json:"storage_id"`
		Filename  string `json:"filename"`
	}
	dec := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return eris.Wrapf(domain.ErrInvalidInput, "invalid body: %v", err)
	}
	if err := middleware.ValidateStorageID(body.StorageID); err != nil {
		return err
	}
	if err := middleware.ValidateFilename(body.Filename); err != nil {
		return err
	}

	id, err := r.analyses.Create(req.Context(), owner, body.StorageID, body.Filename)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": string(id)})
	return nil
}

// GET /v1/analyses/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id, err := analysisID(req)
	if err != nil {
		return err
	}
	a, err := r.analyses.Get(req.Context(), caller(req), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, a)
	return nil
}

// POST /v1/analyses/{id}/score
// Returns 202 as soon as the task is queued.
func (r *Router) handleScore(w http.ResponseWriter, req *http.Request) error {
	id, err := analysisID(req)
	if err != nil {
		return err
	}
	if err := r.analyses.TriggerScoring(req.Context(), caller(req), id); err != nil {
		return err
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": string(id), "status": "queued"})
	return nil
}

// DELETE /v1/analyses/{id}
func (r *Router) handleDelete(w http.ResponseWriter, req *http.Request) error {
	id, err := analysisID(req)
	if err != nil {
		return err
	}
	if err := r.analyses.Delete(req.Context(), caller(req), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// GET /v1/analyses/events
func (r *Router) handleEvents(w http.ResponseWriter, req *http.Request) error {
	owner := caller(req)
	if owner == "" {
		return domain.ErrUnauthenticated
	}
	if r.hub == nil {
		return eris.New("live updates disabled")
	}
	c := r.hub.Subscribe(owner)
	defer r.hub.Unsubscribe(c)
	r.hub.Serve(w, req, c)
	return nil
}
