package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	idgen "github.com/crawlkit/sitemap-stage/internal/id/uuid"
	"github.com/crawlkit/sitemap-stage/internal/pipeline"
	"github.com/crawlkit/sitemap-stage/internal/sitemap"
)

// Server wires the ops HTTP routes to the stage components.
type Server struct {
	router    chi.Router
	detector  *sitemap.Detector
	parser    *sitemap.Parser
	extractor *sitemap.Extractor
	registry  *prometheus.Registry
	logger    *zap.Logger
	ready     func() bool
}

// Params collects Server dependencies.
type Params struct {
	Detector  *sitemap.Detector
	Parser    *sitemap.Parser
	Extractor *sitemap.Extractor
	// Registry serves /metrics. When nil, the default gatherer is used.
	Registry *prometheus.Registry
	Logger   *zap.Logger
	// Ready reports whether the stage is consuming. When nil, readyz
	// always succeeds.
	Ready func() bool
	// IDs generates request IDs. Defaults to UUIDv7.
	IDs pipeline.IDGenerator
}

// NewServer constructs a Server with middleware and routes.
func NewServer(p Params) *Server {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		detector:  p.Detector,
		parser:    p.Parser,
		extractor: p.Extractor,
		registry:  p.Registry,
		logger:    logger,
		ready:     p.Ready,
	}

	ids := p.IDs
	if ids == nil {
		ids = idgen.NewUUIDGenerator()
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware(ids))
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", s.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/inspect", s.inspect)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) metricsHandler() http.Handler {
	if s.registry != nil {
		return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.ready != nil && !s.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type inspectRequest struct {
	URL           string              `json:"url"`
	ContentBase64 string              `json:"content_base64"`
	ContentType   string              `json:"content_type,omitempty"`
	Metadata      map[string][]string `json:"metadata,omitempty"`
}

type inspectResponse struct {
	URL       string           `json:"url"`
	IsSitemap bool             `json:"is_sitemap"`
	Kind      string           `json:"kind,omitempty"`
	Entries   int              `json:"entries,omitempty"`
	Outlinks  []inspectOutlink `json:"outlinks,omitempty"`
	Error     string           `json:"error,omitempty"`
}

type inspectOutlink struct {
	Target   string              `json:"target"`
	Metadata map[string][]string `json:"metadata,omitempty"`
}

// inspect classifies and parses a payload without emitting or acking
// anything. It is a debugging aid for operators tuning filters.
func (s *Server) inspect(w http.ResponseWriter, r *http.Request) {
	var req inspectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.ContentBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "content_base64 is not valid base64")
		return
	}

	md := pipeline.NewMetadata()
	for key, values := range req.Metadata {
		for _, v := range values {
			md.AddValue(key, v)
		}
	}
	if req.ContentType != "" {
		md.SetValue(pipeline.KeyContentType, req.ContentType)
	}

	resp := inspectResponse{URL: req.URL}
	resp.IsSitemap = s.detector.IsSitemap(req.URL, md, content)
	if !resp.IsSitemap {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	doc, err := s.parser.Parse(req.URL, content, md.FirstValue(pipeline.KeyContentType))
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Kind = string(doc.Kind)
	resp.Entries = len(doc.Entries)

	outlinks := s.extractor.Extract(req.URL, doc, md)
	for _, link := range outlinks {
		out := inspectOutlink{Target: link.Target}
		if link.Metadata != nil && link.Metadata.Len() > 0 {
			out.Metadata = make(map[string][]string, link.Metadata.Len())
			for _, key := range link.Metadata.Keys() {
				out.Metadata[key] = link.Metadata.Values(key)
			}
		}
		resp.Outlinks = append(resp.Outlinks, out)
	}
	writeJSON(w, http.StatusOK, resp)
}

func requestIDMiddleware(ids pipeline.IDGenerator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID, err := ids.NewID()
			if err != nil {
				reqID = uuid.NewString()
			}
			ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
			w.Header().Set("X-Request-ID", reqID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
