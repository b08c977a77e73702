// Package api exposes the coaching service over HTTP.
//
// Every coaching operation is a JSON POST under /v1. The provider is taken
// from the request body's "provider" field or, when absent, the X-Provider
// header; unknown identifiers are served by the default provider. Successful
// operations answer with the result, the provider that served it, the tokens
// consumed and any budget notifications. Failures answer with an [ErrorBody].
//
// Live role-play sessions run over a websocket at /v1/roleplay/live; see
// [Server.Live].
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/rs/cors"

	"github.com/MrWong99/salescoach/internal/coaching"
	"github.com/MrWong99/salescoach/internal/knowledge"
	"github.com/MrWong99/salescoach/internal/observe"
)

// DefaultMaxUploadBytes caps audio uploads and JSON bodies.
const DefaultMaxUploadBytes = 20 << 20

// ProviderHeader selects the provider when the body names none.
const ProviderHeader = "X-Provider"

// Server serves the coaching API.
type Server struct {
	svc       *coaching.Service
	kb        *knowledge.Base
	metrics   *observe.Metrics
	log       *slog.Logger
	maxUpload int64
	origins   []string
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetrics tracks open live role-play sessions on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithAllowedOrigins restricts websocket upgrades to origins. Without it, or
// with "*", every origin is accepted. Use the same list as [CORS].
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithMaxUploadBytes caps request bodies. Defaults to [DefaultMaxUploadBytes].
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) { s.maxUpload = n }
}

// New creates a Server.
func New(svc *coaching.Service, kb *knowledge.Base, opts ...Option) *Server {
	s := &Server{
		svc:       svc,
		kb:        kb,
		log:       slog.Default(),
		maxUpload: DefaultMaxUploadBytes,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/categorize", s.categorize)
	mux.HandleFunc("POST /v1/analyze", s.analyze)
	mux.HandleFunc("POST /v1/scripts", s.generateScript)
	mux.HandleFunc("POST /v1/roleplay/reply", s.rolePlayReply)
	mux.HandleFunc("POST /v1/roleplay/turn", s.rolePlayTurn)
	mux.HandleFunc("POST /v1/roleplay/analyze", s.analyzeRolePlay)
	mux.HandleFunc("GET /v1/roleplay/live", s.Live)
	mux.HandleFunc("POST /v1/case-studies", s.generateCaseStudy)

	mux.HandleFunc("GET /v1/history/{kind}", s.history)
	mux.HandleFunc("GET /v1/overview", s.overview)
	mux.HandleFunc("GET /v1/usage", s.usage)
	mux.HandleFunc("PUT /v1/usage/budget", s.setBudget)
	mux.HandleFunc("GET /v1/providers", s.providers)

	mux.HandleFunc("GET /v1/knowledge/products", s.products)
	mux.HandleFunc("GET /v1/knowledge/profiles", s.profiles)
	mux.HandleFunc("GET /v1/knowledge/problems", s.problems)
}

// Handler returns a mux with the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// CORS wraps h so that browsers on origins may call the API. A single "*"
// allows every origin.
func CORS(origins []string, h http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", ProviderHeader, "Traceparent"},
		ExposedHeaders: []string{observe.CorrelationHeader},
	})
	return c.Handler(h)
}

// decodeJSON reads a JSON body of at most s.maxUpload bytes into v.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is empty")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &requestError{status: http.StatusRequestEntityTooLarge, msg: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)}
		}
		return badRequest("invalid JSON: " + err.Error())
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
