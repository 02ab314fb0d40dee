package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sodav-monitor/sodav/pkg/audit"
	"github.com/sodav-monitor/sodav/pkg/auth"
	"github.com/sodav-monitor/sodav/pkg/httputil"
	"github.com/sodav-monitor/sodav/pkg/middleware"
	"github.com/sodav-monitor/sodav/pkg/monitor"
	"github.com/sodav-monitor/sodav/pkg/observability"
	"github.com/sodav-monitor/sodav/pkg/realtime"
	"github.com/sodav-monitor/sodav/pkg/report"
)

// DefaultMaxBodyBytes caps request bodies when Deps.MaxBodyBytes is zero.
const DefaultMaxBodyBytes = 1 << 20

// ChannelReader is the read side of channel storage.
type ChannelReader interface {
	GetChannel(ctx context.Context, id string) (*monitor.Channel, error)
	ListChannels(ctx context.Context, activeOnly bool) ([]*monitor.Channel, error)
}

// SongReader is the read side of song storage.
type SongReader interface {
	GetSong(ctx context.Context, id string) (*monitor.Song, error)
	ListSongs(ctx context.Context, filter monitor.SongFilter) ([]*monitor.Song, error)
}

// DetectionReader is the read side of detection storage.
type DetectionReader interface {
	ListDetections(ctx context.Context, filter monitor.DetectionFilter) ([]*monitor.Detection, error)
}

// Deps wires the server. Reports, Audit, Hub, RateLimit and Metrics are
// optional; their routes or middleware are skipped when nil.
type Deps struct {
	Authenticator *auth.Authenticator
	Monitor       *monitor.Service
	Channels      ChannelReader
	Songs         SongReader
	Detections    DetectionReader
	Keys          *auth.KeyManager
	Reports       *report.Generator
	Audit         *audit.Handlers
	Hub           *realtime.Hub
	RateLimit     *middleware.RateLimitMiddleware
	Metrics       *observability.Metrics
	Logger        *observability.Logger

	AllowedOrigins []string
	MaxBodyBytes   int64

	// Now defaults to time.Now. Report ranges default to the current UTC day.
	Now func() time.Time
}

// Server is the HTTP API.
type Server struct {
	deps    Deps
	router  *mux.Router
	handler http.Handler
}

// NewServer creates a server with every route registered.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := &Server{deps: deps, router: mux.NewRouter()}
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteNotFound(w, "route not found")
	})
	if deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}
	s.setupRoutes()

	s.handler = httputil.Chain(
		httputil.RequestIDMiddleware(deps.Logger),
		httputil.RecoveryMiddleware(deps.Logger),
		httputil.LoggingMiddleware(deps.Logger),
		httputil.CORSMiddleware(deps.AllowedOrigins),
		httputil.MaxBytesMiddleware(deps.MaxBodyBytes),
	)(s.router)
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(otelhttp.NewMiddleware("sodav-api"))

	api.Handle("/me", s.user(s.me)).Methods(http.MethodGet)

	// Channels
	api.Handle("/channels", s.user(s.listChannels)).Methods(http.MethodGet)
	api.Handle("/channels", s.user(s.createChannel, auth.RoleAdmin, auth.RoleManager)).Methods(http.MethodPost)
	api.Handle("/channels/{id}", s.user(s.getChannel)).Methods(http.MethodGet)
	api.Handle("/channels/{id}", s.user(s.updateChannel, auth.RoleAdmin, auth.RoleManager)).Methods(http.MethodPut)
	api.Handle("/channels/{id}", s.user(s.deleteChannel, auth.RoleAdmin)).Methods(http.MethodDelete)

	// Songs
	api.Handle("/songs", s.user(s.listSongs)).Methods(http.MethodGet)
	api.Handle("/songs", s.user(s.createSong, auth.RoleAdmin, auth.RoleManager)).Methods(http.MethodPost)
	api.Handle("/songs/{id}", s.user(s.getSong)).Methods(http.MethodGet)

	// Detections
	api.Handle("/detections", s.user(s.listDetections)).Methods(http.MethodGet)
	api.Handle("/detections/{id}", s.user(s.correctDetection, auth.RoleAdmin, auth.RoleManager, auth.RoleOperator)).Methods(http.MethodPatch)

	// Machine ingestion
	api.Handle("/ingest/detections", s.machine(s.ingestDetection, auth.PermissionDetectionsWrite)).Methods(http.MethodPost)
	api.Handle("/ingest/identify", s.machine(s.ingestIdentify, auth.PermissionDetectionsWrite)).Methods(http.MethodPost)

	// API keys
	api.Handle("/keys", s.user(s.listKeys, auth.RoleAdmin)).Methods(http.MethodGet)
	api.Handle("/keys", s.user(s.issueKey, auth.RoleAdmin)).Methods(http.MethodPost)
	api.Handle("/keys/{id}", s.user(s.disableKey, auth.RoleAdmin)).Methods(http.MethodDelete)

	if s.deps.Reports != nil {
		api.Handle("/reports/airplay.csv", s.user(s.airplayReport, auth.RoleAdmin, auth.RoleManager)).Methods(http.MethodGet)
	}

	if s.deps.Audit != nil {
		api.Handle("/audit", s.user(s.deps.Audit.List, auth.RoleAdmin)).Methods(http.MethodGet)
		api.Handle("/audit/export", s.user(s.deps.Audit.Export, auth.RoleAdmin)).Methods(http.MethodGet)
	}

	// The websocket route stays outside otelhttp so the connection can be
	// hijacked.
	if s.deps.Hub != nil {
		s.router.Handle("/ws", s.deps.Hub.Handler(s.deps.Authenticator, s.deps.AllowedOrigins)).Methods(http.MethodGet)
	}
}

// user gates h behind a bearer token and, when roles are given, one of them.
func (s *Server) user(h http.HandlerFunc, roles ...auth.Role) http.Handler {
	chain := []func(http.Handler) http.Handler{middleware.RequireBearer(s.deps.Authenticator)}
	if len(roles) > 0 {
		chain = append(chain, middleware.RequireRole(s.deps.Authenticator, roles...))
	}
	chain = append(chain, s.limit)
	return httputil.Chain(chain...)(h)
}

// machine gates h behind an API key holding every perm.
func (s *Server) machine(h http.HandlerFunc, perms ...auth.Permission) http.Handler {
	return httputil.Chain(
		middleware.RequireAPIKey(s.deps.Authenticator, auth.RequireAll, perms...),
		s.limit,
	)(h)
}

func (s *Server) limit(next http.Handler) http.Handler {
	if s.deps.RateLimit == nil {
		return next
	}
	return s.deps.RateLimit.Handler(next)
}

// Router exposes the underlying router for additional registrations.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
