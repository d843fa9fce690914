// Package web serves the chat UI and its JSON API on a loopback address.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"legalqa/internal/config"
	"legalqa/internal/domain"
	"legalqa/internal/prompt"
	"legalqa/internal/retention"
	"legalqa/internal/service"
)

//go:embed static/index.html
var staticFS embed.FS

var indexTmpl = template.Must(template.ParseFS(staticFS, "static/index.html"))

// Engine is the subset of the service engine the web UI drives.
type Engine interface {
	Ingest(ctx context.Context, path string) (*service.IngestResult, error)
	Ask(ctx context.Context, question string, pt prompt.Type) (*domain.Turn, error)
	Summarize(ctx context.Context, source string) (*domain.Turn, error)
	Sources(ctx context.Context) ([]domain.SourceInfo, error)
	Status(ctx context.Context) (*service.Status, error)
	Models(ctx context.Context) ([]string, error)
	Model() string
	SetModel(model string) error
	DeleteSource(ctx context.Context, idOrName string) (int, error)
	Clear(ctx context.Context, scope service.Scope) retention.Report
	Cleanup(ctx context.Context) (retention.Report, error)
	Storage() (retention.StorageInfo, error)
	TempPath(name string) (string, func(), error)
	History() []domain.Turn
	ResetHistory()
}

// Options configure the server.
type Options struct {
	Addr        string
	MaxUploadMB int
	// AllowRemote permits listening on a non-loopback address.
	AllowRemote bool
	// WriteTimeout bounds a whole request, including the model call.
	WriteTimeout time.Duration
}

// Server is the local web UI.
type Server struct {
	mu       sync.Mutex
	engine   Engine
	opts     Options
	log      *log.Logger
	server   *http.Server
	listener net.Listener
}

// New creates a server. Call Start or Run to listen.
func New(engine Engine, opts Options, logger *log.Logger) *Server {
	if opts.MaxUploadMB <= 0 {
		opts.MaxUploadMB = 50
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Minute
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Server{engine: engine, opts: opts, log: logger}
}

// Handler returns the routes of the UI and API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/sources", s.handleSources)
	mux.HandleFunc("DELETE /api/sources/{id}", s.handleDeleteSource)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("POST /api/ask", s.handleAsk)
	mux.HandleFunc("POST /api/summarize", s.handleSummarize)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("DELETE /api/history", s.handleResetHistory)
	mux.HandleFunc("DELETE /api/data", s.handleClear)
	mux.HandleFunc("POST /api/cleanup", s.handleCleanup)
	mux.HandleFunc("GET /api/storage", s.handleStorage)
	mux.HandleFunc("GET /api/models", s.handleModels)
	mux.HandleFunc("PUT /api/model", s.handleSetModel)
	return s.logRequests(s.guard(mux))
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	host, _, err := net.SplitHostPort(s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen address %q: %w", s.opts.Addr, err)
	}
	if !s.opts.AllowRemote && !config.IsLoopbackHost(host) {
		return fmt.Errorf("refusing to listen on non-loopback address %s", s.opts.Addr)
	}

	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.opts.WriteTimeout,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("web server stopped", "err", err)
		}
	}()
	s.log.Info("web UI listening", "url", "http://"+listener.Addr().String())
	return nil
}

// URL is the address the server listens on, valid after Start.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return "http://" + s.listener.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	s.log.Info("web UI shutting down")
	return s.server.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).Round(time.Millisecond))
	})
}

// guard refuses requests addressed to a non-loopback Host, as a DNS
// rebinding page would send, and state-changing requests from another origin.
func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.opts.AllowRemote && !loopbackHostPort(r.Host) {
			s.log.Warn("refused request", "host", r.Host, "path", r.URL.Path)
			writeJSON(w, http.StatusForbidden, errorResponse{"unexpected Host header"})
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			if origin := r.Header.Get("Origin"); origin != "" && !sameOrigin(origin, r.Host) {
				s.log.Warn("refused cross-origin request", "origin", origin, "path", r.URL.Path)
				writeJSON(w, http.StatusForbidden, errorResponse{"cross-origin request refused"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func loopbackHostPort(hostport string) bool {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport
	}
	return config.IsLoopbackHost(host)
}

func sameOrigin(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
