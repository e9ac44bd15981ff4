package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dbehnke/fecsim/pkg/config"
	"github.com/dbehnke/fecsim/pkg/database"
	"github.com/dbehnke/fecsim/pkg/logger"
)

// staticDir is served when no assets are embedded
const staticDir = "frontend/dist"

// Server represents the web dashboard HTTP server
type Server struct {
	config config.WebConfig
	logger *logger.Logger
	server *http.Server
	hub    *WebSocketHub
	api    *API
	addr   string
	mu     sync.RWMutex
}

// Option configures a Server
type Option func(*Server)

// WithDatabase backs the run endpoints with a result database
func WithDatabase(db *database.DB) Option {
	return func(s *Server) {
		if db == nil {
			return
		}
		active := s.api.active
		s.api = NewAPI(s.logger, db, active)
		s.api.hub = s.hub
	}
}

// WithActiveRuns reports in-flight sweeps on /api/status
func WithActiveRuns(fn ActiveRunsFunc) Option {
	return func(s *Server) {
		s.api.active = fn
	}
}

// NewServer creates a new web server instance
func NewServer(cfg config.WebConfig, log *logger.Logger, opts ...Option) *Server {
	log = log.WithComponent("web")
	s := &Server{
		config: cfg,
		logger: log,
		hub:    NewWebSocketHub(log),
		api:    NewAPI(log, nil, nil),
	}
	s.api.hub = s.hub
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Web server is disabled")
		return nil
	}

	// Start WebSocket hub
	go s.hub.Run(ctx)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start listener to get actual address (especially for port 0)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.mu.Lock()
	s.server = server
	s.addr = listener.Addr().String()
	s.mu.Unlock()

	s.logger.Info("Starting web server",
		logger.String("address", listener.Addr().String()))

	errChan := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return ctx.Err()
	case err := <-errChan:
		return err
	}
}

// Handler builds the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", s.handleHealth)

	// API endpoints
	mux.HandleFunc("GET /api/status", s.api.HandleStatus)
	mux.HandleFunc("GET /api/runs", s.api.HandleRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.api.HandleRun)
	mux.HandleFunc("GET /api/runs/{id}/points", s.api.HandleRunPoints)
	mux.HandleFunc("GET /api/curves", s.api.HandleCurve)

	// WebSocket endpoint
	mux.Handle("/ws", s.hub.Handler())

	if static := s.staticFS(); static != nil {
		mux.Handle("/", spaHandler(static))
	} else {
		s.logger.Info("No static frontend assets found; dashboard not served", logger.String("dir", staticDir))
	}
	return mux
}

// staticFS prefers embedded assets and falls back to the on-disk build
func (s *Server) staticFS() http.FileSystem {
	fsys, err := embeddedStaticFS()
	if err != nil {
		s.logger.Warn("Failed to open embedded assets", logger.Error(err))
	}
	if fsys != nil {
		s.logger.Info("Serving embedded frontend assets")
		return fsys
	}
	if fi, err := os.Stat(staticDir); err == nil && fi.IsDir() {
		s.logger.Info("Serving static frontend assets", logger.String("dir", staticDir))
		return http.Dir(staticDir)
	}
	return nil
}

// spaHandler serves files and falls back to index.html for unknown routes
func spaHandler(static http.FileSystem) http.Handler {
	files := http.FileServer(static)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqPath := filepath.ToSlash(filepath.Clean("/" + r.URL.Path))
		if reqPath != "/" {
			if f, err := static.Open(reqPath); err == nil {
				fi, statErr := f.Stat()
				_ = f.Close()
				if statErr == nil && !fi.IsDir() {
					files.ServeHTTP(w, r)
					return
				}
			}
		}
		// Fallback to index.html for SPA routes
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/"
		files.ServeHTTP(w, r2)
	})
}

// GetAddr returns the address the server is listening on
func (s *Server) GetAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// GetHub returns the WebSocket hub
func (s *Server) GetHub() *WebSocketHub {
	return s.hub
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "fecsim",
		"time":    time.Now().Unix(),
	}); err != nil {
		s.logger.Warn("Failed to encode health response", logger.Error(err))
	}
}
