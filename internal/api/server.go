// Package api serves conversions over HTTP and WebSocket for remote
// editing surfaces.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/FocuswithJustin/enriched/core/cache"
	"github.com/FocuswithJustin/enriched/core/transcode"
	"github.com/FocuswithJustin/enriched/internal/logging"
)

// Server is the conversion server.
type Server struct {
	cfg   Config
	tr    *transcode.Transcoder
	hub   *Hub
	start time.Time
}

// New returns a Server for cfg. Zero limits fall back to DefaultConfig.
func New(cfg Config) *Server {
	def := DefaultConfig()
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}

	opts := []transcode.Option{transcode.WithTheme(cfg.Theme)}
	if cfg.CacheSize > 0 {
		opts = append(opts, transcode.WithCache(cache.NewConversions(cache.Config{MaxSize: cfg.CacheSize})))
	}

	return &Server{
		cfg:   cfg,
		tr:    transcode.New(opts...),
		hub:   NewHub(),
		start: time.Now(),
	}
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.routes()
	handler = securityHeaders(handler)
	handler = corsMiddleware(s.cfg.AllowedOrigins, handler)
	return logging.CombinedMiddleware(handler)
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("POST /api/v1/model", s.handleModel)
	mux.HandleFunc("POST /api/v1/markup", s.handleMarkup)
	mux.HandleFunc("GET /api/v1/ws", s.handleWebSocket)

	if s.cfg.Store != nil {
		mux.HandleFunc("GET /api/v1/documents", s.handleListDocuments)
		mux.HandleFunc("GET /api/v1/documents/{name}", s.handleGetDocument)
		mux.HandleFunc("PUT /api/v1/documents/{name}", s.handlePutDocument)
		mux.HandleFunc("DELETE /api/v1/documents/{name}", s.handleDeleteDocument)
	}

	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if len(s.cfg.AllowedOrigins) > 0 {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "restricted",
			"allowed_origins_count", len(s.cfg.AllowedOrigins))
	} else {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "permissive",
			"note", "allowing all origins")
	}
	logging.ServerStartup("api", "http", s.cfg.Port,
		"websocket", "/api/v1/ws",
		"store", s.cfg.Store != nil,
		"cache_size", s.cfg.CacheSize)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logging.InfoContext(ctx, "server stopped", "port", s.cfg.Port, "uptime", time.Since(s.start).Round(time.Second).String())
	return nil
}

// Close disconnects every WebSocket client.
func (s *Server) Close() {
	s.hub.CloseAll()
}

// securityHeaders sets the headers every API response carries.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware answers preflight requests and sets CORS headers for
// allowed origins. An empty list allows every origin.
func corsMiddleware(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowOrigin := "*"
		if len(allowed) > 0 {
			if !isOriginAllowed(origin, allowed) {
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			allowOrigin = origin
			w.Header().Add("Vary", "Origin")
		}

		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+logging.RequestIDHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isOriginAllowed matches origin exactly, against "*", or against a
// "*.example.com" subdomain pattern.
func isOriginAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		switch {
		case a == "*", a == origin:
			return true
		case strings.HasPrefix(a, "*."):
			if strings.HasSuffix(origin, a[1:]) {
				return true
			}
		}
	}
	return false
}
