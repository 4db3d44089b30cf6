// Package devserver is a local stand-in for the answer backend. It serves the
// REST and websocket contract the client speaks, stores message history in
// sqlite and renders a preview page of answered questions.
package devserver

import (
	"context"
	"crypto/rand"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/restocorp/answerflow/internal/cache"
	"github.com/restocorp/answerflow/internal/config"
	"github.com/restocorp/answerflow/internal/markdown"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Options configures the handler. Zero values fall back to the defaults below.
type Options struct {
	Version   string
	Cache     cache.Cache
	Answerer  Answerer
	Suggester Suggester
	Markdown  markdown.Options

	// RateLimitRPS and RateLimitBurst apply per user to the ask routes.
	RateLimitRPS   float64
	RateLimitBurst int

	// Registry receives the server metrics and is served on /metrics.
	Registry *prometheus.Registry

	Now func() time.Time
}

// NewHandler builds the routed handler. Tests use it with httptest.
func NewHandler(db *sql.DB, opts Options) http.Handler {
	// Create sub-FS for templates (strip "templates/" prefix)
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		log.Fatalf("failed to create template sub-FS: %v", err)
	}

	// Create sub-FS for static files (strip "static/" prefix)
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Fatalf("failed to create static sub-FS: %v", err)
	}

	if opts.Cache == nil {
		opts.Cache = cache.NewMemory(cache.DefaultTTL)
	}
	if opts.Answerer == nil {
		opts.Answerer = SampleAnswerer{}
	}
	if opts.Suggester == nil {
		opts.Suggester = CannedSuggester{}
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	h := &Handlers{
		db:        db,
		cache:     opts.Cache,
		answerer:  opts.Answerer,
		suggester: opts.Suggester,
		enricher:  markdown.NewEnricher(opts.Markdown),
		limiter:   newLimiterPool(opts.RateLimitRPS, opts.RateLimitBurst),
		metrics:   newMetrics(opts.Registry),
		renderer:  NewRenderer(templateSub, opts.Version),
		version:   opts.Version,
		now:       opts.Now,
	}

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("POST /api/ask", h.HandleAsk)
	mux.HandleFunc("POST /api/ask_library", h.HandleAskLibrary)
	mux.HandleFunc("POST /api/suggest_questions", h.HandleSuggest)
	mux.HandleFunc("GET /api/history/{user_id}", h.HandleHistory)
	mux.HandleFunc("DELETE /api/history/{user_id}", h.HandleClearHistory)
	mux.HandleFunc("GET /api/health", h.HandleHealth)
	mux.HandleFunc("GET /ws", h.HandleStream)
	mux.HandleFunc("GET /preview/{user_id}", h.HandlePreview)
	mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))

	// Static file server
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return requestID(securityHeaders(mux))
}

// NewServer creates the HTTP server for the development backend.
func NewServer(db *sql.DB, c cache.Cache, cfg *config.Config, version, bind string, port int) *http.Server {
	handler := NewHandler(db, Options{
		Version:        version,
		Cache:          c,
		Markdown:       markdown.Options{ExtraBullets: cfg.ExtraBullets, AllowRawHTML: cfg.AllowRawHTML},
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// newID returns a ULID for responses and stream messages.
func newID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// requestID tags every response with an X-Request-Id, keeping one sent by the caller.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = newID()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Printf("answerflow dev backend running at http://%s (api: /api, stream: /ws)", srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Printf("WARNING: Server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
