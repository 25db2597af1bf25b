// Package devserver serves the dist tree and pushes reload signals to
// browsers over Server-Sent Events.
package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Options configures a Server.
type Options struct {
	Root      string // directory served as "/"
	Addr      string // host:port; port 0 picks a free port
	Inject    bool   // add the reload client to HTML responses
	Heartbeat time.Duration
	Logger    zerolog.Logger
}

// Status is the JSON body of the status endpoint.
type Status struct {
	Root       string    `json:"root"`
	Clients    int       `json:"clients"`
	Reloads    int64     `json:"reloads"`
	LastReload time.Time `json:"last_reload,omitzero"`
	LastReason string    `json:"last_reason,omitempty"`
}

// Server is the static dev server with live reload.
type Server struct {
	opts   Options
	hub    *hub
	router chi.Router

	mu         sync.Mutex
	reloads    int64
	lastReload time.Time
	lastReason string
	addr       string
	ready      chan struct{}
}

// New creates a Server. It does not touch the filesystem, so it can be
// created before the first build.
func New(opts Options) *Server {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 30 * time.Second
	}
	s := &Server{
		opts:  opts,
		hub:   newHub(),
		ready: make(chan struct{}),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(middleware.NoCache)

	r.Get(reloadPath, s.handleEvents)
	r.Get(statusPath, s.handleStatus)
	r.Get(clientPath, s.handleClient)
	r.Get("/*", s.handleStatic)
	r.Head("/*", s.handleStatic)
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Reload tells every connected client to refresh and returns how many were
// connected.
func (s *Server) Reload(reason string) int {
	s.mu.Lock()
	s.reloads++
	s.lastReload = time.Now()
	s.lastReason = reason
	s.mu.Unlock()

	n := s.hub.broadcast(reason)
	s.opts.Logger.Debug().Str("reason", reason).Int("clients", n).Msg("broadcast")
	return n
}

// Status reports connected clients and reload history.
func (s *Server) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Root:       s.opts.Root,
		Clients:    s.hub.count(),
		Reloads:    s.reloads,
		LastReload: s.lastReload,
		LastReason: s.lastReason,
	}
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound address; empty before Ready.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("dev server listen on %s: %w", s.opts.Addr, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()
	close(s.ready)

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.opts.Logger.Info().Str("addr", "http://"+s.Addr()).Str("root", s.opts.Root).Msg("dev server listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("dev server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("dev server shutdown: %w", err)
	}
	return nil
}

// handleEvents streams reload events until the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "retry: 1000\n\n")
	if err := rc.Flush(); err != nil {
		return
	}

	ch := s.hub.subscribe()
	defer s.hub.unsubscribe(ch)

	heartbeat := time.NewTicker(s.opts.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case reason := <-ch:
			fmt.Fprintf(w, "event: reload\ndata: %s\n\n", strings.ReplaceAll(reason, "\n", " "))
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Status())
}

func (s *Server) handleClient(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	fmt.Fprint(w, clientScript)
}

// handleStatic serves files from the root. HTML documents get the reload
// client injected; everything else goes through http.FileServer.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	fileServer := http.FileServer(http.Dir(s.opts.Root))
	if !s.opts.Inject {
		fileServer.ServeHTTP(w, r)
		return
	}

	urlPath := path.Clean("/" + r.URL.Path)
	full := filepath.Join(s.opts.Root, filepath.FromSlash(urlPath))

	info, err := os.Stat(full)
	if err == nil && info.IsDir() {
		if !strings.HasSuffix(r.URL.Path, "/") {
			fileServer.ServeHTTP(w, r) // redirects to the trailing-slash form
			return
		}
		full = filepath.Join(full, "index.html")
		info, err = os.Stat(full)
	}
	if err != nil || info.IsDir() || !isHTML(full) {
		fileServer.ServeHTTP(w, r)
		return
	}

	data, err := os.ReadFile(full)
	if err != nil {
		fileServer.ServeHTTP(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, filepath.Base(full), info.ModTime(), bytes.NewReader(inject(data)))
}

func isHTML(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return true
	}
	return false
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.opts.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
