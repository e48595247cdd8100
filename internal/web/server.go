// Package web serves the hatch-controller status page, its JSON form and
// the Prometheus scrape endpoint.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/sweeney/hatch-controller/internal/status"
)

// Options configures a Server. Only Addr is required.
type Options struct {
	Addr string
	// Metrics, if set, is mounted at /metrics.
	Metrics http.Handler
	// Refresh, if set, runs before each snapshot so polled values such as
	// the dispatcher state are current.
	Refresh func()
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	refresh    func()
}

// New creates a Server that reads state from the given tracker.
func New(tracker *status.Tracker, o Options) *Server {
	s := &Server{tracker: tracker, refresh: o.Refresh}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /index.html", s.handleIndex)
	mux.HandleFunc("GET /index.json", s.handleJSON)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if o.Metrics != nil {
		mux.Handle("GET /metrics", o.Metrics)
	}

	s.httpServer = &http.Server{
		Addr:              o.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the request multiplexer.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) snapshot() status.Snapshot {
	if s.refresh != nil {
		s.refresh()
	}
	return s.tracker.Snapshot()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.snapshot())
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(status.FormatJSON(s.snapshot()))
}

// handleHealth reports the dispatcher state. It answers 200 whenever the
// daemon is serving, busy or not.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(snap.State.String() + "\n"))
}
