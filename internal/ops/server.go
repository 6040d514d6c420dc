package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sandwichfarm/herdwatch/internal/models"
)

// BatchSource exposes the current attribution batch
type BatchSource interface {
	Batch() []models.Record
}

// Server is the optional ops listener serving metrics, health and the batch
type Server struct {
	addr    string
	metrics *Metrics
	batch   BatchSource
	diag    *DiagnosticsCollector
	logger  *Logger
	started time.Time

	srv      *http.Server
	listener net.Listener
}

// NewServer creates an ops server bound to addr once Start is called
func NewServer(addr string, metrics *Metrics, batch BatchSource, logger *Logger) *Server {
	if logger == nil {
		logger = Default()
	}
	s := &Server{
		addr:    addr,
		metrics: metrics,
		batch:   batch,
		logger:  logger.WithComponent("ops-server"),
		started: time.Now(),
	}
	s.srv = &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Router builds the route table
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/batch", s.handleBatch).Methods(http.MethodGet)
	r.HandleFunc("/diagnostics", s.handleDiagnostics).Methods(http.MethodGet)
	return r
}

// SetDiagnostics enables the /diagnostics route
func (s *Server) SetDiagnostics(d *DiagnosticsCollector) {
	s.diag = d
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops server failed", "error", err)
		}
	}()

	s.logger.Info("ops server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, useful when listening on port 0
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop shuts the listener down gracefully
func (s *Server) Stop(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleBatch(w http.ResponseWriter, _ *http.Request) {
	records := []models.Record{}
	if s.batch != nil {
		if b := s.batch.Batch(); b != nil {
			records = b
		}
	}
	writeJSON(w, records)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if s.diag == nil {
		http.NotFound(w, r)
		return
	}
	diag := s.diag.CollectAll()
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, diag)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(diag.FormatAsText()))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
