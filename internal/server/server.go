package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/san-kum/regime/internal/config"
	"github.com/san-kum/regime/internal/grid"
	"github.com/san-kum/regime/internal/offload"
	"github.com/san-kum/regime/internal/wire"
)

const (
	contentBinary = "application/octet-stream"
	contentJSON   = "application/json"
	maxBody       = 1 << 16
)

// Channel is the part of offload.Channel the server needs.
type Channel interface {
	Post(spec grid.Spec) error
	Replies() <-chan offload.Reply
	Stats() offload.Stats
}

type Server struct {
	channel    Channel
	evaluators []string
	logger     *slog.Logger
	corr       *correlator
	router     *chi.Mux
	httpServer *http.Server
}

// New wires routes onto a started channel and begins consuming its replies.
// evaluators is only listed, the channel's evaluator is fixed.
func New(ch Channel, evaluators []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		channel:    ch,
		evaluators: evaluators,
		logger:     logger,
		corr:       newCorrelator(ch, logger),
	}
	go s.corr.run(ch.Replies())

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/grid", s.handleGrid)
		r.Get("/presets", s.handlePresets)
		r.Get("/presets/{name}", s.handlePreset)
		r.Get("/evaluators", s.handleEvaluators)
	})
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(logServerStarting, "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	s.logger.Info(logServerStopped)
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug(logRequest,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// GridResult is the JSON form of a response.
type GridResult struct {
	Seq       uint64         `json:"seq"`
	Columns   uint32         `json:"cols"`
	Rows      uint32         `json:"rows"`
	ElapsedMs float64        `json:"elapsed_ms"`
	Raster    []byte         `json:"raster"`
	Histogram map[string]int `json:"histogram"`
}

type errorBody struct {
	Seq   uint64 `json:"seq"`
	Error string `json:"error"`
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var (
		params    grid.Params
		clientSeq uint64
	)
	binaryIn := strings.HasPrefix(r.Header.Get("Content-Type"), contentBinary)
	if binaryIn {
		spec, err := wire.DecodeRequest(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		params, clientSeq = spec.Params, spec.Seq
	} else if err := json.Unmarshal(body, &params); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	jsonOut := wantsJSON(r, binaryIn)

	seq, replyCh, err := s.corr.submit(params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	var reply offload.Reply
	select {
	case reply = <-replyCh:
	case <-r.Context().Done():
		s.corr.cancel(seq, replyCh)
		return
	}
	defer reply.Release()

	if reply.Failure != nil {
		reply.Failure.Seq = clientSeq
		s.writeFailure(w, reply.Failure, jsonOut)
		return
	}

	resp := reply.Response
	resp.Seq = clientSeq
	if jsonOut {
		s.writeJSON(w, http.StatusOK, toResult(resp))
		return
	}
	w.Header().Set("Content-Type", contentBinary)
	if err := wire.WriteResponse(w, resp); err != nil {
		s.logger.Warn(logEncodeFailed, "error", err)
	}
}

func wantsJSON(r *http.Request, binaryIn bool) bool {
	accept := r.Header.Get("Accept")
	switch {
	case strings.Contains(accept, contentJSON):
		return true
	case strings.Contains(accept, contentBinary):
		return false
	default:
		return !binaryIn
	}
}

func toResult(resp *offload.Response) GridResult {
	hist := make(map[string]int, len(grid.Codes))
	for code, n := range grid.Histogram(resp.Raster) {
		hist[code.String()] = n
	}
	return GridResult{
		Seq:       resp.Seq,
		Columns:   resp.Columns,
		Rows:      resp.Rows,
		ElapsedMs: resp.ElapsedMillis(),
		Raster:    resp.Raster,
		Histogram: hist,
	}
}

func failureStatus(err error) int {
	switch {
	case errors.Is(err, grid.ErrInvalidSpec):
		return http.StatusUnprocessableEntity
	case errors.Is(err, grid.ErrAllocation):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, offload.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, f *offload.Failure, jsonOut bool) {
	status := failureStatus(f.Err)
	if jsonOut {
		s.writeJSON(w, status, errorBody{Seq: f.Seq, Error: f.Err.Error()})
		return
	}
	w.Header().Set("Content-Type", contentBinary)
	w.WriteHeader(status)
	if err := wire.WriteFailure(w, f); err != nil {
		s.logger.Warn(logEncodeFailed, "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(logEncodeFailed, "error", err)
	}
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, config.Presets)
}

func (s *Server) handlePreset(w http.ResponseWriter, r *http.Request) {
	p, err := config.GetPreset(chi.URLParam(r, "name"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleEvaluators(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.evaluators)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.channel.Stats()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"pending":      st.Pending,
		"waiting":      s.corr.pending(),
		"evaluated":    st.Evaluated,
		"failed":       st.Failed,
		"unrecognized": st.Unrecognized,
	})
}
