package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"github.com/copyleftdev/newtonls/internal/config"
	"github.com/copyleftdev/newtonls/internal/logging"
	"github.com/copyleftdev/newtonls/internal/metrics"
	"github.com/copyleftdev/newtonls/internal/optimization/objective"
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeNotFound       = -32001
	codeConflict       = -32002
)

// Server implements the HTTP and JSON-RPC server for the optimization service.
// It manages Newton optimization jobs and provides endpoints to start,
// monitor, and cancel them.
type Server struct {
	cfg     *config.Config
	logger  Logger
	metrics *metrics.Collectors

	workers chan struct{}
	quit    chan struct{}
	wg      sync.WaitGroup
	seq     atomic.Uint64

	mu            sync.RWMutex // protects optimizations and closed
	optimizations map[string]*OptimizationState
	closed        bool
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics makes the server record job metrics in c.
func WithMetrics(c *metrics.Collectors) Option {
	return func(s *Server) {
		s.metrics = c
	}
}

// NewServer creates a new server instance with the given config and logger.
// At most cfg.Optimization.WorkerCount jobs run at the same time; the others
// stay pending.
func NewServer(cfg *config.Config, logger Logger, opts ...Option) *Server {
	workers := cfg.Optimization.WorkerCount
	if workers < 1 {
		workers = 1
	}
	s := &Server{
		cfg:           cfg,
		logger:        logger,
		workers:       make(chan struct{}, workers),
		quit:          make(chan struct{}),
		optimizations: make(map[string]*OptimizationState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) RegisterRoutes(r chi.Router) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/optimize", s.handleOptimize)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/optimization/{id}", s.handleCancel)
		r.Get("/problems", s.handleProblems)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// Start validates p and schedules a new optimization job.
func (s *Server) Start(p StartParams) (StartResult, error) {
	state, err := s.newJob(p)
	if err != nil {
		return StartResult{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return StartResult{}, ErrClosed
	}
	s.optimizations[state.ID] = state
	s.wg.Add(1)
	s.mu.Unlock()

	go s.runOptimization(state)

	s.logger.Info("Optimization scheduled", map[string]interface{}{
		"optimization_id": state.ID,
		"problem":         state.Problem,
	})
	return StartResult{ID: state.ID, Status: StatusPending}, nil
}

// Status returns a snapshot of the job with the given id.
func (s *Server) Status(id string) (StatusResult, error) {
	if id == "" {
		return StatusResult{}, fmt.Errorf("%w: optimization_id is required", ErrInvalidParams)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	state, exists := s.optimizations[id]
	if !exists {
		return StatusResult{}, ErrNotFound
	}
	return state.snapshot(), nil
}

// Cancel marks a pending or running job as cancelled. A running Newton
// iteration is not interrupted; its result is discarded when it returns.
func (s *Server) Cancel(id string) error {
	if id == "" {
		return fmt.Errorf("%w: optimization_id is required", ErrInvalidParams)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.optimizations[id]
	if !exists {
		return ErrNotFound
	}
	if state.terminal() {
		return fmt.Errorf("%w: status is %s", ErrConflict, state.Status)
	}

	s.cancelLocked(state)
	s.logger.Info("Optimization cancelled", map[string]interface{}{
		"optimization_id": id,
	})
	return nil
}

func (s *Server) cancelLocked(state *OptimizationState) {
	if state.Status == StatusPending {
		// Never started, so the worker will not report it.
		s.metrics.JobDiscarded(StatusCancelled)
	}
	state.finish(StatusCancelled)
	close(state.cancel)
}

// Problems lists the problems jobs can be started on.
func (s *Server) Problems() []objective.Entry {
	return objective.Entries()
}

// Close cancels all unfinished jobs and rejects new ones. Jobs inside a
// Newton iteration keep running until it returns; use Wait to block until
// they have.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.quit)
	for _, state := range s.optimizations {
		if !state.terminal() {
			s.cancelLocked(state)
		}
	}
	return nil
}

// Wait blocks until every job goroutine has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, codeParseError, "Parse error", nil)
		return
	}

	if request.JSONRPC != "2.0" || request.Method == "" {
		s.respondWithError(w, codeInvalidRequest, "Invalid Request", request.ID)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "optimization.start":
		var p StartParams
		if err = decodeParams(request.Params, &p); err == nil {
			result, err = s.Start(p)
		}
	case "optimization.status":
		var p IDParams
		if err = decodeParams(request.Params, &p); err == nil {
			result, err = s.Status(p.ID)
		}
	case "optimization.cancel":
		var p IDParams
		if err = decodeParams(request.Params, &p); err == nil {
			if err = s.Cancel(p.ID); err == nil {
				result = StartResult{ID: p.ID, Status: StatusCancelled}
			}
		}
	case "problems.list":
		result = s.Problems()
	default:
		s.respondWithError(w, codeMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		s.respondWithError(w, rpcCode(err), err.Error(), request.ID)
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		s.respondWithError(w, codeServerError, fmt.Sprintf("failed to encode result: %v", err), request.ID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  json.RawMessage(data),
	})
}

// decodeParams accepts either a params object or a positional array whose
// first element is the params object.
func decodeParams(raw json.RawMessage, v interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var positional []json.RawMessage
		if err := json.Unmarshal(raw, &positional); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		if len(positional) == 0 {
			raw = nil
		} else {
			raw = positional[0]
		}
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fmt.Errorf("%w: missing required parameters", ErrInvalidParams)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

func rpcCode(err error) int {
	switch {
	case errors.Is(err, ErrInvalidParams):
		return codeInvalidParams
	case errors.Is(err, ErrNotFound):
		return codeNotFound
	case errors.Is(err, ErrConflict):
		return codeConflict
	default:
		return codeServerError
	}
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("JSON-RPC error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	})
}

// writeJSON encodes v before writing the header. An encoding failure is
// answered with a 500.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = json.Marshal(map[string]string{
			"error": fmt.Sprintf("failed to encode response: %v", err),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatus(err), map[string]interface{}{
		"error": err.Error(),
	})
}

// handleOptimize handles POST /api/v1/optimize
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var p StartParams
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body: %v", ErrInvalidParams, err))
		return
	}

	result, err := s.Start(p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

// handleStatus handles GET /api/v1/status/{id}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	result, err := s.Status(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCancel handles DELETE /api/v1/optimization/{id}
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Cancel(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StartResult{ID: id, Status: StatusCancelled})
}

// handleProblems handles GET /api/v1/problems
func (s *Server) handleProblems(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Problems())
}
