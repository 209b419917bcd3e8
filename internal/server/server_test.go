package server

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/newtonls/internal/config"
	"github.com/copyleftdev/newtonls/internal/logging"
	"github.com/copyleftdev/newtonls/internal/metrics"
)

// testConfig creates a test configuration with default values
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Environment = "test"
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"
	cfg.Logging.Output = "stdout"
	cfg.Optimization.WorkerCount = 3
	return cfg
}

// testLogger creates a test logger
func testLogger(t *testing.T) *logging.Logger {
	t.Helper()

	logger, err := logging.NewLogger(&logging.Config{
		Level:  "info",
		Format: "console",
		Output: "stdout",
	})
	require.NoError(t, err, "Failed to create logger")
	return logger
}

func newTestServer(t *testing.T, opts ...Option) (*Server, http.Handler) {
	t.Helper()

	srv := NewServer(testConfig(t), testLogger(t), opts...)
	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	t.Cleanup(func() {
		_ = srv.Close()
		srv.Wait()
	})
	return srv, r
}

// waitDone blocks until the job's goroutine has returned.
func waitDone(t *testing.T, srv *Server, id string) {
	t.Helper()

	srv.mu.RLock()
	state, ok := srv.optimizations[id]
	srv.mu.RUnlock()
	require.True(t, ok, "unknown job %s", id)

	select {
	case <-state.done:
	case <-time.After(10 * time.Second):
		t.Fatalf("job %s did not finish", id)
	}
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func callRPC(t *testing.T, h http.Handler, method string, params interface{}) rpcResponse {
	t.Helper()

	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var resp rpcResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "2.0", resp.JSONRPC)
	return resp
}

func TestNewServer(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t))
	assert.NotNil(t, srv, "Server should be created")
	assert.Equal(t, 3, cap(srv.workers))

	cfg := testConfig(t)
	cfg.Optimization.WorkerCount = 0
	assert.Equal(t, 1, cap(NewServer(cfg, testLogger(t)).workers))
}

func TestRegisterRoutes(t *testing.T) {
	_, r := newTestServer(t)

	tests := []struct {
		method      string
		path        string
		shouldExist bool
	}{
		{"POST", "/api/v1/optimize", true},
		{"GET", "/api/v1/status/123", true},
		{"DELETE", "/api/v1/optimization/123", true},
		{"GET", "/api/v1/problems", true},
		{"POST", "/rpc", true},
		{"GET", "/healthz", false}, // Not registered by server package
		{"GET", "/nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))

			if tt.shouldExist {
				// Unknown IDs answer with a JSON body rather than the router's 404.
				assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			} else {
				assert.Equal(t, http.StatusNotFound, rr.Code)
			}
		})
	}
}

func TestClose(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t))
	assert.NoError(t, srv.Close(), "Close should not return an error")
	assert.NoError(t, srv.Close(), "Close is idempotent")

	_, err := srv.Start(StartParams{Problem: "square"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRespondWithError(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t))

	tests := []struct {
		name       string
		code       int
		message    string
		id         interface{}
		expectedID interface{}
	}{
		{name: "valid error response", code: codeInvalidParams, message: "invalid input", id: "123", expectedID: "123"},
		{name: "nil id", code: codeServerError, message: "server error", id: nil, expectedID: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.respondWithError(rr, tt.code, tt.message, tt.id)

			// JSON-RPC errors travel in a 200 response.
			assert.Equal(t, http.StatusOK, rr.Code)

			var response map[string]interface{}
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))

			errObj, ok := response["error"].(map[string]interface{})
			require.True(t, ok, "response should contain error object")
			assert.Equal(t, float64(tt.code), errObj["code"])
			assert.Equal(t, tt.message, errObj["message"])
			assert.Equal(t, tt.expectedID, response["id"])
		})
	}
}

func TestJSONRPCOptimizationLifecycle(t *testing.T) {
	srv, h := newTestServer(t)

	resp := callRPC(t, h, "optimization.start", map[string]interface{}{"problem": "quadratic"})
	require.Nil(t, resp.Error)
	var started StartResult
	require.NoError(t, json.Unmarshal(resp.Result, &started))
	assert.Equal(t, StatusPending, started.Status)
	require.NotEmpty(t, started.ID)

	waitDone(t, srv, started.ID)

	// Positional params are accepted as well.
	resp = callRPC(t, h, "optimization.status", []interface{}{map[string]string{"optimization_id": started.ID}})
	require.Nil(t, resp.Error)
	var status StatusResult
	require.NoError(t, json.Unmarshal(resp.Result, &status))

	assert.Equal(t, StatusCompleted, status.Status)
	assert.Equal(t, "quadratic", status.Problem)
	assert.Equal(t, 1.0, status.Progress)
	assert.Equal(t, []float64{10, -10}, status.Start)
	assert.NotEmpty(t, status.EndTime)
	assert.Empty(t, status.Error)

	require.NotNil(t, status.BestSolution)
	require.Len(t, status.BestSolution.Parameters, 2)
	assert.InDelta(t, 0.2, status.BestSolution.Parameters[0], 1e-9)
	assert.InDelta(t, 0.4, status.BestSolution.Parameters[1], 1e-9)
	assert.InDelta(t, -0.3, status.BestSolution.Value, 1e-9)

	require.NotNil(t, status.Report)
	assert.Equal(t, "Converged", status.Report.Status.String())
	assert.Equal(t, status.Iterations, status.Report.Iterations)
	require.Len(t, status.History, status.Iterations)
	assert.Equal(t, 1, status.History[0].Iteration)

	resp = callRPC(t, h, "optimization.cancel", map[string]string{"optimization_id": started.ID})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeConflict, resp.Error.Code)
}

func TestJSONRPCZeroIterationBudget(t *testing.T) {
	srv, h := newTestServer(t)

	resp := callRPC(t, h, "optimization.start", map[string]interface{}{
		"problem":        "square",
		"start":          []float64{10},
		"max_iterations": 0,
	})
	require.Nil(t, resp.Error)
	var started StartResult
	require.NoError(t, json.Unmarshal(resp.Result, &started))
	waitDone(t, srv, started.ID)

	status, err := srv.Status(started.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status.Status)
	require.NotNil(t, status.Report)
	assert.Equal(t, "Maximum number of iterations reached: 0", status.Report.Cause)
	assert.Equal(t, 100.0, status.BestSolution.Value)
	assert.Empty(t, status.History)
}

func TestStatusWithNonFiniteValues(t *testing.T) {
	srv, h := newTestServer(t)

	// Rosenbrock overflows at this start, so the value and the relative
	// gradient are +Inf.
	maxIter := 0
	started, err := srv.Start(StartParams{
		Problem:       "rosenbrock",
		Start:         []float64{1e200, 1e200},
		MaxIterations: &maxIter,
	})
	require.NoError(t, err)
	waitDone(t, srv, started.ID)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/status/"+started.ID, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Status       string `json:"status"`
		BestSolution struct {
			Parameters []float64 `json:"parameters"`
			Value      *float64  `json:"value"`
		} `json:"best_solution"`
		Report struct {
			Status           string   `json:"status"`
			RelativeGradient *float64 `json:"relative_gradient"`
		} `json:"report"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, StatusCompleted, body.Status)
	assert.Equal(t, []float64{1e200, 1e200}, body.BestSolution.Parameters)
	assert.Nil(t, body.BestSolution.Value)
	assert.Equal(t, "Exhausted", body.Report.Status)
	assert.Nil(t, body.Report.RelativeGradient)

	resp := callRPC(t, h, "optimization.status", map[string]string{"optimization_id": started.ID})
	require.Nil(t, resp.Error)
	assert.Contains(t, string(resp.Result), `"value":null`)
}

func TestWriteJSONEncodingFailure(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, http.StatusOK, map[string]float64{"value": math.Inf(1)})

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Contains(t, body["error"], "failed to encode response")
}

func TestJSONRPCErrors(t *testing.T) {
	_, h := newTestServer(t)

	tests := []struct {
		name   string
		method string
		params interface{}
		code   int
	}{
		{"unknown method", "optimization.pause", nil, codeMethodNotFound},
		{"missing params", "optimization.start", nil, codeInvalidParams},
		{"empty positional params", "optimization.start", []interface{}{}, codeInvalidParams},
		{"missing problem", "optimization.start", map[string]interface{}{}, codeInvalidParams},
		{"unknown problem", "optimization.start", map[string]interface{}{"problem": "nope"}, codeInvalidParams},
		{"unknown field", "optimization.start", map[string]interface{}{"problem": "square", "bounds": 1}, codeInvalidParams},
		{"wrong dimension", "optimization.start", map[string]interface{}{"problem": "rosenbrock", "start": []float64{1}}, codeInvalidParams},
		{"negative epsilon", "optimization.start", map[string]interface{}{"problem": "square", "epsilon": -1}, codeInvalidParams},
		{"negative iterations", "optimization.start", map[string]interface{}{"problem": "square", "max_iterations": -1}, codeInvalidParams},
		{"status without id", "optimization.status", map[string]interface{}{}, codeInvalidParams},
		{"status unknown id", "optimization.status", map[string]string{"optimization_id": "opt_0"}, codeNotFound},
		{"cancel unknown id", "optimization.cancel", map[string]string{"optimization_id": "opt_0"}, codeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := callRPC(t, h, tt.method, tt.params)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code, resp.Error.Message)
			assert.Equal(t, float64(1), resp.ID)
		})
	}

	t.Run("parse error", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewBufferString("{")))
		var resp rpcResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, codeParseError, resp.Error.Code)
	})

	t.Run("wrong version", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewBufferString(`{"jsonrpc":"1.0","id":7,"method":"problems.list"}`)))
		var resp rpcResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, codeInvalidRequest, resp.Error.Code)
	})
}

func TestProblemsList(t *testing.T) {
	_, h := newTestServer(t)

	resp := callRPC(t, h, "problems.list", nil)
	require.Nil(t, resp.Error)
	var problems []struct {
		Name  string    `json:"name"`
		Dim   int       `json:"dim"`
		Start []float64 `json:"start"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &problems))
	require.NotEmpty(t, problems)
	for _, p := range problems {
		assert.Len(t, p.Start, p.Dim, p.Name)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/problems", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"rosenbrock"`)
}

func TestRESTLifecycle(t *testing.T) {
	srv, h := newTestServer(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/optimize",
		bytes.NewBufferString(`{"problem":"rosenbrock","start":[-1.2,1],"epsilon":1e-8}`)))
	require.Equal(t, http.StatusAccepted, rr.Code)
	var started StartResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&started))

	waitDone(t, srv, started.ID)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/status/"+started.ID, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var status StatusResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&status))
	assert.Equal(t, StatusCompleted, status.Status)
	assert.Equal(t, 1e-8, status.Epsilon)
	require.NotNil(t, status.BestSolution)
	assert.InDelta(t, 1, status.BestSolution.Parameters[0], 1e-4)
	assert.InDelta(t, 1, status.BestSolution.Parameters[1], 1e-4)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/optimization/"+started.ID, nil))
	assert.Equal(t, http.StatusConflict, rr.Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"bad body", http.MethodPost, "/api/v1/optimize", "{", http.StatusBadRequest},
		{"unknown problem", http.MethodPost, "/api/v1/optimize", `{"problem":"nope"}`, http.StatusBadRequest},
		{"unknown status", http.MethodGet, "/api/v1/status/opt_0", "", http.StatusNotFound},
		{"unknown cancel", http.MethodDelete, "/api/v1/optimization/opt_0", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body)))
			assert.Equal(t, tt.want, rr.Code)

			var body map[string]string
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestCancelPendingJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	collectors, err := metrics.New(reg)
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Optimization.WorkerCount = 1
	srv := NewServer(cfg, testLogger(t), WithMetrics(collectors))
	r := chi.NewRouter()
	srv.RegisterRoutes(r)

	// Occupy the only worker slot so the job stays pending.
	srv.workers <- struct{}{}

	started, err := srv.Start(StartParams{Problem: "wood"})
	require.NoError(t, err)

	status, err := srv.Status(started.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status.Status)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/optimization/"+started.ID, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	<-srv.workers
	waitDone(t, srv, started.ID)

	status, err = srv.Status(started.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, status.Status)
	assert.Nil(t, status.BestSolution)
	assert.Nil(t, status.Report)
	assert.Zero(t, status.Iterations)

	assert.Equal(t, 1.0, testutil.ToFloat64(collectors.Jobs.WithLabelValues(StatusCancelled)))
	assert.Equal(t, 0.0, testutil.ToFloat64(collectors.Running))
	assert.ErrorIs(t, srv.Cancel(started.ID), ErrConflict)
}

func TestCloseCancelsPendingJobs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Optimization.WorkerCount = 1
	srv := NewServer(cfg, testLogger(t))
	srv.workers <- struct{}{}

	started, err := srv.Start(StartParams{Problem: "beale"})
	require.NoError(t, err)

	require.NoError(t, srv.Close())
	srv.Wait()

	status, err := srv.Status(started.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, status.Status)
}

func TestMetricsForCompletedJobs(t *testing.T) {
	reg := prometheus.NewRegistry()
	collectors, err := metrics.New(reg)
	require.NoError(t, err)
	srv, _ := newTestServer(t, WithMetrics(collectors))

	ids := make([]string, 0, 4)
	for _, problem := range []string{"quadratic", "rosenbrock", "beale", "square"} {
		started, err := srv.Start(StartParams{Problem: problem})
		require.NoError(t, err)
		ids = append(ids, started.ID)
	}
	for _, id := range ids {
		waitDone(t, srv, id)
	}

	var wantFunction float64
	for _, id := range ids {
		status, err := srv.Status(id)
		require.NoError(t, err)
		require.Equal(t, StatusCompleted, status.Status, status.Error)
		wantFunction += float64(status.Report.FunctionEvaluations)
	}

	assert.Equal(t, 4.0, testutil.ToFloat64(collectors.Jobs.WithLabelValues(StatusCompleted)))
	assert.Equal(t, 0.0, testutil.ToFloat64(collectors.Running))
	assert.Equal(t, wantFunction, testutil.ToFloat64(collectors.Evaluations.WithLabelValues("function")))
}
