package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/efl/internal/config"
	"github.com/sells-group/efl/internal/dataset"
	"github.com/sells-group/efl/internal/mip/miptest"
	"github.com/sells-group/efl/internal/model"
	"github.com/sells-group/efl/internal/optimize"
	"github.com/sells-group/efl/internal/store"
)

const validBody = `{
	"origins": {"header": ["id", "population"], "rows": [["a", "10"], ["b", "10"], ["c", "0"]]},
	"destinations": {"header": ["id", "capacity"], "rows": [["d1", ""], ["d2", ""]]},
	"distances": {"header": ["origin", "destination", "distance"], "rows": [
		["a", "d1", "1"], ["a", "d2", "5"], ["b", "d1", "2"], ["b", "d2", "5"],
		["c", "d1", "1"], ["c", "d2", "1"]
	]},
	"params": {"variant": "ede", "num_locations": 1},
	"capacity": 100,
	"save": true
}`

type stubRunner struct {
	res    *model.Result
	err    error
	data   optimize.Data
	params model.Params
}

func (s *stubRunner) Run(_ context.Context, data optimize.Data, p model.Params) (*model.Result, error) {
	s.data = data
	s.params = p
	return s.res, s.err
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := NewServer(config.ServerConfig{}, config.ModelConfig{}, &stubRunner{}, nil).Router()
	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestOptimize_EndToEnd(t *testing.T) {
	st := newTestStore(t)
	opt := optimize.New(config.SolverConfig{}, &miptest.OpenSet{})
	h := NewServer(config.ServerConfig{}, config.ModelConfig{}, opt, st).Router()

	rec := do(t, h, http.MethodPost, "/v1/optimize", validBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp OptimizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RunID)
	require.NotNil(t, resp.Result)
	assert.Equal(t, []string{"d1"}, resp.Result.Summary.OpenedDestinations)
	assert.Equal(t, "100", resp.Result.Extra["capacity"])
	assert.Contains(t, resp.Result.Warnings, "1 origins with population = 0 removed")
	require.Len(t, resp.Result.Assignments, 2)

	rec = do(t, h, http.MethodGet, "/v1/runs/"+resp.RunID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var run store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, model.MinimizeEDE, run.Variant)
	require.NotNil(t, run.Result)
	assert.Equal(t, resp.Result.Assignments, run.Result.Assignments)

	rec = do(t, h, http.MethodGet, "/v1/runs?variant=ede&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)

	rec = do(t, h, http.MethodGet, "/v1/runs?variant=coverage", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestOptimize_PassesValidatedTables(t *testing.T) {
	runner := &stubRunner{res: &model.Result{}}
	h := NewServer(config.ServerConfig{}, config.ModelConfig{}, runner, nil).Router()

	body := strings.Replace(validBody, `"save": true`, `"save": false`, 1)
	rec := do(t, h, http.MethodPost, "/v1/optimize", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Len(t, runner.data.Origins, 2)
	require.Len(t, runner.data.Destinations, 2)
	assert.InDelta(t, 100.0, *runner.data.Destinations[0].Capacity, 0)
	assert.Len(t, runner.data.Lookup, 6)
}

func TestOptimize_ModelDefaults(t *testing.T) {
	runner := &stubRunner{res: &model.Result{}}
	defaults := config.ModelConfig{Aversion: -1, MinPercent: 0.5, DefaultCapacity: 40}
	h := NewServer(config.ServerConfig{}, defaults, runner, nil).Router()

	body := strings.Replace(validBody, `"save": true`, `"save": false`, 1)
	body = strings.Replace(body, `"capacity": 100,`, "", 1)
	rec := do(t, h, http.MethodPost, "/v1/optimize", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.InDelta(t, -1.0, runner.params.Aversion, 0)
	assert.InDelta(t, 0.5, runner.params.MinPercent, 0)
	assert.Equal(t, 1, runner.params.NumLocations)
	require.Len(t, runner.data.Destinations, 2)
	assert.InDelta(t, 40.0, *runner.data.Destinations[0].Capacity, 0)

	body = strings.Replace(body, `"num_locations": 1}`, `"num_locations": 1, "aversion": 0, "min_percent": 0}`, 1)
	rec = do(t, h, http.MethodPost, "/v1/optimize", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Zero(t, runner.params.Aversion)
	assert.Zero(t, runner.params.MinPercent)
}

func TestOptimize_EndToEndDefaultAversion(t *testing.T) {
	opt := optimize.New(config.SolverConfig{}, &miptest.OpenSet{})
	h := NewServer(config.ServerConfig{}, config.ModelConfig{Aversion: -1}, opt, nil).Router()

	body := strings.Replace(validBody, `"save": true`, `"save": false`, 1)
	rec := do(t, h, http.MethodPost, "/v1/optimize", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp OptimizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	s := resp.Result.Summary
	assert.InDelta(t, -1.0, resp.Result.Params.Aversion, 0)
	assert.Equal(t, "openset", resp.Result.Params.Solver)
	require.NotNil(t, s.EDEOut)
	assert.Greater(t, *s.EDEOut, *s.MeanDistanceOut)
}

func TestOptimize_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"bad json", `{"origins":`, nil, http.StatusBadRequest},
		{"invalid table", strings.Replace(validBody, `"population"]`, `"pop"]`, 1), nil, http.StatusBadRequest},
		{"invalid params", validBody, &model.InvalidParamsError{Field: "NumLocations", Reason: "must be at least 1"}, http.StatusBadRequest},
		{"missing distances", validBody, &model.MissingDistanceError{Pairs: [][2]string{{"a", "d1"}}}, http.StatusBadRequest},
		{"infeasible", validBody, model.Infeasiblef("radius excludes 1 origins"), http.StatusUnprocessableEntity},
		{"solver", validBody, &model.SolverError{Backend: "scip", Status: model.StatusInfeasible}, http.StatusUnprocessableEntity},
		{"degenerate", validBody, model.ErrDegenerateDistances, http.StatusUnprocessableEntity},
		{"internal", validBody, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewServer(config.ServerConfig{}, config.ModelConfig{}, &stubRunner{err: tt.err}, nil).Router()
			rec := do(t, h, http.MethodPost, "/v1/optimize", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			var e errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestOptimize_SaveWithoutStore(t *testing.T) {
	h := NewServer(config.ServerConfig{}, config.ModelConfig{}, &stubRunner{res: &model.Result{}}, nil).Router()
	rec := do(t, h, http.MethodPost, "/v1/optimize", validBody)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOptimize_BodyLimit(t *testing.T) {
	h := NewServer(config.ServerConfig{MaxBodyMB: 1}, config.ModelConfig{}, &stubRunner{res: &model.Result{}}, nil).Router()
	body := `{"params": {"solver": "` + strings.Repeat("x", 2<<20) + `"}}`
	rec := do(t, h, http.MethodPost, "/v1/optimize", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRuns_Errors(t *testing.T) {
	h := NewServer(config.ServerConfig{}, config.ModelConfig{}, &stubRunner{}, nil).Router()
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/v1/runs", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/v1/runs/x", "").Code)

	h = NewServer(config.ServerConfig{}, config.ModelConfig{}, &stubRunner{}, newTestStore(t)).Router()
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/runs/unknown", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/runs?limit=-1", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/runs?variant=fastest", "").Code)
}

func TestCORSPreflight(t *testing.T) {
	h := NewServer(config.ServerConfig{AllowedOrigins: []string{"https://maps.example.org"}}, config.ModelConfig{}, &stubRunner{}, nil).Router()

	req := httptest.NewRequest(http.MethodOptions, "/v1/optimize", nil)
	req.Header.Set("Origin", "https://maps.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://maps.example.org", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor_Wrapped(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(&dataset.ValidationError{File: "origins", Problems: []string{"x"}}))
	assert.Equal(t, http.StatusNotFound, statusFor(store.ErrNotFound))
}
