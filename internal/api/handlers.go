package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/efl/internal/dataset"
	"github.com/sells-group/efl/internal/model"
	"github.com/sells-group/efl/internal/optimize"
	"github.com/sells-group/efl/internal/store"
)

// OptimizeRequest is the body of POST /v1/optimize. The three tables use
// the same columns as the CSV inputs.
type OptimizeRequest struct {
	Origins      dataset.Table `json:"origins"`
	Destinations dataset.Table `json:"destinations"`
	Distances    dataset.Table `json:"distances"`
	Params       model.Params  `json:"params"`
	// Capacity fills destinations without a capacity value.
	Capacity *float64 `json:"capacity,omitempty"`
	Save     bool     `json:"save,omitempty"`
}

// OptimizeResponse wraps the result with the saved run id, if any.
type OptimizeResponse struct {
	RunID  string        `json:"run_id,omitempty"`
	Result *model.Result `json:"result"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) optimize(w http.ResponseWriter, r *http.Request) {
	maxBody := s.cfg.MaxBodyMB
	if maxBody <= 0 {
		maxBody = 64
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBody<<20)

	req := s.newRequest()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &requestError{msg: "invalid request body: " + err.Error()})
		return
	}

	data, warnings, err := decodeTables(&req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.runner.Run(r.Context(), data, req.Params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	res.Warnings = append(warnings, res.Warnings...)
	if req.Capacity != nil {
		if res.Extra == nil {
			res.Extra = map[string]string{}
		}
		res.Extra["capacity"] = strconv.FormatFloat(*req.Capacity, 'g', -1, 64)
	}

	resp := OptimizeResponse{Result: res}
	if req.Save {
		if s.store == nil {
			s.writeError(w, errNoStore)
			return
		}
		run, err := s.store.SaveRun(r.Context(), res)
		if err != nil {
			s.writeError(w, err)
			return
		}
		resp.RunID = run.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// newRequest returns a request pre-filled with the model defaults. Keys
// present in the body overwrite them.
func (s *Server) newRequest() OptimizeRequest {
	req := OptimizeRequest{Params: model.Params{
		Aversion:   s.defaults.Aversion,
		MinPercent: s.defaults.MinPercent,
	}}
	if s.defaults.DefaultCapacity > 0 {
		req.Capacity = model.Float(s.defaults.DefaultCapacity)
	}
	return req
}

func decodeTables(req *OptimizeRequest) (optimize.Data, []string, error) {
	req.Origins.Name = "origins"
	req.Destinations.Name = "destinations"
	req.Distances.Name = "distances"

	var warnings []string
	origins, w, err := dataset.ValidateOrigins(&req.Origins)
	warnings = append(warnings, w...)
	if err != nil {
		return optimize.Data{}, warnings, err
	}
	dests, w, err := dataset.ValidateDestinations(&req.Destinations, req.Capacity)
	warnings = append(warnings, w...)
	if err != nil {
		return optimize.Data{}, warnings, err
	}
	lookup, w, err := dataset.ValidateDistances(&req.Distances)
	warnings = append(warnings, w...)
	if err != nil {
		return optimize.Data{}, warnings, err
	}
	return optimize.Data{Origins: origins, Destinations: dests, Lookup: lookup}, warnings, nil
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, errNoStore)
		return
	}

	var filter store.RunFilter
	q := r.URL.Query()
	if v := q.Get("variant"); v != "" {
		variant, err := model.ParseVariant(v)
		if err != nil {
			s.writeError(w, &requestError{msg: err.Error()})
			return
		}
		filter.Variant = &variant
	}
	filter.Status = model.SolveStatus(q.Get("status"))
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				s.writeError(w, &requestError{msg: name + " must be a non-negative integer"})
				return
			}
			*dst = n
		}
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, errNoStore)
		return
	}
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// requestError marks a malformed request.
type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

var errNoStore = eris.New("run history is not configured")

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		reqErr     *requestError
		valErr     *dataset.ValidationError
		paramsErr  *model.InvalidParamsError
		missingErr *model.MissingDistanceError
		infErr     *model.InfeasibleError
		solverErr  *model.SolverError
	)
	switch {
	case errors.As(err, &reqErr), errors.As(err, &valErr),
		errors.As(err, &paramsErr), errors.As(err, &missingErr):
		return http.StatusBadRequest
	case errors.As(err, &infErr), errors.As(err, &solverErr),
		errors.Is(err, model.ErrDegenerateDistances):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errNoStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("api: request failed", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
