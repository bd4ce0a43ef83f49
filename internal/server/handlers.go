package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sells-group/anomaly-cli/internal/loader"
	"github.com/sells-group/anomaly-cli/internal/lof"
	"github.com/sells-group/anomaly-cli/internal/model"
	"github.com/sells-group/anomaly-cli/internal/pipeline"
)

type observationRequest struct {
	Timestamp string   `json:"timestamp" validate:"required"`
	Value     *float64 `json:"value" validate:"required"`
}

type detectRequest struct {
	Observations     []observationRequest `json:"observations" validate:"required,min=1,dive"`
	NeighborhoodSize *int                 `json:"neighborhood_size,omitempty"`
	Contamination    *float64             `json:"contamination,omitempty"`
	TimestampLayout  string               `json:"timestamp_layout,omitempty"`
}

type errorResponse struct {
	Error     string   `json:"error"`
	Kind      string   `json:"kind"`
	Details   []string `json:"details,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req detectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.recordFailure(outcomeInvalidRequest)
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "invalid_request", "request body too large", nil)
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid request body", nil)
		return
	}

	if err := s.validate.Struct(req); err != nil {
		s.metrics.recordFailure(outcomeInvalidRequest)
		writeError(w, r, http.StatusBadRequest, "invalid_request", "request validation failed", validationDetails(err))
		return
	}

	if s.opts.MaxPoints > 0 && len(req.Observations) > s.opts.MaxPoints {
		s.metrics.recordFailure(outcomeInvalidRequest)
		writeError(w, r, http.StatusRequestEntityTooLarge, "invalid_request", "too many observations", nil)
		return
	}

	series, err := toSeries(req)
	if err != nil {
		s.metrics.recordFailure(outcomeInvalidRequest)
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	params := s.opts.Defaults
	if req.NeighborhoodSize != nil {
		params.NeighborhoodSize = *req.NeighborhoodSize
	}
	if req.Contamination != nil {
		params.Contamination = *req.Contamination
	}

	if limit := s.opts.MaxNeighborhoodSize; limit > 0 && params.NeighborhoodSize > limit {
		s.writeDetectError(w, r, &lof.InvalidParameterError{
			Name:   "neighborhood_size",
			Value:  params.NeighborhoodSize,
			Reason: fmt.Sprintf("must be <= %d", limit),
		})
		return
	}

	start := time.Now()
	res, err := pipeline.Detect(r.Context(), series, params)
	if err != nil {
		s.writeDetectError(w, r, err)
		return
	}
	s.metrics.recordSuccess(res.Statistics.Count, res.Statistics.AnomalyCount, time.Since(start))

	doc := res.Document()
	doc.Observations = res.Scored
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) writeDetectError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, lof.ErrInvalidParameter):
		s.metrics.recordFailure(outcomeInvalidParameter)
		writeError(w, r, http.StatusBadRequest, outcomeInvalidParameter, err.Error(), nil)
	case errors.Is(err, lof.ErrInsufficientData):
		s.metrics.recordFailure(outcomeInsufficientData)
		writeError(w, r, http.StatusUnprocessableEntity, outcomeInsufficientData, err.Error(), nil)
	default:
		s.metrics.recordFailure(outcomeError)
		zap.L().Error("server: detection failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, outcomeError, "detection failed", nil)
	}
}

// toSeries converts request observations, keeping their order.
func toSeries(req detectRequest) (*model.Series, error) {
	series := &model.Series{
		Source:       "request",
		Observations: make([]model.Observation, len(req.Observations)),
	}
	for i, o := range req.Observations {
		ts, err := loader.ParseTimestamp(o.Timestamp, req.TimestampLayout)
		if err != nil {
			return nil, &loader.ParseError{
				Source: series.Source,
				Row:    i + 1,
				Field:  "timestamp",
				Value:  o.Timestamp,
				Reason: err.Error(),
			}
		}
		series.Observations[i] = model.Observation{Timestamp: ts, Value: *o.Value, Row: i + 1}
	}
	return series, nil
}

func validationDetails(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fe.Namespace()+": failed '"+fe.Tag()+"'")
	}
	return details
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, kind, msg string, details []string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Kind:      kind,
		Details:   details,
		RequestID: middleware.GetReqID(r.Context()),
	})
}
