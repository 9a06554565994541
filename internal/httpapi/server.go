// Package httpapi serves on-demand forecasts, recent journaled predictions,
// health and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewired-gh/solarcast/internal/logger"
	"github.com/rewired-gh/solarcast/internal/metrics"
	"github.com/rewired-gh/solarcast/internal/models"
	"github.com/rewired-gh/solarcast/internal/realtime"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 500
)

// Predictor computes a one-shot forecast.
type Predictor interface {
	Predict(ctx context.Context) (*realtime.Snapshot, error)
}

// RecentSource lists journaled predictions, newest first.
type RecentSource interface {
	GetRecentPredictions(device string, limit int) ([]models.Prediction, error)
}

// Server is the HTTP API
type Server struct {
	device    string
	predictor Predictor
	recent    RecentSource
	router    *mux.Router
}

// NewServer builds the router. recent may be nil when the journal is disabled.
func NewServer(device string, predictor Predictor, recent RecentSource) *Server {
	s := &Server{
		device:    device,
		predictor: predictor,
		recent:    recent,
		router:    mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.instrument("predict", s.handlePredict)).Methods("GET")
	s.router.HandleFunc("/api/v1/predict", s.instrument("predict", s.handlePredict)).Methods("GET")
	s.router.HandleFunc("/api/v1/predictions/recent", s.instrument("recent", s.handleRecent)).Methods("GET")
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// Handler returns the router wrapped in access logging and panic recovery.
func (s *Server) Handler(accessLog io.Writer) http.Handler {
	var h http.Handler = s.router
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)
	if accessLog != nil {
		h = handlers.LoggingHandler(accessLog, h)
	}
	return h
}

// Router exposes the bare router for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		metrics.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		metrics.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(rec.status)).Inc()
	}
}

type predictResponse struct {
	SensorData       map[string]any `json:"sensor_data"`
	PredictedDCPower float64        `json:"predicted_dc_power"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("Failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	snap, err := s.predictor.Predict(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, realtime.ErrNoData):
			respondError(w, http.StatusNotFound, "no sensor data available")
		case realtime.Classify(err) == realtime.KindTransient:
			logger.Warn("On-demand prediction failed: %v", err)
			respondError(w, http.StatusBadGateway, err.Error())
		default:
			logger.Error("On-demand prediction failed: %v", err)
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, predictResponse{SensorData: snap.Document, PredictedDCPower: snap.Value})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if s.recent == nil {
		respondError(w, http.StatusNotFound, "prediction journal is disabled")
		return
	}

	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	preds, err := s.recent.GetRecentPredictions(s.device, limit)
	if err != nil {
		logger.Error("Failed to read prediction journal: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to read prediction journal")
		return
	}
	respondJSON(w, http.StatusOK, preds)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "device": s.device})
}
