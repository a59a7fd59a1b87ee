package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apperrors "carejoa-matching/internal/common/errors"
	"carejoa-matching/internal/matching"
	"carejoa-matching/internal/models"
)

// weightAdmin is the writer side of the weight profile store.
type weightAdmin interface {
	Trigger(ctx context.Context) (*matching.AdaptationOutcome, error)
	Rollback(ctx context.Context, version int64) (*matching.AdaptationOutcome, error)
}

type profileReader interface {
	Active() *models.WeightProfile
	History() []*models.WeightProfile
}

// readinessCheck reports whether one dependency is usable.
type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

type adminServer struct {
	weights  weightAdmin
	profiles profileReader
	token    string
	checks   []readinessCheck
	log      *zap.Logger
	now      func() time.Time
}

type adaptRequest struct {
	RollbackVersion *int64 `json:"rollbackVersion"`
}

type weightsResponse struct {
	Active  *models.WeightProfile   `json:"active"`
	History []*models.WeightProfile `json:"history"`
}

func (s *adminServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/admin/weights/adapt", s.requireToken(s.handleAdapt))
	mux.HandleFunc("/admin/weights", s.requireToken(s.handleWeights))
	return mux
}

func (s *adminServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   s.now().Format(time.RFC3339),
	})
}

func (s *adminServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failed := map[string]string{}
	for _, c := range s.checks {
		if err := c.check(ctx); err != nil {
			failed[c.name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not_ready",
			"failed": failed,
		})
		return
	}
	body := map[string]interface{}{
		"status": "ready",
		"time":   s.now().Format(time.RFC3339),
	}
	if p := s.profiles.Active(); p != nil {
		body["profileVersion"] = p.Version
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *adminServer) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			writeError(w, apperrors.NewAuthenticationError("admin endpoints are disabled"))
			return
		}
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			writeError(w, apperrors.NewAuthenticationError("invalid admin token"))
			return
		}
		next(w, r)
	}
}

func (s *adminServer) handleAdapt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req adaptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, apperrors.NewInputParsingError(err))
		return
	}

	var (
		out *matching.AdaptationOutcome
		err error
	)
	if req.RollbackVersion != nil {
		out, err = s.weights.Rollback(r.Context(), *req.RollbackVersion)
	} else {
		out, err = s.weights.Trigger(r.Context())
	}
	if err != nil {
		s.log.Error("Admin weight operation failed", zap.Error(err))
		writeError(w, err)
		return
	}

	s.log.Info("Admin weight operation",
		zap.Bool("rollback", req.RollbackVersion != nil),
		zap.Bool("published", out.Published),
		zap.Int64("version", out.Version),
	)
	writeJSON(w, http.StatusOK, out)
}

func (s *adminServer) handleWeights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, weightsResponse{
		Active:  s.profiles.Active(),
		History: s.profiles.History(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperrors.HTTPStatus(err), apperrors.ToStandardError(err))
}
