package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "carejoa-matching/internal/common/errors"
	"carejoa-matching/internal/matching"
	"carejoa-matching/internal/models"
)

// ==========================================
// Test doubles
// ==========================================

type MockWeightAdmin struct {
	mock.Mock
}

func (m *MockWeightAdmin) Trigger(ctx context.Context) (*matching.AdaptationOutcome, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*matching.AdaptationOutcome), args.Error(1)
}

func (m *MockWeightAdmin) Rollback(ctx context.Context, version int64) (*matching.AdaptationOutcome, error) {
	args := m.Called(ctx, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*matching.AdaptationOutcome), args.Error(1)
}

type fixedProfiles struct {
	history []*models.WeightProfile
}

func (f fixedProfiles) Active() *models.WeightProfile { return f.history[len(f.history)-1] }

func (f fixedProfiles) History() []*models.WeightProfile { return f.history }

func newTestServer(t *testing.T, admin weightAdmin, checks ...readinessCheck) *adminServer {
	t.Helper()
	return &adminServer{
		weights:  admin,
		profiles: fixedProfiles{history: []*models.WeightProfile{
			{Version: 1, Weights: map[models.SubScoreName]float64{models.SubScoreDistance: 0.4}},
			{Version: 2, Weights: map[models.SubScoreName]float64{models.SubScoreDistance: 0.38}},
		}},
		token:  "secret",
		checks: checks,
		log:    zaptest.NewLogger(t),
		now:    func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) },
	}
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ==========================================
// Health and readiness
// ==========================================

func TestHealth(t *testing.T) {
	h := newTestServer(t, &MockWeightAdmin{}).routes()

	rec := do(t, h, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	assert.Contains(t, rec.Body.String(), "2026-05-01T09:00:00Z")
}

func TestReady(t *testing.T) {
	ok := readinessCheck{name: "postgres", check: func(context.Context) error { return nil }}
	down := readinessCheck{name: "redis", check: func(context.Context) error { return errors.New("connection refused") }}

	t.Run("all dependencies up", func(t *testing.T) {
		rec := do(t, newTestServer(t, &MockWeightAdmin{}, ok).routes(), http.MethodGet, "/ready", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ready", body["status"])
		assert.EqualValues(t, 2, body["profileVersion"])
	})

	t.Run("dependency down", func(t *testing.T) {
		rec := do(t, newTestServer(t, &MockWeightAdmin{}, ok, down).routes(), http.MethodGet, "/ready", "", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "connection refused")
		assert.NotContains(t, rec.Body.String(), "postgres")
	})
}

// ==========================================
// Admin weight routes
// ==========================================

func TestAdminToken(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		server string
	}{
		{name: "missing token", token: "", server: "secret"},
		{name: "wrong token", token: "guess", server: "secret"},
		{name: "admin disabled", token: "secret", server: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admin := &MockWeightAdmin{}
			s := newTestServer(t, admin)
			s.token = tt.server

			rec := do(t, s.routes(), http.MethodPost, "/admin/weights/adapt", tt.token, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), string(apperrors.ErrCodeAuthentication))
			admin.AssertNotCalled(t, "Trigger", mock.Anything)
		})
	}
}

func TestAdapt_Trigger(t *testing.T) {
	admin := &MockWeightAdmin{}
	admin.On("Trigger", mock.Anything).Return(&matching.AdaptationOutcome{
		PreviousVersion: 2,
		Version:         3,
		Published:       true,
		Samples:         12,
	}, nil)

	rec := do(t, newTestServer(t, admin).routes(), http.MethodPost, "/admin/weights/adapt", "secret", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out matching.AdaptationOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Published)
	assert.Equal(t, int64(3), out.Version)
	assert.Equal(t, 12, out.Samples)
	admin.AssertExpectations(t)
}

func TestAdapt_Rollback(t *testing.T) {
	admin := &MockWeightAdmin{}
	admin.On("Rollback", mock.Anything, int64(1)).Return(&matching.AdaptationOutcome{
		PreviousVersion: 2,
		Version:         3,
		Published:       true,
		Reason:          "rollback:v1",
	}, nil)

	rec := do(t, newTestServer(t, admin).routes(), http.MethodPost, "/admin/weights/adapt", "secret", `{"rollbackVersion": 1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":3`)
	admin.AssertExpectations(t)
	admin.AssertNotCalled(t, "Trigger", mock.Anything)
}

func TestAdapt_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setup      func(m *MockWeightAdmin)
		wantStatus int
		wantCode   apperrors.ErrorCode
	}{
		{
			name:       "malformed body",
			body:       `{"rollbackVersion": "one"}`,
			setup:      func(m *MockWeightAdmin) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   apperrors.ErrCodeInputParsing,
		},
		{
			name: "unknown rollback version",
			body: `{"rollbackVersion": 9}`,
			setup: func(m *MockWeightAdmin) {
				m.On("Rollback", mock.Anything, int64(9)).Return(nil, apperrors.NewProfileNotFoundError(9))
			},
			wantStatus: http.StatusNotFound,
			wantCode:   apperrors.ErrCodeProfileNotFound,
		},
		{
			name: "feedback history unavailable",
			setup: func(m *MockWeightAdmin) {
				m.On("Trigger", mock.Anything).Return(nil, apperrors.NewDataUnavailableError("feedback", errors.New("timeout")))
			},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   apperrors.ErrCodeDataUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admin := &MockWeightAdmin{}
			tt.setup(admin)

			rec := do(t, newTestServer(t, admin).routes(), http.MethodPost, "/admin/weights/adapt", "secret", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body apperrors.StandardError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
			admin.AssertExpectations(t)
		})
	}
}

func TestWeights(t *testing.T) {
	h := newTestServer(t, &MockWeightAdmin{}).routes()

	rec := do(t, h, http.MethodGet, "/admin/weights", "secret", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body weightsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(2), body.Active.Version)
	assert.Len(t, body.History, 2)

	rec = do(t, h, http.MethodPost, "/admin/weights", "secret", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, h, http.MethodGet, "/admin/weights/adapt", "secret", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
