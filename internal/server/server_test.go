package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/cloudetl/pipeline-runner/internal/config"
	"github.com/cloudetl/pipeline-runner/internal/models"
)

// MockStorage is a mock implementation of the storage.Storage interface.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStorage) WriteBatch(ctx context.Context, records []models.NormalizedRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func (m *MockStorage) GetRecords(ctx context.Context, limit int, offset int) ([]models.NormalizedRecord, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]models.NormalizedRecord), args.Error(1)
}

func (m *MockStorage) GetRecordByID(ctx context.Context, id string) (*models.NormalizedRecord, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*models.NormalizedRecord), args.Error(1)
}

func (m *MockStorage) Close() error {
	args := m.Called()
	return args.Error(0)
}

func serveRequest(s *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	store := new(MockStorage)
	store.On("HealthCheck", mock.Anything).Return(nil)

	s := NewServer(config.Server{Port: 8080}, store, &RunStatus{})
	w := serveRequest(s, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	assert.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestServer_Health_Unhealthy(t *testing.T) {
	store := new(MockStorage)
	store.On("HealthCheck", mock.Anything).Return(errors.New("table missing"))

	s := NewServer(config.Server{Port: 8080}, store, &RunStatus{})
	w := serveRequest(s, http.MethodGet, "/health")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_Records(t *testing.T) {
	records := []models.NormalizedRecord{
		{ID: "1", Title: "first"},
		{ID: "2", Title: "second"},
	}

	store := new(MockStorage)
	store.On("GetRecords", mock.Anything, 5, 10).Return(records, nil)

	s := NewServer(config.Server{Port: 8080}, store, &RunStatus{})
	w := serveRequest(s, http.MethodGet, "/records?limit=5&offset=10")

	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Records []models.NormalizedRecord `json:"records"`
		Count   int                       `json:"count"`
	}
	assert.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "1", body.Records[0].ID)
	store.AssertExpectations(t)
}

func TestServer_Records_MethodNotAllowed(t *testing.T) {
	s := NewServer(config.Server{Port: 8080}, new(MockStorage), &RunStatus{})
	w := serveRequest(s, http.MethodPost, "/records")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServer_RecordByID(t *testing.T) {
	store := new(MockStorage)
	store.On("GetRecordByID", mock.Anything, "42").
		Return(&models.NormalizedRecord{ID: "42", Title: "found"}, nil)

	s := NewServer(config.Server{Port: 8080}, store, &RunStatus{})
	w := serveRequest(s, http.MethodGet, "/records/42")

	assert.Equal(t, http.StatusOK, w.Code)

	var record models.NormalizedRecord
	assert.NoError(t, json.NewDecoder(w.Body).Decode(&record))
	assert.Equal(t, "42", record.ID)
}

func TestServer_RecordByID_NotFound(t *testing.T) {
	store := new(MockStorage)
	store.On("GetRecordByID", mock.Anything, "99").
		Return((*models.NormalizedRecord)(nil), nil)

	s := NewServer(config.Server{Port: 8080}, store, &RunStatus{})
	w := serveRequest(s, http.MethodGet, "/records/99")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Status(t *testing.T) {
	status := &RunStatus{}
	s := NewServer(config.Server{Port: 8080}, new(MockStorage), status)

	w := serveRequest(s, http.MethodGet, "/status")
	assert.Equal(t, http.StatusOK, w.Code)

	var never map[string]interface{}
	assert.NoError(t, json.NewDecoder(w.Body).Decode(&never))
	assert.Equal(t, "never_run", never["status"])

	status.Set(models.RunResult{StatusCode: 200, Message: "OK", Stored: 7})

	w = serveRequest(s, http.MethodGet, "/status")
	var body struct {
		Status string           `json:"status"`
		Result models.RunResult `json:"result"`
	}
	assert.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, 7, body.Result.Stored)
}
