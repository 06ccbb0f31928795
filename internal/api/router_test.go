package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avflow/avflow/internal/api/handlers"
	"github.com/avflow/avflow/internal/watermark"
	"github.com/avflow/avflow/pkg/config"
	"github.com/avflow/avflow/pkg/logger"
)

type noopStore struct{}

func (noopStore) Stats(context.Context, string) (*watermark.SourceStats, error) {
	return &watermark.SourceStats{}, nil
}

func (noopStore) Laggards(context.Context, string, int) ([]watermark.Record, error) {
	return nil, nil
}

func TestRouter(t *testing.T) {
	log := logger.New(&config.Config{Env: "test", LogLevel: "error"})
	router := NewRouter(handlers.NewWatermarkHandler(noopStore{}, log), nil, log)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/sources", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/sources", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "monitoring surface is read-only")
}
