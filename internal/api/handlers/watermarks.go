// Package handlers holds the monitoring API handlers.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/avflow/avflow/internal/sources"
	"github.com/avflow/avflow/internal/watermark"
	"github.com/avflow/avflow/pkg/logger"
)

type watermarkReader interface {
	Stats(ctx context.Context, tableName string) (*watermark.SourceStats, error)
	Laggards(ctx context.Context, tableName string, limit int) ([]watermark.Record, error)
}

// WatermarkHandler serves source and watermark monitoring endpoints.
type WatermarkHandler struct {
	store  watermarkReader
	logger *logger.Logger
}

// NewWatermarkHandler creates a new watermark handler.
func NewWatermarkHandler(store watermarkReader, log *logger.Logger) *WatermarkHandler {
	return &WatermarkHandler{
		store:  store,
		logger: log,
	}
}

// SourceInfo is one registry entry in the /sources response.
type SourceInfo struct {
	TableName     string `json:"table_name"`
	Function      string `json:"function"`
	Policy        string `json:"policy"`
	StalenessDays int    `json:"staleness_days"`
	Format        string `json:"format"`
}

// ListSources returns the source registry.
// GET /api/v1/sources
func (h *WatermarkHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	infos := make([]SourceInfo, 0)
	for _, spec := range sources.All() {
		infos = append(infos, SourceInfo{
			TableName:     spec.TableName,
			Function:      spec.Function,
			Policy:        spec.Policy.String(),
			StalenessDays: spec.StalenessDays,
			Format:        spec.Format,
		})
	}

	respondJSON(w, http.StatusOK, infos)
}

// GetStats returns watermark aggregates for one source.
// GET /api/v1/watermarks/{table}/stats
func (h *WatermarkHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	spec, err := sources.Get(table)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	stats, err := h.store.Stats(r.Context(), spec.TableName)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load watermark stats")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve stats")
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// GetLaggards returns the symbols furthest behind for one source.
// GET /api/v1/watermarks/{table}/laggards?limit=20
func (h *WatermarkHandler) GetLaggards(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	spec, err := sources.Get(table)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > 500 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
	}

	records, err := h.store.Laggards(r.Context(), spec.TableName, limit)
	if err != nil {
		if errors.Is(err, watermark.ErrWatermarkNotFound) {
			respondError(w, http.StatusNotFound, "no watermarks for source")
			return
		}
		h.logger.WithError(err).Error("Failed to load laggards")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve laggards")
		return
	}

	respondJSON(w, http.StatusOK, records)
}
