package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/customer-map/internal/model"
	"github.com/sells-group/customer-map/internal/orchestrator"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 16

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// CustomersResponse is the body of GET /api/customers.
type CustomersResponse struct {
	Customers []model.Customer `json:"customers"`
	Total     int              `json:"total"`
}

// APIKeyRequest is the body of PUT /api/apikey.
type APIKeyRequest struct {
	APIKey string `json:"api_key"`
}

type handlers struct {
	svc         Service
	syncTimeout time.Duration
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) listCustomers(w http.ResponseWriter, _ *http.Request) {
	view := h.svc.View()
	if view == nil {
		view = []model.Customer{}
	}
	writeJSON(w, http.StatusOK, CustomersResponse{Customers: view, Total: len(view)})
}

func (h *handlers) customersGeoJSON(w http.ResponseWriter, _ *http.Request) {
	fc := FeatureCollection(h.svc.View())
	b, err := fc.MarshalJSON()
	if err != nil {
		zap.L().Error("api: encode geojson", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to encode customers"})
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

func (h *handlers) sync(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.syncTimeout)
	defer cancel()

	res, err := h.svc.SyncNow(ctx)
	switch {
	case errors.Is(err, orchestrator.ErrSyncInProgress):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "Sync already in progress"})
	case err != nil:
		zap.L().Warn("api: manual sync failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "Sync failed", Details: err.Error()})
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *handlers) setAPIKey(w http.ResponseWriter, r *http.Request) {
	var req APIKeyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}
	if strings.TrimSpace(req.APIKey) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "api_key is required"})
		return
	}
	if err := h.svc.SetAPIKey(r.Context(), req.APIKey); err != nil {
		zap.L().Error("api: set api key", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to store API key"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) clearAPIKey(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearAPIKey(r.Context()); err != nil {
		zap.L().Error("api: clear api key", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to clear API key"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FeatureCollection converts the geocoded customers in view to GeoJSON points.
// Records without coordinates are left out.
func FeatureCollection(view []model.Customer) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(view))}
	for _, c := range view {
		if c.Coordinates == nil {
			continue
		}
		pt := geom.NewPointFlat(geom.XY, []float64{c.Coordinates.Longitude, c.Coordinates.Latitude})
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       c.ID,
			Geometry: pt,
			Properties: map[string]any{
				"name":     c.Name,
				"type":     string(c.Category),
				"state":    c.State,
				"url":      c.Website,
				"source":   string(c.Source),
				"products": c.Capabilities,
			},
		})
	}
	return fc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}
