package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/floodwatch-fl/floodwatch/internal/geofence"
	"github.com/floodwatch-fl/floodwatch/internal/report"
)

type submitRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	RoadName  string  `json:"road_name"`
	Severity  string  `json:"severity"`
}

type rateLimitBody struct {
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	ResetAt   string `json:"reset_at"`
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	device := r.Header.Get(deviceHeader)
	if device == "" {
		writeError(w, http.StatusUnauthorized, "missing device fingerprint")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	// Reject before any storage work when the device is already over
	// quota for the day.
	if state := s.svc.CheckQuota(r.Context(), device); state.Limited {
		s.writeRejection(w, report.NewQuotaRejection(state.ResetAt))
		return
	}

	created, err := s.svc.Create(r.Context(), report.Submission{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		RoadName:  req.RoadName,
		Severity:  req.Severity,
		Device:    device,
	})
	if err != nil {
		if rej, ok := report.AsRejection(err); ok {
			s.writeRejection(w, rej)
			return
		}
		s.log.Error("create report", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if s.metrics != nil {
		s.metrics.ReportsCreated.Inc()
	}

	// The quota charge is a separate step after the report persists, so
	// a storage failure never burns the submitter's daily allowance.
	state := s.svc.ChargeQuota(r.Context(), device)

	writeJSON(w, http.StatusCreated, map[string]any{
		"report": created,
		"rate_limit": rateLimitBody{
			Limit:     state.Quota,
			Remaining: state.Remaining,
			ResetAt:   state.ResetAt.Format(time.RFC3339),
		},
	})
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	device := r.Header.Get(deviceHeader)

	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reports, err := s.svc.ListActive(r.Context(), f, device)
	if err != nil {
		s.log.Error("list reports", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, toFeatureCollection(reports))
}

func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	device := r.Header.Get(deviceHeader)
	if device == "" {
		writeError(w, http.StatusUnauthorized, "missing device fingerprint")
		return
	}

	id := chi.URLParam(r, "id")
	deleted, err := s.svc.Delete(r.Context(), id, device)
	if err != nil {
		s.log.Error("delete report", zap.Error(err), zap.String("id", id))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	// Not-found and not-owned are indistinguishable on purpose: the
	// response leaks nothing about reports the caller does not own.
	if !deleted {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}

	if s.metrics != nil {
		s.metrics.ReportsDeleted.WithLabelValues("owner").Inc()
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseFilter(r *http.Request) (report.Filter, error) {
	var f report.Filter
	q := r.URL.Query()

	corners := []string{"north", "south", "east", "west"}
	present := 0
	vals := make(map[string]float64, 4)
	for _, c := range corners {
		raw := q.Get(c)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return f, invalidParamError(c)
		}
		vals[c] = v
		present++
	}
	if present > 0 {
		if present < 4 {
			return f, paramError("bounding box requires all of north, south, east and west")
		}
		b := geofence.Bounds{
			North: vals["north"],
			South: vals["south"],
			East:  vals["east"],
			West:  vals["west"],
		}
		if err := b.Validate(); err != nil {
			return f, err
		}
		f.BBox = &b
	}

	if raw := q.Get("min_confidence"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return f, invalidParamError("min_confidence")
		}
		f.MinConfidence = v
	}
	return f, nil
}

type paramError string

func (e paramError) Error() string { return string(e) }

func invalidParamError(name string) error {
	return paramError("invalid query parameter: " + name)
}

// geoJSONFeature is the map-client shape for an active report.
type geoJSONFeature struct {
	Type       string         `json:"type"`
	Geometry   geoJSONPoint   `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type geoJSONPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

func toFeatureCollection(reports []report.ActiveReport) map[string]any {
	features := make([]geoJSONFeature, 0, len(reports))
	for _, rep := range reports {
		features = append(features, geoJSONFeature{
			Type: "Feature",
			Geometry: geoJSONPoint{
				Type:        "Point",
				Coordinates: [2]float64{rep.Longitude, rep.Latitude},
			},
			Properties: map[string]any{
				"id":               rep.ID,
				"road_name":        rep.RoadName,
				"severity":         rep.Severity,
				"confidence_score": rep.Confidence,
				"created_at":       rep.CreatedAt,
				"expires_at":       rep.ExpiresAt,
				"is_own_report":    rep.Mine,
			},
		})
	}
	return map[string]any{
		"type":     "FeatureCollection",
		"features": features,
	}
}
