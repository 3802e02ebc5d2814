package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func (s *Server) handleAdminListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.svc.AdminList(r.Context())
	if err != nil {
		s.log.Error("admin list reports", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(reports),
		"reports": reports,
	})
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		s.log.Error("admin stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAdminDeleteReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := s.svc.AdminDelete(r.Context(), id)
	if err != nil {
		s.log.Error("admin delete report", zap.Error(err), zap.String("id", id))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if s.metrics != nil {
		s.metrics.ReportsDeleted.WithLabelValues("admin").Inc()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminClearReports(w http.ResponseWriter, r *http.Request) {
	count, err := s.svc.AdminClearAll(r.Context())
	if err != nil {
		s.log.Error("admin clear reports", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if s.metrics != nil && count > 0 {
		s.metrics.ReportsDeleted.WithLabelValues("admin").Add(float64(count))
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": count})
}
