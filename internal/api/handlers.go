package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/plantdata-gw/internal/analysis"
	"github.com/mattjoyce/plantdata-gw/internal/inspection"
)

const maxInspectionLimit = 500

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		MappingRules:  s.rules.Len(),
		Consumers: map[string]int{
			inspection.TopicResult: s.bus.Subscribers(inspection.TopicResult),
			inspection.TopicValue:  s.bus.Subscribers(inspection.TopicValue),
		},
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleGetInspection handles GET /inspections/{inspectionID}.
func (s *Server) handleGetInspection(w http.ResponseWriter, r *http.Request) {
	inspectionID := chi.URLParam(r, "inspectionID")

	rec, err := s.records.Get(r.Context(), inspectionID)
	if err != nil {
		if errors.Is(err, inspection.ErrRecordNotFound) {
			s.writeError(w, http.StatusNotFound, "inspection not found")
			return
		}
		s.logger.Error("failed to read inspection record", "inspection_id", inspectionID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read inspection record")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// handleListInspections handles GET /inspections?limit=N.
func (s *Server) handleListInspections(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxInspectionLimit)
	}

	recs, err := s.records.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list inspection records", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list inspection records")
		return
	}
	if recs == nil {
		recs = []*inspection.Record{}
	}
	respondJSON(w, http.StatusOK, InspectionListResponse{Inspections: recs, Count: len(recs)})
}

// handleListMappings handles GET /mappings.
func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	rules, err := s.mappings.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list mapping rules", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list mapping rules")
		return
	}
	if rules == nil {
		rules = []analysis.Rule{}
	}
	respondJSON(w, http.StatusOK, MappingListResponse{Rules: rules, Count: len(rules), Active: s.rules.Len()})
}

// handleReloadMappings handles POST /mappings/reload. The live table is kept
// when the stored rules fail to load.
func (s *Server) handleReloadMappings(w http.ResponseWriter, r *http.Request) {
	n, err := s.rules.Refresh(r.Context(), s.mappings)
	if err != nil {
		s.logger.Error("failed to reload mapping rules", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to reload mapping rules")
		return
	}
	s.logger.Info("mapping rules reloaded", "rules", n)
	respondJSON(w, http.StatusOK, ReloadResponse{Loaded: n, ReloadedAt: time.Now().UTC()})
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
