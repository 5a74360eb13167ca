package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/suricare/suricare/internal/models"
)

// markReadRequest is the body of PUT /alerts/{alertID}/read. An empty body marks read.
type markReadRequest struct {
	IsRead *bool `json:"is_read"`
}

// listAlertsHandler handles GET /children/{childID}/alerts?unread=true
func (s *Server) listAlertsHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := s.childFromPath(w, r)
	if !ok {
		return
	}
	unreadOnly := false
	if raw := r.URL.Query().Get("unread"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, errorResponse("invalid unread flag"))
			return
		}
		unreadOnly = v
	}
	list, err := s.st.ListAlerts(r.Context(), c.ID, unreadOnly)
	if err != nil {
		writeStoreError(w, "listAlerts", err, "Child not found")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(list))
}

// unreadAlertsHandler handles GET /children/{childID}/alerts/unread-count
func (s *Server) unreadAlertsHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := s.childFromPath(w, r)
	if !ok {
		return
	}
	n, err := s.st.CountUnreadAlerts(r.Context(), c.ID)
	if err != nil {
		writeStoreError(w, "countUnreadAlerts", err, "Child not found")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{"child_id": c.ID, "unread_count": n}))
}

// analyzeAlertsHandler handles POST /children/{childID}/alerts/analyze
func (s *Server) analyzeAlertsHandler(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, errorResponse("Alert analysis is not enabled"))
		return
	}
	c, ok := s.childFromPath(w, r)
	if !ok {
		return
	}
	list, err := s.alerts.RunChild(r.Context(), c.ID)
	if err != nil {
		slog.Error("Server.analyzeAlertsHandler: analysis incomplete", "child_id", c.ID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, errorResponse("Failed to store alerts"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(list))
}

// upsertAlertHandler handles POST /alerts
func (s *Server) upsertAlertHandler(w http.ResponseWriter, r *http.Request) {
	var a models.HealthAlert
	if err := decodeJSON(r, &a); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse("Invalid JSON format"))
		return
	}
	a.ID, a.IsRead, a.ReadAt = "", false, nil
	a.AlertType = strings.TrimSpace(a.AlertType)
	if a.AlertType == "" {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse("alert_type is required"))
		return
	}
	if err := a.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if _, err := s.st.GetChild(r.Context(), a.ChildID); err != nil {
		writeStoreError(w, "getChild", err, "Child not found")
		return
	}
	if a.AnalysisDate.IsZero() {
		a.AnalysisDate = s.now().UTC()
	}
	if err := s.st.UpsertAlert(r.Context(), &a); err != nil {
		writeStoreError(w, "upsertAlert", err, "Alert not found")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Recorded(a))
}

func alertIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "alertID")
	if _, err := uuid.Parse(id); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse("Invalid alert id"))
		return "", false
	}
	return id, true
}

// markAlertReadHandler handles PUT /alerts/{alertID}/read
func (s *Server) markAlertReadHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := alertIDParam(w, r)
	if !ok {
		return
	}
	var req markReadRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse("Invalid JSON format"))
		return
	}
	read := req.IsRead == nil || *req.IsRead
	if err := s.st.SetAlertRead(r.Context(), id, read); err != nil {
		writeStoreError(w, "setAlertRead", err, "Alert not found")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{"id": id, "is_read": read}))
}

// deleteAlertHandler handles DELETE /alerts/{alertID}
func (s *Server) deleteAlertHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := alertIDParam(w, r)
	if !ok {
		return
	}
	if err := s.st.DeleteAlert(r.Context(), id); err != nil {
		writeStoreError(w, "deleteAlert", err, "Alert not found")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Alert deleted", nil))
}
