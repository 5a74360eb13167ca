package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/suricare/suricare/internal/models"
	"github.com/suricare/suricare/internal/store"
)

// childPayload accepts birth dates either as YYYY-MM-DD or RFC 3339.
type childPayload struct {
	Name      string `json:"name"`
	BirthDate string `json:"birth_date"`
	Gender    string `json:"gender"`
	CarerID   int64  `json:"carer_id"`
}

func (p childPayload) child() (models.Child, error) {
	c := models.Child{Name: strings.TrimSpace(p.Name), Gender: strings.TrimSpace(p.Gender), CarerID: p.CarerID}
	if p.BirthDate != "" {
		t, err := parseDate(p.BirthDate)
		if err != nil {
			return c, err
		}
		c.BirthDate = t
	}
	return c, c.Validate()
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD", s)
	}
	return t.UTC(), nil
}

// createChildHandler handles POST /children
func (s *Server) createChildHandler(w http.ResponseWriter, r *http.Request) {
	var p childPayload
	if err := decodeJSON(r, &p); err != nil {
		slog.Warn("Server.createChildHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, errorResponse("Invalid JSON format"))
		return
	}
	c, err := p.child()
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if err := s.st.CreateChild(r.Context(), &c); err != nil {
		writeStoreError(w, "createChild", err, "Child not found")
		return
	}
	slog.Info("Server.createChildHandler: child created", "child_id", c.ID, "carer_id", c.CarerID)
	writeJSONResponse(w, http.StatusCreated, models.Recorded(c))
}

// getChildHandler handles GET /children/{childID}
func (s *Server) getChildHandler(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "childID")
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	c, err := s.st.GetChild(r.Context(), id)
	if err != nil {
		writeStoreError(w, "getChild", err, "Child not found")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(c))
}

// listChildrenHandler handles GET /carers/{carerID}/children
func (s *Server) listChildrenHandler(w http.ResponseWriter, r *http.Request) {
	carerID, err := int64Param(r, "carerID")
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	children, err := s.st.ListChildren(r.Context(), carerID)
	if err != nil {
		writeStoreError(w, "listChildren", err, "Carer not found")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(children))
}

// updateChildHandler handles PUT /children/{childID}
func (s *Server) updateChildHandler(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "childID")
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	var p childPayload
	if err := decodeJSON(r, &p); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse("Invalid JSON format"))
		return
	}
	c, err := p.child()
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	c.ID = id
	if err := s.st.UpdateChild(r.Context(), &c); err != nil {
		writeStoreError(w, "updateChild", err, "Child not found")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(c))
}

// deleteChildHandler handles DELETE /children/{childID}
func (s *Server) deleteChildHandler(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "childID")
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if err := s.st.DeleteChild(r.Context(), id); err != nil {
		writeStoreError(w, "deleteChild", err, "Child not found")
		return
	}
	slog.Info("Server.deleteChildHandler: child deleted", "child_id", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Child deleted", nil))
}

// childFromPath resolves the {childID} parameter and writes the error response itself.
func (s *Server) childFromPath(w http.ResponseWriter, r *http.Request) (*models.Child, bool) {
	id, err := int64Param(r, "childID")
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse(err.Error()))
		return nil, false
	}
	c, err := s.st.GetChild(r.Context(), id)
	if err != nil {
		writeStoreError(w, "getChild", err, "Child not found")
		return nil, false
	}
	return c, true
}

// patternsHandler handles GET /children/{childID}/patterns?days=N
func (s *Server) patternsHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := s.childFromPath(w, r)
	if !ok {
		return
	}
	days, err := daysParam(r)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	report := s.analyzer.AnalyzeAllDays(r.Context(), c.ID, days)
	writeJSONResponse(w, http.StatusOK, models.Success(report))
}

// validatable is implemented by every record type.
type validatable interface {
	Validate() error
}

var errInvalidJSON = errors.New("invalid JSON format")

// decodeRecord reads a record of kind for childID from the request body. A missing check-in
// defaults to now, except for sleep where it defaults to the interval end.
func decodeRecord(r *http.Request, kind store.RecordKind, childID int64, now time.Time) (validatable, error) {
	var rec validatable
	switch kind {
	case store.RecordSleep:
		rec = &models.SleepRecord{}
	case store.RecordMeal:
		rec = &models.MealRecord{}
	case store.RecordSymptom:
		rec = &models.SymptomRecord{}
	case store.RecordGrowth:
		rec = &models.GrowthRecord{}
	case store.RecordPoop:
		rec = &models.PoopRecord{}
	default:
		return nil, store.ErrInvalidRecordKind
	}
	if err := decodeJSON(r, rec); err != nil {
		return nil, errInvalidJSON
	}
	defaultCheckIn := func(t *time.Time) {
		if t.IsZero() {
			*t = now
		}
	}
	switch v := rec.(type) {
	case *models.SleepRecord:
		v.ChildID = childID
	case *models.MealRecord:
		v.ChildID = childID
		defaultCheckIn(&v.CheckIn)
	case *models.SymptomRecord:
		v.ChildID = childID
		defaultCheckIn(&v.CheckIn)
	case *models.GrowthRecord:
		v.ChildID = childID
		defaultCheckIn(&v.CheckIn)
	case *models.PoopRecord:
		v.ChildID = childID
		defaultCheckIn(&v.CheckIn)
	}
	return rec, rec.Validate()
}

func (s *Server) addRecord(r *http.Request, rec validatable) error {
	ctx := r.Context()
	switch v := rec.(type) {
	case *models.SleepRecord:
		return s.st.AddSleep(ctx, v)
	case *models.MealRecord:
		return s.st.AddMeal(ctx, v)
	case *models.SymptomRecord:
		return s.st.AddSymptom(ctx, v)
	case *models.GrowthRecord:
		return s.st.AddGrowth(ctx, v)
	case *models.PoopRecord:
		return s.st.AddPoop(ctx, v)
	}
	return store.ErrInvalidRecordKind
}

// createRecordHandler handles POST /children/{childID}/records/{kind}
func (s *Server) createRecordHandler(w http.ResponseWriter, r *http.Request) {
	kind, err := store.ParseRecordKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeJSONResponse(w, http.StatusNotFound, errorResponse(err.Error()))
		return
	}
	c, ok := s.childFromPath(w, r)
	if !ok {
		return
	}
	rec, err := decodeRecord(r, kind, c.ID, s.now().UTC())
	if err != nil {
		slog.Warn("Server.createRecordHandler: rejected record", "kind", kind, "child_id", c.ID, "error", err)
		writeJSONResponse(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if err := s.addRecord(r, rec); err != nil {
		writeStoreError(w, "addRecord", err, "Child not found")
		return
	}
	slog.Debug("Server.createRecordHandler: record stored", "kind", kind, "child_id", c.ID)
	writeJSONResponse(w, http.StatusCreated, models.Recorded(rec))
}

// listRecordsHandler handles GET /children/{childID}/records/{kind}?days=N
func (s *Server) listRecordsHandler(w http.ResponseWriter, r *http.Request) {
	kind, err := store.ParseRecordKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeJSONResponse(w, http.StatusNotFound, errorResponse(err.Error()))
		return
	}
	c, ok := s.childFromPath(w, r)
	if !ok {
		return
	}
	days, err := daysParam(r)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	var rng store.Range
	if days > 0 {
		rng.From = s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	}

	ctx := r.Context()
	var result interface{}
	switch kind {
	case store.RecordSleep:
		result, err = s.st.ListSleep(ctx, c.ID, rng)
	case store.RecordMeal:
		result, err = s.st.ListMeals(ctx, c.ID, rng)
	case store.RecordSymptom:
		result, err = s.st.ListSymptoms(ctx, c.ID, rng)
	case store.RecordGrowth:
		result, err = s.st.ListGrowth(ctx, c.ID, rng)
	case store.RecordPoop:
		result, err = s.st.ListPoop(ctx, c.ID, rng)
	}
	if err != nil {
		writeStoreError(w, "listRecords", err, "Child not found")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// deleteRecordHandler handles DELETE /records/{kind}/{recordID}
func (s *Server) deleteRecordHandler(w http.ResponseWriter, r *http.Request) {
	kind, err := store.ParseRecordKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeJSONResponse(w, http.StatusNotFound, errorResponse(err.Error()))
		return
	}
	id, err := int64Param(r, "recordID")
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if err := s.st.DeleteRecord(r.Context(), kind, id); err != nil {
		writeStoreError(w, "deleteRecord", err, "Record not found")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Record deleted", nil))
}
