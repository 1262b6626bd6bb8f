package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tripdispatch/internal/model"
)

type driverStatusRequest struct {
	Status model.DriverStatus `json:"status"`
}

func (s *Server) listDrivers(w http.ResponseWriter, r *http.Request) {
	cursor, limit := listParams(r)
	status := model.DriverStatus(r.URL.Query().Get("status"))
	items, next, err := s.Svc.ListDrivers(r.Context(), actorOf(r), status, cursor, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.Driver{}
	}
	writeJSON(w, http.StatusOK, page[model.Driver]{Items: items, NextCursor: next})
}

func (s *Server) createDriver(w http.ResponseWriter, r *http.Request) {
	var in model.DriverInput
	if !decodeJSON(w, r, &in) {
		return
	}
	d, err := s.Svc.CreateDriver(r.Context(), actorOf(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/drivers/"+d.ID)
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) getDriver(w http.ResponseWriter, r *http.Request) {
	d, err := s.Svc.GetDriver(r.Context(), actorOf(r), chi.URLParam(r, "driverID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) updateDriver(w http.ResponseWriter, r *http.Request) {
	var patch model.DriverPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	d, err := s.Svc.UpdateDriver(r.Context(), actorOf(r), chi.URLParam(r, "driverID"), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) deleteDriver(w http.ResponseWriter, r *http.Request) {
	if err := s.Svc.DeleteDriver(r.Context(), actorOf(r), chi.URLParam(r, "driverID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// setDriverStatus is the dispatcher path for freeing a driver.
func (s *Server) setDriverStatus(w http.ResponseWriter, r *http.Request) {
	var req driverStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := s.Svc.SetDriverAvailability(r.Context(), actorOf(r), chi.URLParam(r, "driverID"), req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// meDriverID returns the caller's driver id, writing 403 for staff callers.
func meDriverID(w http.ResponseWriter, r *http.Request) (string, bool) {
	a := actorOf(r)
	if !a.IsDriver() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "only drivers have a /me profile", r.URL.Path)
		return "", false
	}
	return a.ID, true
}

func (s *Server) getMe(w http.ResponseWriter, r *http.Request) {
	id, ok := meDriverID(w, r)
	if !ok {
		return
	}
	d, err := s.Svc.GetDriver(r.Context(), actorOf(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) setMyStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := meDriverID(w, r)
	if !ok {
		return
	}
	var req driverStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := s.Svc.SetDriverAvailability(r.Context(), actorOf(r), id, req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) setMyLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := meDriverID(w, r)
	if !ok {
		return
	}
	var p model.GeoPoint
	if !decodeJSON(w, r, &p) {
		return
	}
	d, err := s.Svc.UpdateDriverLocation(r.Context(), actorOf(r), id, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
