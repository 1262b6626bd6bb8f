package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tripdispatch/internal/model"
)

type driverIDsRequest struct {
	DriverIDs []string `json:"driverIds"`
}

type statusRequest struct {
	Status model.TripStatus        `json:"status"`
	Photos []model.PhotoDescriptor `json:"photos,omitempty"`
}

type photosRequest struct {
	Photos []model.PhotoDescriptor `json:"photos"`
}

// listParams reads cursor and limit; an unparsable limit becomes the store default.
func listParams(r *http.Request) (cursor string, limit int) {
	q := r.URL.Query()
	limit, _ = strconv.Atoi(q.Get("limit"))
	return q.Get("cursor"), limit
}

func (s *Server) listTrips(w http.ResponseWriter, r *http.Request) {
	cursor, limit := listParams(r)
	status := model.TripStatus(r.URL.Query().Get("status"))
	items, next, err := s.Svc.ListTrips(r.Context(), actorOf(r), status, cursor, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.Trip{}
	}
	writeJSON(w, http.StatusOK, page[model.Trip]{Items: items, NextCursor: next})
}

func (s *Server) createTrip(w http.ResponseWriter, r *http.Request) {
	var in model.TripInput
	if !decodeJSON(w, r, &in) {
		return
	}
	t, err := s.Svc.CreateTrip(r.Context(), actorOf(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/trips/"+t.ID)
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) getTrip(w http.ResponseWriter, r *http.Request) {
	t, err := s.Svc.GetTrip(r.Context(), actorOf(r), chi.URLParam(r, "tripID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) updateTrip(w http.ResponseWriter, r *http.Request) {
	var patch model.TripPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	t, err := s.Svc.UpdateTrip(r.Context(), actorOf(r), chi.URLParam(r, "tripID"), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) deleteTrip(w http.ResponseWriter, r *http.Request) {
	if err := s.Svc.DeleteTrip(r.Context(), actorOf(r), chi.URLParam(r, "tripID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) assignTrip(w http.ResponseWriter, r *http.Request) {
	var req driverIDsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := s.Svc.Assign(r.Context(), actorOf(r), chi.URLParam(r, "tripID"), req.DriverIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) transferTrip(w http.ResponseWriter, r *http.Request) {
	var req driverIDsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := s.Svc.Transfer(r.Context(), actorOf(r), chi.URLParam(r, "tripID"), req.DriverIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) updateTripStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := s.Svc.UpdateStatus(r.Context(), actorOf(r), chi.URLParam(r, "tripID"), req.Status, req.Photos)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) listPhotos(w http.ResponseWriter, r *http.Request) {
	photos, err := s.Svc.ListPhotos(r.Context(), actorOf(r), chi.URLParam(r, "tripID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if photos == nil {
		photos = []model.Photo{}
	}
	writeJSON(w, http.StatusOK, page[model.Photo]{Items: photos})
}

func (s *Server) recordPhotos(w http.ResponseWriter, r *http.Request) {
	var req photosRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	photos, err := s.Svc.RecordPhotos(r.Context(), actorOf(r), chi.URLParam(r, "tripID"), req.Photos)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if photos == nil {
		photos = []model.Photo{}
	}
	writeJSON(w, http.StatusCreated, page[model.Photo]{Items: photos})
}

func (s *Server) deletePhoto(w http.ResponseWriter, r *http.Request) {
	err := s.Svc.DeletePhoto(r.Context(), actorOf(r), chi.URLParam(r, "tripID"), chi.URLParam(r, "photoID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
