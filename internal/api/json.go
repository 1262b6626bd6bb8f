package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"tripdispatch/internal/dispatch"
)

const maxBodyBytes = 1 << 20

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps a service error onto a problem response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	var title string
	switch dispatch.KindOf(err) {
	case dispatch.ValidationError:
		status, title = http.StatusBadRequest, "Invalid request"
	case dispatch.ForbiddenError:
		status, title = http.StatusForbidden, "Forbidden"
	case dispatch.NotFoundError:
		status, title = http.StatusNotFound, "Not found"
	case dispatch.ConflictError:
		status, title = http.StatusConflict, "Conflict"
	case dispatch.TransientError:
		w.Header().Set("Retry-After", "1")
		status, title = http.StatusServiceUnavailable, "Temporarily unavailable"
	default:
		s.Log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeProblem(w, http.StatusInternalServerError, "Internal error", "", r.URL.Path)
		return
	}
	detail := err.Error()
	var de *dispatch.Error
	if errors.As(err, &de) {
		detail = de.Message
	}
	writeProblem(w, status, title, detail, r.URL.Path)
}

// decodeJSON reads one JSON object into v and writes a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		detail := err.Error()
		if errors.Is(err, io.EOF) {
			detail = "request body is empty"
		}
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", detail, r.URL.Path)
		return false
	}
	if dec.More() {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", "unexpected data after object", r.URL.Path)
		return false
	}
	return true
}

type page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}
