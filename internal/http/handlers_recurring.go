package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"fintrack/internal/core"
)

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	defs, err := s.ledger.ListRecurring(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(defs))
}

func (s *Server) handleAddRecurring(w http.ResponseWriter, r *http.Request) {
	var d core.RecurringDefinition
	if err := decodeJSON(w, r, &d); err != nil {
		writeError(w, r, err)
		return
	}
	d.Note = sanitizeInput(d.Note)
	created, err := s.ledger.AddRecurring(r.Context(), chi.URLParam(r, "userID"), d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteRecurring(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteRecurring(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMaterialize runs the materializer for the user. With async=true the
// request is queued for the worker instead and 202 is returned.
func (s *Server) handleMaterialize(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	async, err := parseBool(r.URL.Query(), "async")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if async {
		if err := s.ledger.RequestMaterialize(r.Context(), userID); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	res, err := s.materializer.MaterializeNow(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
