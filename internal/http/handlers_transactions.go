package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"fintrack/internal/core"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txns, err := s.ledger.ListTransactions(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(txns))
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var t core.Transaction
	if err := decodeJSON(w, r, &t); err != nil {
		writeError(w, r, err)
		return
	}
	t.Note = sanitizeInput(t.Note)
	created, err := s.ledger.AddTransaction(r.Context(), chi.URLParam(r, "userID"), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleDeleteTransaction moves the transaction to the trash.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	item, err := s.trash.MoveToTrash(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "id"), s.clock())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleListTrash(w http.ResponseWriter, r *http.Request) {
	items, err := s.trash.ListTrash(r.Context(), chi.URLParam(r, "userID"), s.clock())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	ns, err := s.ledger.ListNotifications(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ns))
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.MarkNotificationRead(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
