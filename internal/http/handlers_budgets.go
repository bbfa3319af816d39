package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"fintrack/internal/core"
)

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.ledger.ListBudgets(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(budgets))
}

func (s *Server) handleAddBudget(w http.ResponseWriter, r *http.Request) {
	var b core.Budget
	if err := decodeJSON(w, r, &b); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.ledger.AddBudget(r.Context(), chi.URLParam(r, "userID"), b)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteBudget(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMonthSummary totals income and expenses for ?year=&month=,
// defaulting to the current month.
func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r.URL.Query(), s.clock())
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.analytics.MonthSummary(r.Context(), chi.URLParam(r, "userID"), params.Year, params.Month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
