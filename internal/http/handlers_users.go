package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"fintrack/internal/core"
)

type createUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type personRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.ledger.CreateUser(r.Context(), sanitizeInput(req.Name), sanitizeInput(req.Email))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/users/"+u.ID).
		Body(u).
		Write(w)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.ledger.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.ledger.ListCategories(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(cats))
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	var c core.Category
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, r, err)
		return
	}
	c.Name = sanitizeInput(c.Name)
	created, err := s.ledger.AddCategory(r.Context(), chi.URLParam(r, "userID"), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleUpdateCategory rewrites the category and every copy of it held by
// the user's transactions, definitions and budgets.
func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var c core.Category
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, r, err)
		return
	}
	c.Name = sanitizeInput(c.Name)
	n, err := s.ledger.UpdateCategory(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "name"), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"category": c, "updated": n})
}

func (s *Server) handleListPeople(w http.ResponseWriter, r *http.Request) {
	people, err := s.ledger.ListPeople(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(people))
}

func (s *Server) handleAddPerson(w http.ResponseWriter, r *http.Request) {
	var req personRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.ledger.AddPerson(r.Context(), chi.URLParam(r, "userID"), sanitizeInput(req.Name))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// nonNil renders empty collections as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
