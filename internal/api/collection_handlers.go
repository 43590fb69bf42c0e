package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vytor/hanziflash/internal/models"
	"github.com/vytor/hanziflash/internal/services"
)

type collectionsResponse struct {
	Source      services.Source     `json:"source"`
	Collections []models.Collection `json:"collections"`
}

func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	collections, source, err := s.StudyService.LoadCollections(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, collectionsResponse{Source: source, Collections: collections})
}

type collectionRequest struct {
	Name  string  `json:"name"`
	Color *string `json:"color"`
}

// handleSaveCollection creates a collection (POST) or replaces one (PUT).
func (s *Server) handleSaveCollection(w http.ResponseWriter, r *http.Request) {
	var req collectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	c := models.Collection{ID: chi.URLParam(r, "id"), Name: req.Name, Color: req.Color}
	saved, err := s.StudyService.SaveCollection(r.Context(), c)
	if err != nil {
		handleError(w, r, err)
		return
	}
	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeJSON(w, status, saved)
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := s.StudyService.DeleteCollection(r.Context(), id); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
