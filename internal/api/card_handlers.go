package api

import (
	"net/http"

	"github.com/vytor/hanziflash/internal/models"
	"github.com/vytor/hanziflash/internal/services"
)

type cardsResponse struct {
	Source services.Source   `json:"source"`
	Cards  []models.CardView `json:"cards"`
}

func (s *Server) handleCards(w http.ResponseWriter, r *http.Request) {
	cards, source, err := s.StudyService.LoadCards(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	cards = services.FilterByCollection(cards, r.URL.Query().Get("collection"))
	writeJSON(w, http.StatusOK, cardsResponse{Source: source, Cards: cards})
}

type masteredRequest struct {
	Mastered bool `json:"mastered"`
}

func (s *Server) handleSetMastered(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	var req masteredRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	if err := s.StudyService.SetMastered(r.Context(), id, req.Mastered); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "mastered": req.Mastered})
}

type cardCollectionsRequest struct {
	CollectionIDs []string `json:"collection_ids"`
}

type cardCollectionsResponse struct {
	CardID        string   `json:"card_id"`
	CollectionIDs []string `json:"collection_ids"`
	RemoteSynced  bool     `json:"remote_synced"`
}

func (s *Server) handleSetCardCollections(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	var req cardCollectionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	if req.CollectionIDs == nil {
		req.CollectionIDs = []string{}
	}
	synced, err := s.StudyService.SetCardCollections(r.Context(), id, req.CollectionIDs)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cardCollectionsResponse{CardID: id, CollectionIDs: req.CollectionIDs, RemoteSynced: synced})
}
