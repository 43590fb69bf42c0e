package api

import (
	"net/http"

	"github.com/vytor/hanziflash/internal/models"
)

type offlineStatusResponse struct {
	Available bool                            `json:"available"`
	Cards     map[string]models.OfflineStatus `json:"cards"`
}

func (s *Server) handleOfflineStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.StudyService.OfflineStatus(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	available := s.Offline != nil && s.Offline.Available()
	writeJSON(w, http.StatusOK, offlineStatusResponse{Available: available, Cards: status})
}

func (s *Server) handleOfflineCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.StudyService.OfflineCards(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cards": cards})
}

func (s *Server) handleOfflineCard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	card, err := s.StudyService.OfflineCard(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleCacheCard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	ev, err := s.StudyService.CacheCard(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleEvictCard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	ev, err := s.StudyService.EvictCard(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleClearOffline(w http.ResponseWriter, r *http.Request) {
	if err := s.StudyService.ClearOffline(r.Context()); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCacheCollection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	queued, err := s.StudyService.EnqueueCollection(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"collection_id": id, "queued": queued})
}

type playableAudioResponse struct {
	CardID string `json:"card_id"`
	URL    string `json:"url"`
}

// handlePlayableAudio answers with the URL by default, or redirects to it
// with ?redirect=1.
func (s *Server) handlePlayableAudio(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	url, err := s.StudyService.PlayableAudioURL(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if r.URL.Query().Get("redirect") == "1" {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, playableAudioResponse{CardID: id, URL: url})
}
