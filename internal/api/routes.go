package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vytor/hanziflash/internal/objecturl"
)

const requestTimeout = 30 * time.Second

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(recoveryMiddleware)
	r.Use(loggingMiddleware)
	r.Use(securityHeadersMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		// Event streams outlive any request timeout.
		r.Get("/offline/events", s.handleOfflineEvents)

		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(requestTimeout))

			r.Get("/cards", s.handleCards)
			r.Post("/cards/{id}/mastered", s.handleSetMastered)
			r.Put("/cards/{id}/collections", s.handleSetCardCollections)

			r.Get("/collections", s.handleCollections)
			r.Post("/collections", s.handleSaveCollection)
			r.Put("/collections/{id}", s.handleSaveCollection)
			r.Delete("/collections/{id}", s.handleDeleteCollection)

			r.Get("/offline/status", s.handleOfflineStatus)
			r.Get("/offline/cards", s.handleOfflineCards)
			r.Get("/offline/cards/{id}", s.handleOfflineCard)
			r.Post("/offline/cards/{id}", s.handleCacheCard)
			r.Delete("/offline/cards/{id}", s.handleEvictCard)
			r.Get("/offline/cards/{id}/audio", s.handlePlayableAudio)
			r.Delete("/offline", s.handleClearOffline)
			r.Post("/offline/collections/{id}", s.handleCacheCollection)
		})
	})

	prefix := objecturl.DefaultPrefix
	if s.Blobs != nil {
		prefix = s.Blobs.Prefix()
	}
	r.Get(strings.TrimSuffix(prefix, "/")+"/{id}", s.handleBlob)
	return r
}
