package api

import (
	"bytes"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vytor/hanziflash/internal/errors"
)

// handleBlob serves audio registered in the object URL registry. Range
// requests are honored so media players can seek.
func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.Blobs == nil {
		handleError(w, r, errors.NewNotFoundError("blob", id))
		return
	}
	blob, ok := s.Blobs.Resolve(s.Blobs.Prefix() + id)
	if !ok {
		handleError(w, r, errors.NewNotFoundError("blob", id))
		return
	}
	if blob.MimeType != "" {
		w.Header().Set("Content-Type", blob.MimeType)
	}
	w.Header().Set("Cache-Control", "private, no-store")
	http.ServeContent(w, r, id, time.Time{}, bytes.NewReader(blob.Data))
}
