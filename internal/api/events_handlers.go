package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vytor/hanziflash/internal/errors"
	"github.com/vytor/hanziflash/internal/logger"
	"github.com/vytor/hanziflash/internal/models"
)

const (
	eventBuffer       = 16
	heartbeatInterval = 25 * time.Second
)

// handleOfflineEvents streams offline status changes as server-sent events.
// The first event is a "snapshot" of every cached card, followed by one
// "status" event per change. Events are dropped for clients that fall more
// than eventBuffer behind.
func (s *Server) handleOfflineEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if s.Offline == nil || !s.Offline.Available() {
		handleError(w, r, errors.NewUnavailableError("offline storage is not available", errors.ErrStorageUnavailable))
		return
	}
	rc := http.NewResponseController(w)

	events := make(chan models.StatusEvent, eventBuffer)
	unsubscribe := s.Offline.Subscribe(func(ev models.StatusEvent) {
		select {
		case events <- ev:
		default:
			log.Warn("dropping offline event for %s: client is behind", ev.CardID)
		}
	})
	defer unsubscribe()

	snapshot, err := s.Offline.GetOfflineStatusSnapshot(ctx)
	if err != nil {
		handleError(w, r, errors.NewInternalError(err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "snapshot", snapshot); err != nil {
		return
	}
	_ = rc.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("offline event stream closed")
			return
		case ev := <-events:
			if err := writeEvent(w, "status", ev); err != nil {
				log.Debug("offline event stream write failed: %v", err)
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		_ = rc.Flush()
	}
}

func writeEvent(w http.ResponseWriter, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
