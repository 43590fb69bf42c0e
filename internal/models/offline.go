package models

import "time"

// CachedCard is a record of the offline "cards" space: a snapshot of the
// remote card with its collection membership embedded. Timestamps are
// stored and returned in UTC.
type CachedCard struct {
	Card          Card      `json:"card"`
	CollectionIDs []string  `json:"collection_ids"`
	CachedAt      time.Time `json:"cached_at"`
}

// CachedAudio is a record of the offline "audio" space, keyed by card ID.
type CachedAudio struct {
	CardID     string    `json:"card_id"`
	Data       []byte    `json:"-"`
	MimeType   string    `json:"mime_type"`
	CapturedAt time.Time `json:"captured_at"`
}

// StatusEvent announces a change in a card's offline availability. The same
// value is returned to the caller of the operation that emitted it.
type StatusEvent struct {
	CardID      string `json:"card_id"`
	Cached      bool   `json:"cached"`
	AudioStored bool   `json:"audio_stored"`
}

// OfflineStatus is the per-card projection subscribers hydrate from.
type OfflineStatus struct {
	AudioStored bool `json:"audio_stored"`
}

// CardView is a card as presented on the main screen.
type CardView struct {
	Card
	CollectionIDs []string       `json:"collection_ids"`
	Offline       *OfflineStatus `json:"offline,omitempty"`
}
