package models

import "time"

// Card is one flashcard as stored by the remote store.
type Card struct {
	ID          string    `json:"id"`
	Polish      string    `json:"polish"`
	Hanzi       string    `json:"hanzi"`
	Pinyin      string    `json:"pinyin"`
	AudioURL    *string   `json:"audio_url"`
	Comment     *string   `json:"comment"`
	Mastered    bool      `json:"mastered"`
	CreatedAt   time.Time `json:"created_at"`
	ReferenceID *string   `json:"reference_id"`
}

// HasAudio reports whether the card points at a remote audio file.
func (c Card) HasAudio() bool {
	return c.AudioURL != nil && *c.AudioURL != ""
}

// Collection is a user-defined, optionally colored group of cards.
type Collection struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Color *string `json:"color"`
}

// Membership is one row of the card/collection join table.
type Membership struct {
	CardID       string `json:"card_id"`
	CollectionID string `json:"collection_id"`
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
