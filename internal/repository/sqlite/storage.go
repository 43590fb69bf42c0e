package sqlite

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vytor/hanziflash/internal/db"
	"github.com/vytor/hanziflash/internal/repository"
)

// Options tune how records are written.
type Options struct {
	// CompressAudio stores audio payloads zstd-compressed.
	CompressAudio bool
	// CompressionLevel is the zstd level (1-22); zero means the library default.
	CompressionLevel int
}

type storage struct {
	provider    *db.Provider
	cards       repository.CardStore
	audio       repository.AudioStore
	collections repository.CollectionStore
}

// NewStorage builds the SQLite-backed offline storage over provider.
func NewStorage(provider *db.Provider, opts Options) (repository.Storage, error) {
	audio, err := NewAudioStore(provider, opts)
	if err != nil {
		return nil, err
	}
	return &storage{
		provider:    provider,
		cards:       NewCardStore(provider),
		audio:       audio,
		collections: NewCollectionStore(provider),
	}, nil
}

func (s *storage) Available() bool { return s.provider.Available() }
func (s *storage) Cards() repository.CardStore { return s.cards }
func (s *storage) Audio() repository.AudioStore { return s.audio }
func (s *storage) Collections() repository.CollectionStore { return s.collections }

func newCodec(opts Options) (*zstd.Encoder, *zstd.Decoder, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	if !opts.CompressAudio {
		return nil, decoder, nil
	}
	encOpts := []zstd.EOption{}
	if opts.CompressionLevel > 0 {
		encOpts = append(encOpts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.CompressionLevel)))
	}
	encoder, err := zstd.NewWriter(nil, encOpts...)
	if err != nil {
		decoder.Close()
		return nil, nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return encoder, decoder, nil
}
