package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
	"github.com/vytor/hanziflash/internal/logger"
	"github.com/vytor/hanziflash/internal/models"
	"github.com/vytor/hanziflash/internal/repository"
)

const (
	encodingIdentity = "identity"
	encodingZstd     = "zstd"
)

type audioStore struct {
	db      Opener
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewAudioStore creates the SQLite implementation of the "audio" space.
// Compressed rows are always readable, whatever opts says.
func NewAudioStore(db Opener, opts Options) (repository.AudioStore, error) {
	encoder, decoder, err := newCodec(opts)
	if err != nil {
		return nil, err
	}
	return &audioStore{db: db, encoder: encoder, decoder: decoder}, nil
}

func (r *audioStore) Get(ctx context.Context, cardID string) (*models.CachedAudio, error) {
	log := logger.FromContext(ctx).WithPrefix("audio_store")
	conn, err := r.db.Open(ctx)
	if err != nil {
		return nil, err
	}

	query, args, err := sqlBuilder.
		Select("data", "mime_type", "encoding", "captured_at").
		From("audio").
		Where("card_id = ?", cardID).
		ToSql()
	if err != nil {
		return nil, err
	}

	a := models.CachedAudio{CardID: cardID}
	var data []byte
	var encoding string
	var capturedAt time.Time
	err = conn.QueryRowContext(ctx, query, args...).Scan(&data, &a.MimeType, &encoding, &capturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		log.Error("failed to get audio: %v", err)
		return nil, fmt.Errorf("get audio %s: %w", cardID, err)
	}

	switch encoding {
	case encodingZstd:
		a.Data, err = r.decoder.DecodeAll(data, nil)
		if err != nil {
			log.Error("failed to decompress audio: card_id=%s, err=%v", cardID, err)
			return nil, fmt.Errorf("decompress audio %s: %w", cardID, err)
		}
	case encodingIdentity, "":
		a.Data = data
	default:
		return nil, fmt.Errorf("audio %s: unknown encoding %q", cardID, encoding)
	}
	a.CapturedAt = capturedAt
	return &a, nil
}

func (r *audioStore) Put(ctx context.Context, a models.CachedAudio) error {
	log := logger.FromContext(ctx).WithPrefix("audio_store")
	conn, err := r.db.Open(ctx)
	if err != nil {
		return err
	}

	data, encoding := a.Data, encodingIdentity
	if r.encoder != nil {
		data, encoding = r.encoder.EncodeAll(a.Data, nil), encodingZstd
	}
	if data == nil {
		data = []byte{}
	}
	log.Debug("storing audio: card_id=%s, mime=%s, size=%s, stored=%s",
		a.CardID, a.MimeType, humanize.Bytes(uint64(len(a.Data))), humanize.Bytes(uint64(len(data))))

	query, args, err := sqlBuilder.
		Insert("audio").
		Columns("card_id", "data", "mime_type", "encoding", "size", "captured_at").
		Values(a.CardID, data, a.MimeType, encoding, len(a.Data), a.CapturedAt.UTC()).
		Suffix(`ON CONFLICT(card_id) DO UPDATE SET
    data = excluded.data,
    mime_type = excluded.mime_type,
    encoding = excluded.encoding,
    size = excluded.size,
    captured_at = excluded.captured_at`).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, query, args...); err != nil {
		log.Error("failed to store audio: %v", err)
		return fmt.Errorf("put audio %s: %w", a.CardID, err)
	}
	return nil
}

func (r *audioStore) Delete(ctx context.Context, cardID string) error {
	conn, err := r.db.Open(ctx)
	if err != nil {
		return err
	}
	query, args, err := sqlBuilder.Delete("audio").Where("card_id = ?", cardID).ToSql()
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, query, args...); err != nil {
		logger.FromContext(ctx).WithPrefix("audio_store").Error("failed to delete audio: %v", err)
		return fmt.Errorf("delete audio %s: %w", cardID, err)
	}
	return nil
}

func (r *audioStore) Keys(ctx context.Context) ([]string, error) {
	conn, err := r.db.Open(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, `SELECT card_id FROM audio`)
	if err != nil {
		return nil, fmt.Errorf("list audio keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		keys = append(keys, id)
	}
	return keys, rows.Err()
}

func (r *audioStore) Clear(ctx context.Context) error {
	conn, err := r.db.Open(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, `DELETE FROM audio`); err != nil {
		return fmt.Errorf("clear audio: %w", err)
	}
	logger.FromContext(ctx).WithPrefix("audio_store").Debug("audio space cleared")
	return nil
}
