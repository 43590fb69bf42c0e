package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vytor/hanziflash/internal/logger"
	"github.com/vytor/hanziflash/internal/models"
	"github.com/vytor/hanziflash/internal/repository"
)

type cardStore struct {
	db Opener
}

// NewCardStore creates the SQLite implementation of the "cards" space.
func NewCardStore(db Opener) repository.CardStore {
	return &cardStore{db: db}
}

func (r *cardStore) Get(ctx context.Context, id string) (*models.CachedCard, error) {
	log := logger.FromContext(ctx).WithPrefix("card_store")
	conn, err := r.db.Open(ctx)
	if err != nil {
		return nil, err
	}

	query, args, err := sqlBuilder.
		Select("payload", "collection_ids", "cached_at").
		From("cards").
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return nil, err
	}

	var payload, ids string
	var cachedAt time.Time
	err = conn.QueryRowContext(ctx, query, args...).Scan(&payload, &ids, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug("card not cached: id=%s", id)
		return nil, nil
	}
	if err != nil {
		log.Error("failed to get cached card: %v", err)
		return nil, fmt.Errorf("get cached card %s: %w", id, err)
	}
	return decodeCard(payload, ids, cachedAt)
}

func (r *cardStore) Put(ctx context.Context, c models.CachedCard) error {
	log := logger.FromContext(ctx).WithPrefix("card_store")
	log.Debug("caching card: id=%s, collections=%d", c.Card.ID, len(c.CollectionIDs))

	conn, err := r.db.Open(ctx)
	if err != nil {
		return err
	}

	card := c.Card
	card.CreatedAt = card.CreatedAt.UTC()
	payload, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("encode card %s: %w", c.Card.ID, err)
	}
	ids, err := encodeIDs(c.CollectionIDs)
	if err != nil {
		return err
	}

	query, args, err := sqlBuilder.
		Insert("cards").
		Columns("id", "payload", "collection_ids", "cached_at", "created_at").
		Values(card.ID, string(payload), ids, c.CachedAt.UTC(), card.CreatedAt).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
    payload = excluded.payload,
    collection_ids = excluded.collection_ids,
    cached_at = excluded.cached_at,
    created_at = excluded.created_at`).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, query, args...); err != nil {
		log.Error("failed to cache card: %v", err)
		return fmt.Errorf("put cached card %s: %w", c.Card.ID, err)
	}
	return nil
}

func (r *cardStore) Delete(ctx context.Context, id string) error {
	log := logger.FromContext(ctx).WithPrefix("card_store")
	conn, err := r.db.Open(ctx)
	if err != nil {
		return err
	}

	query, args, err := sqlBuilder.Delete("cards").Where("id = ?", id).ToSql()
	if err != nil {
		return err
	}
	res, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to delete cached card: %v", err)
		return fmt.Errorf("delete cached card %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.Debug("delete of uncached card is a no-op: id=%s", id)
	}
	return nil
}

func (r *cardStore) GetAll(ctx context.Context) ([]models.CachedCard, error) {
	log := logger.FromContext(ctx).WithPrefix("card_store")
	conn, err := r.db.Open(ctx)
	if err != nil {
		return nil, err
	}

	query, args, err := sqlBuilder.
		Select("payload", "collection_ids", "cached_at").
		From("cards").
		OrderBy("created_at DESC", "id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list cached cards: %v", err)
		return nil, fmt.Errorf("list cached cards: %w", err)
	}
	defer rows.Close()

	cards := []models.CachedCard{}
	for rows.Next() {
		var payload, ids string
		var cachedAt time.Time
		if err := rows.Scan(&payload, &ids, &cachedAt); err != nil {
			log.Error("failed to scan cached card row: %v", err)
			return nil, err
		}
		c, err := decodeCard(payload, ids, cachedAt)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *c)
	}
	log.Debug("found %d cached cards", len(cards))
	return cards, rows.Err()
}

func (r *cardStore) Clear(ctx context.Context) error {
	conn, err := r.db.Open(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, `DELETE FROM cards`); err != nil {
		return fmt.Errorf("clear cards: %w", err)
	}
	logger.FromContext(ctx).WithPrefix("card_store").Debug("cards space cleared")
	return nil
}

func (r *cardStore) UpdateCollections(ctx context.Context, id string, collectionIDs []string) (bool, error) {
	log := logger.FromContext(ctx).WithPrefix("card_store")
	conn, err := r.db.Open(ctx)
	if err != nil {
		return false, err
	}

	ids, err := encodeIDs(collectionIDs)
	if err != nil {
		return false, err
	}
	query, args, err := sqlBuilder.
		Update("cards").
		Set("collection_ids", ids).
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return false, err
	}

	res, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to update cached membership: %v", err)
		return false, fmt.Errorf("update collections of %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	log.Debug("membership update: id=%s, updated=%t", id, n > 0)
	return n > 0, nil
}

func decodeCard(payload, ids string, cachedAt time.Time) (*models.CachedCard, error) {
	var c models.CachedCard
	if err := json.Unmarshal([]byte(payload), &c.Card); err != nil {
		return nil, fmt.Errorf("decode cached card: %w", err)
	}
	collectionIDs, err := decodeIDs(ids)
	if err != nil {
		return nil, err
	}
	c.Card.CreatedAt = c.Card.CreatedAt.UTC()
	c.CollectionIDs = collectionIDs
	c.CachedAt = cachedAt.UTC()
	return &c, nil
}
