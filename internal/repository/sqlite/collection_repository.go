package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vytor/hanziflash/internal/dbx"
	"github.com/vytor/hanziflash/internal/logger"
	"github.com/vytor/hanziflash/internal/models"
	"github.com/vytor/hanziflash/internal/repository"
)

type collectionStore struct {
	db Opener
}

// NewCollectionStore creates the SQLite implementation of the "collections" space.
func NewCollectionStore(db Opener) repository.CollectionStore {
	return &collectionStore{db: db}
}

func (r *collectionStore) Get(ctx context.Context, id string) (*models.Collection, error) {
	conn, err := r.db.Open(ctx)
	if err != nil {
		return nil, err
	}
	query, args, err := sqlBuilder.Select("id", "name", "color").From("collections").Where("id = ?", id).ToSql()
	if err != nil {
		return nil, err
	}

	var c models.Collection
	var color sql.NullString
	err = conn.QueryRowContext(ctx, query, args...).Scan(&c.ID, &c.Name, &color)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get collection %s: %w", id, err)
	}
	if color.Valid {
		c.Color = &color.String
	}
	return &c, nil
}

// Put replaces every given collection by key in one transaction.
func (r *collectionStore) Put(ctx context.Context, collections ...models.Collection) error {
	log := logger.FromContext(ctx).WithPrefix("collection_store")
	if len(collections) == 0 {
		return nil
	}
	conn, err := r.db.Open(ctx)
	if err != nil {
		return err
	}

	log.Debug("upserting %d collections", len(collections))
	return dbx.WithTx(ctx, conn.DB, func(ctx context.Context, tx dbx.DBTX) error {
		for _, c := range collections {
			var color any
			if c.Color != nil {
				color = *c.Color
			}
			query, args, err := sqlBuilder.
				Insert("collections").
				Columns("id", "name", "color").
				Values(c.ID, c.Name, color).
				Suffix("ON CONFLICT(id) DO UPDATE SET name = excluded.name, color = excluded.color").
				ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				log.Error("failed to upsert collection %s: %v", c.ID, err)
				return fmt.Errorf("put collection %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

func (r *collectionStore) Delete(ctx context.Context, id string) error {
	conn, err := r.db.Open(ctx)
	if err != nil {
		return err
	}
	query, args, err := sqlBuilder.Delete("collections").Where("id = ?", id).ToSql()
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete collection %s: %w", id, err)
	}
	return nil
}

func (r *collectionStore) GetAll(ctx context.Context) ([]models.Collection, error) {
	conn, err := r.db.Open(ctx)
	if err != nil {
		return nil, err
	}
	query, args, err := sqlBuilder.Select("id", "name", "color").From("collections").OrderBy("name", "id").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	out := []models.Collection{}
	for rows.Next() {
		var c models.Collection
		var color sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &color); err != nil {
			return nil, err
		}
		if color.Valid {
			c.Color = &color.String
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *collectionStore) Clear(ctx context.Context) error {
	conn, err := r.db.Open(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, `DELETE FROM collections`); err != nil {
		return fmt.Errorf("clear collections: %w", err)
	}
	return nil
}
