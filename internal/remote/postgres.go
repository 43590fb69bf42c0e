package remote

import (
	"context"
	"database/sql"
	"embed"
	stderrors "errors"
	"fmt"
	"io/fs"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/vytor/hanziflash/internal/dbx"
	"github.com/vytor/hanziflash/internal/errors"
	"github.com/vytor/hanziflash/internal/logger"
	"github.com/vytor/hanziflash/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var cardColumns = []string{"id", "polish", "hanzi", "pinyin", "audio_url", "comment", "mastered", "created_at", "reference_id"}

// PostgresGateway implements Gateway over a Postgres database.
type PostgresGateway struct {
	db *sql.DB
}

func NewPostgresGateway(db *sql.DB) *PostgresGateway {
	return &PostgresGateway{db: db}
}

// Connect prepares a pool for dsn through the pgx driver without dialing.
func Connect(dsn string) (*PostgresGateway, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open remote store: %w", err)
	}
	return NewPostgresGateway(db), nil
}

// Open connects to dsn and checks the store is reachable.
func Open(ctx context.Context, dsn string) (*PostgresGateway, error) {
	log := logger.FromContext(ctx).WithPrefix("remote")
	g, err := Connect(dsn)
	if err != nil {
		return nil, err
	}
	if err := g.Ping(ctx); err != nil {
		_ = g.Close()
		log.Error("failed to reach remote store: %v", err)
		return nil, fmt.Errorf("ping remote store: %w", err)
	}
	log.Info("connected to remote store")
	return g, nil
}

// Migrate applies the embedded schema migrations.
func (g *PostgresGateway) Migrate(ctx context.Context) error {
	log := logger.FromContext(ctx).WithPrefix("remote")
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, g.db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate remote store: %w", err)
	}
	log.Info("remote schema up to date, %d migrations applied", len(results))
	return nil
}

// Ping checks the connection; it backs the readiness probe.
func (g *PostgresGateway) Ping(ctx context.Context) error {
	return g.db.PingContext(ctx)
}

func (g *PostgresGateway) Close() error {
	return g.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (models.Card, error) {
	var c models.Card
	var audioURL, comment, referenceID sql.NullString
	err := row.Scan(&c.ID, &c.Polish, &c.Hanzi, &c.Pinyin, &audioURL, &comment, &c.Mastered, &c.CreatedAt, &referenceID)
	if err != nil {
		return c, err
	}
	c.AudioURL = nullable(audioURL)
	c.Comment = nullable(comment)
	c.ReferenceID = nullable(referenceID)
	return c, nil
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func (g *PostgresGateway) ListCards(ctx context.Context) ([]models.Card, error) {
	log := logger.FromContext(ctx).WithPrefix("remote")
	query, args, err := psql.Select(cardColumns...).From("cards").OrderBy("created_at DESC", "id").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list cards: %v", err)
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	cards := []models.Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, c)
	}
	log.Debug("listed %d cards", len(cards))
	return cards, rows.Err()
}

func (g *PostgresGateway) GetCard(ctx context.Context, id string) (*models.Card, error) {
	query, args, err := psql.Select(cardColumns...).From("cards").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	c, err := scanCard(g.db.QueryRowContext(ctx, query, args...))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get card %s: %w", id, err)
	}
	return &c, nil
}

func (g *PostgresGateway) SetMastered(ctx context.Context, id string, mastered bool) error {
	query, args, err := psql.Update("cards").Set("mastered", mastered).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	res, err := g.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set mastered on %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewNotFoundError("card", id)
	}
	return nil
}

func (g *PostgresGateway) ListCollections(ctx context.Context) ([]models.Collection, error) {
	query, args, err := psql.Select("id", "name", "color").From("collections").OrderBy("name", "id").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	out := []models.Collection{}
	for rows.Next() {
		var c models.Collection
		var color sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &color); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		c.Color = nullable(color)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (g *PostgresGateway) UpsertCollection(ctx context.Context, c models.Collection) (models.Collection, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	query, args, err := psql.
		Insert("collections").
		Columns("id", "name", "color").
		Values(c.ID, c.Name, c.Color).
		Suffix("ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, color = EXCLUDED.color").
		ToSql()
	if err != nil {
		return models.Collection{}, err
	}
	if _, err := g.db.ExecContext(ctx, query, args...); err != nil {
		return models.Collection{}, fmt.Errorf("upsert collection %s: %w", c.ID, err)
	}
	return c, nil
}

func (g *PostgresGateway) DeleteCollection(ctx context.Context, id string) error {
	return dbx.WithTx(ctx, g.db, func(ctx context.Context, tx dbx.DBTX) error {
		query, args, err := psql.Delete("card_collections").Where(squirrel.Eq{"collection_id": id}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete memberships of %s: %w", id, err)
		}

		query, args, err = psql.Delete("collections").Where(squirrel.Eq{"id": id}).ToSql()
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("delete collection %s: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return errors.NewNotFoundError("collection", id)
		}
		return nil
	})
}

func (g *PostgresGateway) CardCollections(ctx context.Context, cardID string) ([]string, error) {
	query, args, err := psql.
		Select("collection_id").
		From("card_collections").
		Where(squirrel.Eq{"card_id": cardID}).
		OrderBy("collection_id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memberships of %s: %w", cardID, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (g *PostgresGateway) Memberships(ctx context.Context) (map[string][]string, error) {
	query, args, err := psql.
		Select("card_id", "collection_id").
		From("card_collections").
		OrderBy("card_id", "collection_id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	out := map[string][]string{}
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.CardID, &m.CollectionID); err != nil {
			return nil, err
		}
		out[m.CardID] = append(out[m.CardID], m.CollectionID)
	}
	return out, rows.Err()
}

// SetCardCollections replaces the membership of a card in one transaction.
func (g *PostgresGateway) SetCardCollections(ctx context.Context, cardID string, collectionIDs []string) error {
	log := logger.FromContext(ctx).WithPrefix("remote").WithField("card_id", cardID)
	return dbx.WithTx(ctx, g.db, func(ctx context.Context, tx dbx.DBTX) error {
		query, args, err := psql.Delete("card_collections").Where(squirrel.Eq{"card_id": cardID}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("clear memberships of %s: %w", cardID, err)
		}
		if len(collectionIDs) == 0 {
			log.Debug("memberships cleared")
			return nil
		}

		insert := psql.Insert("card_collections").Columns("card_id", "collection_id")
		for _, id := range collectionIDs {
			insert = insert.Values(cardID, id)
		}
		query, args, err = insert.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert memberships of %s: %w", cardID, err)
		}
		log.Debug("memberships replaced: %d collections", len(collectionIDs))
		return nil
	})
}
