// Package db owns the process-wide offline database: a versioned SQLite file
// holding the "cards", "audio" and "collections" record spaces.
package db

import (
	"context"
	"database/sql"
	"embed"
	stderrors "errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/vytor/hanziflash/internal/errors"
	"github.com/vytor/hanziflash/internal/logger"
	"golang.org/x/sync/singleflight"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotAcquired is returned by Release when no reference is held.
var ErrNotAcquired = stderrors.New("offline database released without acquire")

// goose keeps its base FS, dialect and logger in package globals.
var migrateMu sync.Mutex

type DB struct {
	*sql.DB
	log *logger.Logger
}

func open(ctx context.Context, path string, log *logger.Logger) (*DB, error) {
	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", path)
	log.Info("opening offline database: %s", path)

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		log.Error("failed to open database: %v", err)
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		log.Error("failed to ping database: %v", err)
		return nil, fmt.Errorf("ping offline database: %w", err)
	}

	db := &DB{DB: sqlDB, log: log}
	if err := db.migrate(ctx); err != nil {
		_ = sqlDB.Close()
		log.Error("failed to apply migrations: %v", err)
		return nil, err
	}

	log.Info("offline database ready")
	return db, nil
}

func (db *DB) migrate(ctx context.Context) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{log: db.log})
	goose.SetVerbose(db.log.Enabled(logger.DEBUG))
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	before, err := goose.GetDBVersionContext(ctx, db.DB)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	after, err := goose.GetDBVersionContext(ctx, db.DB)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if after != before {
		db.log.Info("schema migrated from version %d to %d", before, after)
	} else {
		db.log.Debug("schema at version %d", after)
	}
	return nil
}

// Version returns the applied schema version.
func (db *DB) Version(ctx context.Context) (int64, error) {
	migrateMu.Lock()
	defer migrateMu.Unlock()
	if err := goose.SetDialect("sqlite3"); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db.DB)
}

type gooseLogger struct {
	log *logger.Logger
}

func (g gooseLogger) Printf(format string, v ...any) { g.log.Debug(format, v...) }

// Fatalf is reported as an error; migration failures surface through the
// returned error instead of exiting the process.
func (g gooseLogger) Fatalf(format string, v ...any) { g.log.Error(format, v...) }

// Provider hands out the single shared *DB for a database path. The file is
// opened and migrated lazily on first use; concurrent first callers wait on
// the same open.
type Provider struct {
	path  string
	log   *logger.Logger
	group singleflight.Group

	mu   sync.Mutex
	db   *DB
	refs int
}

// NewProvider returns a provider for the SQLite file at path. An empty path
// yields a provider without durable storage.
func NewProvider(path string) *Provider {
	return &Provider{
		path: path,
		log:  logger.Default().WithPrefix("db"),
	}
}

// Available reports whether this provider has durable storage at all.
func (p *Provider) Available() bool {
	return p != nil && p.path != ""
}

// Open returns the shared database, opening and migrating it on first call.
// A failed open is not remembered, so a later call retries.
func (p *Provider) Open(ctx context.Context) (*DB, error) {
	if !p.Available() {
		return nil, errors.ErrStorageUnavailable
	}
	if db := p.current(); db != nil {
		return db, nil
	}

	v, err, shared := p.group.Do("open", func() (any, error) {
		if db := p.current(); db != nil {
			return db, nil
		}
		// The open outlives the caller that happened to trigger it.
		db, err := open(context.WithoutCancel(ctx), p.path, p.log)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.db = db
		p.mu.Unlock()
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		p.log.Debug("joined in-flight database open")
	}
	return v.(*DB), nil
}

// Acquire opens the database and takes a reference on it. Every Acquire must
// be paired with a Release.
func (p *Provider) Acquire(ctx context.Context) (*DB, error) {
	db, err := p.Open(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.refs++
	p.mu.Unlock()
	return db, nil
}

// Release drops a reference taken by Acquire and closes the database once
// the last reference is gone. Without an outstanding reference it returns
// ErrNotAcquired and leaves the database open.
func (p *Provider) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refs == 0 {
		return ErrNotAcquired
	}
	p.refs--
	if p.refs > 0 || p.db == nil {
		return nil
	}
	return p.closeLocked()
}

// Close closes the database regardless of outstanding references.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs = 0
	if p.db == nil {
		return nil
	}
	return p.closeLocked()
}

func (p *Provider) closeLocked() error {
	p.log.Debug("closing offline database")
	err := p.db.Close()
	p.db = nil
	return err
}

func (p *Provider) current() *DB {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db
}
