// Package app assembles the offline caching stack from configuration. Both
// the HTTP server and the maintenance CLI are built on it.
package app

import (
	"context"
	"fmt"

	"github.com/vytor/hanziflash/internal/config"
	"github.com/vytor/hanziflash/internal/db"
	"github.com/vytor/hanziflash/internal/fetch"
	"github.com/vytor/hanziflash/internal/jobs"
	"github.com/vytor/hanziflash/internal/logger"
	"github.com/vytor/hanziflash/internal/models"
	"github.com/vytor/hanziflash/internal/objecturl"
	"github.com/vytor/hanziflash/internal/offline"
	"github.com/vytor/hanziflash/internal/remote"
	"github.com/vytor/hanziflash/internal/repository"
	"github.com/vytor/hanziflash/internal/repository/sqlite"
	"github.com/vytor/hanziflash/internal/services"
	"github.com/vytor/hanziflash/internal/worker"
)

type App struct {
	Config   config.Config
	Provider *db.Provider
	Remote   *remote.PostgresGateway
	Gateway  remote.Gateway
	Registry *objecturl.Registry
	Manager  *offline.Manager
	Pool     *worker.Pool
	Study    services.StudyService

	log *logger.Logger
	// acquired is true while the app holds a reference on Provider.
	acquired bool
}

// New wires every component described by cfg. Nothing is started; call
// Start to run background caching.
//
// The offline database is opened and referenced up front; when that fails
// the stores retry the open on first use. An unreachable remote store
// is not fatal unless migrations were requested: reads fall back to the
// offline cache until it answers again.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	log := logger.FromContext(ctx).WithPrefix("app")
	a := &App{Config: cfg, log: log}

	storage, err := a.openStorage()
	if err != nil {
		return nil, err
	}
	a.acquireStorage(ctx)

	fetcher, err := newFetcher(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := a.openRemote(ctx); err != nil {
		_ = a.closeStorage()
		return nil, err
	}

	a.Registry = objecturl.NewRegistry(cfg.BlobPrefix)
	a.Manager = offline.NewManager(storage, fetcher,
		offline.WithRegistry(a.Registry),
		offline.WithLogger(logger.Default().WithPrefix("offline")),
	)

	a.Pool = worker.NewPool(cfg.CacheWorkerCount, cfg.CacheQueueSize)
	var study services.StudyService
	queue := jobs.NewWorkerQueue(a.Pool, worker.CardCacherFunc(func(ctx context.Context, cardID string) (models.StatusEvent, error) {
		return study.CacheCard(ctx, cardID)
	}))
	study = services.NewStudyService(a.Gateway, a.Manager, queue)
	a.Study = study

	log.Info("offline storage available: %t", a.Manager.Available())
	return a, nil
}

func (a *App) openStorage() (repository.Storage, error) {
	if !a.Config.OfflineEnabled() {
		a.log.Warn("OFFLINE_DB_PATH is empty, offline caching disabled")
		return repository.Unavailable(), nil
	}
	a.Provider = db.NewProvider(a.Config.OfflineDBPath)
	storage, err := sqlite.NewStorage(a.Provider, sqlite.Options{
		CompressAudio:    a.Config.AudioCompression,
		CompressionLevel: a.Config.AudioCompressionLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("create offline storage: %w", err)
	}
	return storage, nil
}

func (a *App) acquireStorage(ctx context.Context) {
	if a.Provider == nil {
		return
	}
	conn, err := a.Provider.Acquire(ctx)
	if err != nil {
		a.log.WithError(err).Warn("offline database not ready, will retry on first use")
		return
	}
	a.acquired = true
	if version, err := conn.Version(ctx); err == nil {
		a.log.Info("offline database at schema version %d", version)
	}
}

func (a *App) openRemote(ctx context.Context) error {
	if !a.Config.RemoteEnabled() {
		a.log.Warn("REMOTE_DSN is empty, serving from the offline cache only")
		a.Gateway = remote.Unavailable()
		return nil
	}
	g, err := remote.Connect(a.Config.RemoteDSN)
	if err != nil {
		return err
	}
	if err := g.Ping(ctx); err != nil {
		if a.Config.RemoteMigrate {
			_ = g.Close()
			return fmt.Errorf("remote store unreachable, cannot migrate: %w", err)
		}
		a.log.Warn("remote store unreachable, serving from the offline cache until it returns: %v", err)
	} else if a.Config.RemoteMigrate {
		if err := g.Migrate(ctx); err != nil {
			_ = g.Close()
			return err
		}
	}
	a.Remote = g
	a.Gateway = g
	return nil
}

func newFetcher(ctx context.Context, cfg config.Config) (fetch.Fetcher, error) {
	httpFetcher := fetch.NewHTTPFetcher(
		fetch.WithTimeout(cfg.FetchTimeout),
		fetch.WithMaxBytes(cfg.FetchMaxBytes),
	)
	mux := fetch.NewMux().
		Handle("http", httpFetcher).
		Handle("https", httpFetcher)

	if cfg.S3Enabled() {
		client, err := fetch.NewS3Client(ctx, fetch.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		mux.Handle("s3", fetch.NewS3Fetcher(client, cfg.FetchMaxBytes))
	}
	return mux, nil
}

// Start runs the background caching workers until ctx is cancelled or
// Close is called.
func (a *App) Start(ctx context.Context) {
	a.Pool.Start(ctx)
}

// CheckOffline probes the offline database. Disabled storage is reported as
// ready.
func (a *App) CheckOffline(ctx context.Context) error {
	if a.Provider == nil {
		return nil
	}
	_, err := a.Provider.Open(ctx)
	return err
}

// CheckRemote probes the remote store.
func (a *App) CheckRemote(ctx context.Context) error {
	if a.Remote == nil {
		return nil
	}
	return a.Remote.Ping(ctx)
}

// Close drains the caching workers, then closes the remote pool and the
// offline database.
func (a *App) Close() error {
	a.log.Debug("stopping cache pool")
	a.Pool.Stop()

	var firstErr error
	if a.Remote != nil {
		a.log.Debug("closing remote store")
		if err := a.Remote.Close(); err != nil {
			firstErr = err
		}
	}
	if err := a.closeStorage(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// closeStorage drops the app's reference, or force-closes a database that
// was only opened lazily.
func (a *App) closeStorage() error {
	if a.Provider == nil {
		return nil
	}
	if a.acquired {
		a.acquired = false
		return a.Provider.Release()
	}
	return a.Provider.Close()
}
