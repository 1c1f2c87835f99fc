// Package app assembles the sync engine from configuration: it opens both
// databases, runs migrations, establishes the session and wires every
// per-type store pair into one Engine.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/inkwellhq/inkwell-sync/internal/blob"
	"github.com/inkwellhq/inkwell-sync/internal/config"
	"github.com/inkwellhq/inkwell-sync/internal/feed"
	"github.com/inkwellhq/inkwell-sync/internal/logging"
	"github.com/inkwellhq/inkwell-sync/internal/model"
	"github.com/inkwellhq/inkwell-sync/internal/session"
	"github.com/inkwellhq/inkwell-sync/internal/store/postgres"
	"github.com/inkwellhq/inkwell-sync/internal/store/sqlite"
	"github.com/inkwellhq/inkwell-sync/internal/sync"
)

// App is one assembled engine instance plus the resources it owns.
type App struct {
	config   *config.Config
	logger   logging.Logger
	engine   *sync.Engine
	localDB  *sql.DB
	remoteDB *sql.DB
}

// New builds the app: databases, migrations, session, stores and engine.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.New(cfg.LogLevel, cfg.LogFile)

	localDB, err := sqlite.Open(ctx, cfg.LocalDBPath)
	if err != nil {
		return nil, err
	}

	remoteDB, err := postgres.Open(ctx, cfg.RemoteDSN)
	if err != nil {
		localDB.Close()
		return nil, err
	}
	fail := func(err error) (*App, error) {
		localDB.Close()
		remoteDB.Close()
		return nil, err
	}

	meta := sqlite.NewMetadataRepo(localDB)
	sess, err := session.New(ctx, cfg.AuthToken, []byte(cfg.TokenSecret), meta)
	if err != nil {
		return fail(fmt.Errorf("failed to establish session: %w", err))
	}
	logger.Info(ctx, "session established", "owner", sess.OwnerID, "device", sess.DeviceID)

	registry := sync.NewRegistry()
	for i := range model.Types {
		t := model.Types[i].Type
		remote, err := postgres.NewStore(remoteDB, t, sess.OwnerID, sess.DeviceID)
		if err != nil {
			return fail(err)
		}
		if err := registry.Register(t, sqlite.NewStore(localDB, t), remote); err != nil {
			return fail(err)
		}
	}

	localBlobs := blob.NewFSStore(cfg.BlobDir)
	var remoteBlobs blob.Store
	if cfg.S3.Bucket != "" {
		remoteBlobs, err = blob.NewS3Store(ctx, cfg.S3)
		if err != nil {
			return fail(fmt.Errorf("failed to init blob bucket: %w", err))
		}
	} else {
		// Single-machine setups without a bucket still get asset sync
		// through a second local directory.
		logger.Warn(ctx, "no blob bucket configured, using local remote-blob mirror")
		remoteBlobs = blob.NewFSStore(filepath.Join(cfg.BlobDir, "remote"))
	}

	subscriber := feed.NewSubscriber(cfg.RemoteDSN, sess.OwnerID, logger)
	engine, err := sync.NewEngine(sync.Options{
		Session:      sess,
		Registry:     registry,
		Pending:      sqlite.NewPendingDeletionRepo(localDB),
		RemoteLedger: postgres.NewDeletionLedgerRepo(remoteDB),
		LocalBlobs:   localBlobs,
		RemoteBlobs:  remoteBlobs,
		Notifier:     sync.NopNotifier{},
		Meta:         meta,
		DialFeed: func(ctx context.Context) (sync.Channel, error) {
			return subscriber.Dial(ctx)
		},
		Probe:           remoteDB.PingContext,
		LedgerRetention: cfg.LedgerRetention,
		ProbeInterval:   cfg.ProbeInterval,
		Logger:          logger,
	})
	if err != nil {
		return fail(err)
	}

	return &App{
		config:   cfg,
		logger:   logger,
		engine:   engine,
		localDB:  localDB,
		remoteDB: remoteDB,
	}, nil
}

// Engine exposes the assembled engine for embedding applications.
func (a *App) Engine() *sync.Engine {
	return a.engine
}

// Run starts the engine and blocks until an interrupt or ctx cancellation.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.initSignalHandler(cancel)

	a.logger.Info(ctx, "starting sync engine")
	err := a.engine.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	a.Close()
	return err
}

// SyncOnce runs a single reconciliation pass and exits.
func (a *App) SyncOnce(ctx context.Context) error {
	defer a.Close()
	return a.engine.SyncAll(ctx)
}

// PruneLedgers drops deletion-ledger entries older than the retention window
// from both stores and exits. Every pass prunes too; this is the out-of-band
// variant for setups that sync rarely.
func (a *App) PruneLedgers(ctx context.Context) error {
	defer a.Close()
	cutoff := time.Now().Add(-a.config.LedgerRetention)

	n, err := sqlite.NewPendingDeletionRepo(a.localDB).PruneOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune pending deletions: %w", err)
	}
	m, err := postgres.NewDeletionLedgerRepo(a.remoteDB).PruneOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune remote deletion ledger: %w", err)
	}
	a.logger.Info(ctx, "pruned deletion ledgers",
		"cutoff", cutoff, "pending", n, "remote", m)
	return nil
}

func (a *App) initSignalHandler(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancel()
	}()
}

// Close releases both database handles.
func (a *App) Close() {
	if err := a.localDB.Close(); err != nil {
		a.logger.Warn(context.Background(), "failed to close local db", "error", err)
	}
	if err := a.remoteDB.Close(); err != nil {
		a.logger.Warn(context.Background(), "failed to close remote db", "error", err)
	}
}
