// Package server initializes and runs the vehiclecheck backend.
// It opens the database, picks the document backend, wires accounts and
// media storage into the gRPC service, serves metrics and health over HTTP
// and shuts everything down on SIGINT/SIGTERM.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/vehiclecheck/internal/docstore"
	"github.com/dmitrijs2005/vehiclecheck/internal/docstore/firestore"
	"github.com/dmitrijs2005/vehiclecheck/internal/docstore/memory"
	"github.com/dmitrijs2005/vehiclecheck/internal/docstore/postgres"
	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
	"github.com/dmitrijs2005/vehiclecheck/internal/server/accounts"
	"github.com/dmitrijs2005/vehiclecheck/internal/server/config"
	"github.com/dmitrijs2005/vehiclecheck/internal/server/media"
	"github.com/dmitrijs2005/vehiclecheck/internal/server/repositories/repomanager"

	gs "github.com/dmitrijs2005/vehiclecheck/internal/server/grpc"
)

// changeChannel is the Redis pub/sub channel document writes are fanned
// out on.
const changeChannel = "vehiclecheck:documents"

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	docs     docstore.Store
	accounts accounts.Service
	media    gs.Uploader
	registry *prometheus.Registry

	// listen follows other instances' writes; nil when there are none to follow.
	listen  func(ctx context.Context) error
	closers []func() error
}

func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	app := &App{
		config:   c,
		logger:   logger,
		db:       db,
		registry: prometheus.NewRegistry(),
	}
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := app.initDocuments(ctx); err != nil {
		app.close()
		return nil, err
	}

	if s3, err := media.NewS3Store(ctx, c); err != nil {
		logger.Warn(ctx, "media storage unavailable, uploads disabled", "error", err)
	} else {
		app.media = s3
	}

	app.accounts = accounts.NewService(db, rm, accounts.LogMailer{Log: logger}, c, logger)
	return app, nil
}

// initDocuments opens the document backend named by the configuration.
func (app *App) initDocuments(ctx context.Context) error {
	switch app.config.DocumentBackend {
	case config.BackendPostgres:
		opts := []postgres.Option{postgres.WithLogger(app.logger)}
		if app.config.RedisAddr != "" {
			rdb := redis.NewClient(&redis.Options{Addr: app.config.RedisAddr})
			app.closers = append(app.closers, rdb.Close)
			opts = append(opts, postgres.WithFeed(postgres.NewRedisFeed(rdb, changeChannel)))
		}
		store := postgres.New(app.db, opts...)
		app.closers = append(app.closers, func() error { store.Close(); return nil })
		app.listen = store.Listen
		app.docs = store

	case config.BackendMemory:
		store := memory.New(memory.WithLogger(app.logger))
		app.closers = append(app.closers, func() error { store.Close(); return nil })
		app.docs = store

	case config.BackendFirestore:
		store, err := firestore.New(ctx, app.config.FirestoreProject, app.logger)
		if err != nil {
			return fmt.Errorf("firestore init error: %w", err)
		}
		app.closers = append(app.closers, store.Close)
		app.docs = store

	default:
		return fmt.Errorf("unknown document backend %q", app.config.DocumentBackend)
	}

	app.logger.Info(ctx, "document backend ready", "backend", app.config.DocumentBackend)
	return nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	metrics := gs.NewMetrics(app.registry)
	s := gs.NewServer(app.config.EndpointAddrGRPC, app.logger, app.accounts, app.docs, app.media, app.config.SecretKey, metrics)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	checks := []healthCheck{{name: "database", check: app.db.PingContext}}
	srv := &http.Server{
		Addr:              app.config.EndpointAddrHTTP,
		Handler:           newRouter(app.registry, checks...),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(shutdownCtx, "http shutdown", "error", err)
		}
	}()

	app.logger.Info(ctx, "http server listening", "address", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.close()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.listen != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := app.listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
				app.logger.Error(ctx, "change feed stopped", "error", err)
			}
		}()
	}

	wg.Wait()
	app.logger.Info(context.Background(), "app stopped")
}

// close releases the backends in reverse order of opening, then the database.
func (app *App) close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Warn(context.Background(), "close failed", "error", err)
		}
	}
	app.closers = nil
	if err := app.db.Close(); err != nil {
		app.logger.Warn(context.Background(), "close database", "error", err)
	}
}
