package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/crmhub/crm-api/internal/api"
	"github.com/crmhub/crm-api/internal/core/ports"
	"github.com/crmhub/crm-api/internal/core/service"
	"github.com/crmhub/crm-api/internal/infrastructure/config"
	mongostore "github.com/crmhub/crm-api/internal/infrastructure/db/mongo"
	redisstore "github.com/crmhub/crm-api/internal/infrastructure/db/redis"
	sqlstore "github.com/crmhub/crm-api/internal/infrastructure/db/sql"
	"github.com/crmhub/crm-api/internal/infrastructure/events"
	"github.com/crmhub/crm-api/internal/infrastructure/http/handlers"
	"github.com/crmhub/crm-api/internal/infrastructure/oauth"
	"github.com/crmhub/crm-api/internal/infrastructure/queue"
	"github.com/crmhub/crm-api/internal/infrastructure/storage"
	"github.com/crmhub/crm-api/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "crm-api: %v\n", err)
		os.Exit(1)
	}
}

// stores groups the persistence backends selected by configuration.
type stores struct {
	users     ports.UserRepository
	customers ports.CustomerRepository
	blobs     ports.BlobStore
	checks    []handlers.Check
	closers   []func(context.Context) error
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "crm-api",
		Env:     cfg.Env,
	})

	st, err := openStores(ctx, cfg, logger.Component("store"))
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for i := len(st.closers) - 1; i >= 0; i-- {
			if err := st.closers[i](closeCtx); err != nil {
				log.Warn().Err(err).Msg("close store")
			}
		}
	}()

	// --- Redis: token revocation + user cache ---
	rdb, err := redisstore.Connect(ctx, redisstore.Config{
		URL:      cfg.Redis.URL,
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()
	st.checks = append(st.checks, handlers.RedisCheck(rdb))

	tokenStore := redisstore.NewTokenStore(rdb)
	userCache := redisstore.NewUserCache(rdb, cfg.Redis.UserCacheTTL, logger.Component("cache"))

	// --- Audit events ---
	auditLog := logger.Component("audit")
	sink, err := openSink(cfg, auditLog)
	if err != nil {
		return err
	}
	dispatcher := queue.NewDispatcher(cfg.Events.Workers, sink, auditLog)
	dispatcher.Start()
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := dispatcher.Close(drainCtx); err != nil {
			log.Warn().Err(err).Msg("close audit sink")
		}
	}()

	// --- Services ---
	authOpts := []service.AuthOption{
		service.WithUserCache(userCache),
		service.WithTokenStore(tokenStore),
		service.WithEventPublisher(dispatcher),
	}
	if cfg.Google.Enabled() {
		authOpts = append(authOpts, service.WithIdentityProvider(oauth.NewGoogle(oauth.GoogleConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
		})))
	} else {
		log.Info().Msg("google login disabled: GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET not set")
	}

	authService := service.NewAuthService(st.users, service.AuthConfig{
		JWTSecret:       cfg.JWTSecret,
		TokenTTL:        cfg.TokenTTL,
		ProviderTimeout: cfg.Google.Timeout,
	}, logger.Component("auth"), authOpts...)
	userService := service.NewUserService(st.users, st.customers, userCache, dispatcher, logger.Component("users"))
	customerService := service.NewCustomerService(st.customers, st.blobs, dispatcher, cfg.Media.MaxPhotoBytes, logger.Component("customers"))

	if err := authService.EnsureAdmin(ctx, cfg.Bootstrap.AdminUsername, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword); err != nil {
		return err
	}

	e := api.NewRouter(api.Deps{
		Auth:      authService,
		Users:     userService,
		Customers: customerService,
		Blobs:     st.blobs,
		MediaURL:  cfg.Media.URL,
		BodyLimit: cfg.BodyLimit,
		Checks:    st.checks,
		Logger:    logger.Component("http"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	st := &stores{}

	switch cfg.StoreDriver {
	case config.StoreMongo:
		client, db, err := mongostore.Connect(ctx, mongostore.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, client.Disconnect)
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		st.users = mongostore.NewUserRepository(db)
		st.customers = mongostore.NewCustomerRepository(db)
		st.checks = append(st.checks, handlers.MongoCheck(db))
		if cfg.Media.Driver == config.BlobGridFS {
			st.blobs = mongostore.NewGridFSStore(db)
		}

	default:
		db, err := sqlstore.Open(ctx, sqlstore.Config{
			Driver: cfg.StoreDriver,
			DSN:    cfg.SQL.DSN,
			Debug:  cfg.LogLevel == "debug",
		})
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func(context.Context) error { return sqlstore.Close(db) })
		st.users = sqlstore.NewUserRepository(db)
		st.customers = sqlstore.NewCustomerRepository(db)
		st.checks = append(st.checks, handlers.SQLCheck(db))
	}

	if st.blobs == nil {
		fs, err := storage.NewFSStore(cfg.Media.Root)
		if err != nil {
			return nil, err
		}
		st.blobs = fs
	}

	log.Info().
		Str("store", cfg.StoreDriver).
		Str("blobs", cfg.Media.Driver).
		Msg("stores ready")
	return st, nil
}

func openSink(cfg *config.Config, log zerolog.Logger) (ports.EventSink, error) {
	switch cfg.Events.Driver {
	case config.EventsKafka:
		return events.NewKafkaSink(cfg.Events.KafkaBroker, cfg.Events.KafkaTopic), nil
	case config.EventsRabbitMQ:
		return events.NewRabbitMQSink(cfg.Events.RabbitMQURL, cfg.Events.RabbitMQQueue)
	default:
		return events.NewLogSink(log), nil
	}
}
