package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/l0p7/eventdesk/internal/config"
	"github.com/l0p7/eventdesk/internal/eventroutes"
	"github.com/l0p7/eventdesk/internal/gateway"
	"github.com/l0p7/eventdesk/internal/logging"
	"github.com/l0p7/eventdesk/internal/metrics"
	"github.com/l0p7/eventdesk/internal/querycache"
	"github.com/l0p7/eventdesk/internal/routing"
	"github.com/l0p7/eventdesk/internal/server"
)

type configWatcher interface {
	Stop()
}

type configLoader interface {
	Load(ctx context.Context) (config.Config, error)
	Watch(ctx context.Context, onChange func(config.Config), onError func(error)) (configWatcher, error)
}

type runnableServer interface {
	Run(ctx context.Context) error
}

// fileLoader adapts config.Loader and skips watching when no file is set.
type fileLoader struct {
	*config.Loader
}

func (l fileLoader) Watch(ctx context.Context, onChange func(config.Config), onError func(error)) (configWatcher, error) {
	if len(l.Files()) == 0 {
		return nil, nil
	}
	return l.Loader.Watch(ctx, onChange, onError)
}

var (
	newConfigLoader = func(envPrefix, file string) configLoader {
		var files []string
		if strings.TrimSpace(file) != "" {
			files = append(files, file)
		}
		return fileLoader{config.NewLoader(envPrefix, files...)}
	}
	newHTTPServer = func(cfg config.ListenConfig, logger *slog.Logger, handler http.Handler) (runnableServer, error) {
		return server.New(cfg, logger, handler)
	}
	logOutput io.Writer = os.Stdout
)

func main() {
	var (
		configFile = flag.String("config", "", "path to server configuration file")
		envPrefix  = flag.String("env-prefix", "EVENTDESK", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *envPrefix, *configFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, envPrefix, configFile string) error {
	loader := newConfigLoader(envPrefix, configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.NewWithWriter(cfg.Server.Logging, logOutput)
	if err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}

	recorder := metrics.NewRecorder(prometheus.NewRegistry())

	client, err := gateway.New(cfg.Backend.BaseURL,
		gateway.WithHTTPClient(&http.Client{Timeout: config.Duration(cfg.Backend.Timeout)}),
		gateway.WithLogger(logger),
		gateway.WithMetrics(recorder),
		gateway.WithCorrelationHeader(cfg.Server.Logging.CorrelationHeader),
	)
	if err != nil {
		return fmt.Errorf("configure gateway: %w", err)
	}

	store := buildSnapshotStore(logger.With(slog.String("agent", "snapshot_factory")), cfg.Cache.Snapshot)
	cache := querycache.New(querycache.Options{
		Logger:    logger,
		Metrics:   recorder,
		Store:     store,
		Namespace: cfg.Cache.Snapshot.Namespace,
		Policy:    policyFrom(cfg.Cache),
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := cache.Close(shutdownCtx); err != nil {
			logger.Error("query cache shutdown failed", slog.Any("error", err))
		}
	}()
	if err := cache.StartCollector(cfg.Cache.CollectSchedule); err != nil {
		return fmt.Errorf("start collector: %w", err)
	}

	app := eventroutes.New(client, cache, eventroutes.Options{
		Logger:          logger,
		Metrics:         recorder,
		EventStaleTime:  config.Duration(cfg.Queries.EventStaleTime),
		RecentStaleTime: config.Duration(cfg.Queries.RecentStaleTime),
		RecentMax:       cfg.Queries.RecentMax,
	})

	handler, err := server.NewHandler(server.HandlerOptions{
		Logger:            logger,
		Metrics:           recorder,
		CorrelationHeader: cfg.Server.Logging.CorrelationHeader,
		Cache:             cache,
		Mount: func(r chi.Router) error {
			return routing.Mount(r, logger, app.Routes()...)
		},
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	srv, err := newHTTPServer(cfg.Server.Listen, logger, handler)
	if err != nil {
		return fmt.Errorf("construct server: %w", err)
	}

	watcher, err := loader.Watch(ctx, func(next config.Config) {
		cache.SetPolicy(policyFrom(next.Cache))
		logger.Info("cache policy reloaded",
			slog.String("stale_time", next.Cache.StaleTime),
			slog.String("gc_time", next.Cache.GCTime),
		)
	}, func(err error) {
		logger.Error("config watcher error", slog.Any("error", err))
	})
	if err != nil {
		logger.Error("config watcher setup failed", slog.Any("error", err))
	} else if watcher != nil {
		defer watcher.Stop()
	}

	if recent, err := app.WatchRecent(ctx); err != nil {
		logger.Warn("recent events preview not observed", slog.Any("error", err))
	} else {
		defer recent.Close()
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		return fmt.Errorf("run server: %w", err)
	}
	logger.Info("server shutdown complete")
	return nil
}

func policyFrom(cfg config.CacheConfig) querycache.Policy {
	return querycache.Policy{
		StaleTime: config.Duration(cfg.StaleTime),
		GCTime:    config.Duration(cfg.GCTime),
	}
}

// buildSnapshotStore returns nil when snapshots are disabled. A redis store
// that cannot connect falls back to memory.
func buildSnapshotStore(logger *slog.Logger, cfg config.SnapshotConfig) querycache.Store {
	ttl := config.Duration(cfg.TTL)
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	switch strings.TrimSpace(strings.ToLower(cfg.Backend)) {
	case "", "none":
		return nil
	case "memory":
		logger.Info("using memory snapshot store", slog.Duration("ttl", ttl))
		return querycache.NewMemoryStore(ttl)
	case "redis":
		store, err := querycache.NewRedisStore(querycache.RedisConfig{
			Address:  cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS: querycache.RedisTLSConfig{
				Enabled: cfg.Redis.TLS.Enabled,
				CAFile:  cfg.Redis.TLS.CAFile,
			},
			TTL: ttl,
		})
		if err != nil {
			logger.Error("redis snapshot store initialization failed", slog.Any("error", err))
			logger.Info("falling back to memory snapshot store")
			return querycache.NewMemoryStore(ttl)
		}
		logger.Info("using redis snapshot store", slog.String("address", cfg.Redis.Address))
		return store
	default:
		logger.Warn("unsupported snapshot backend, defaulting to memory", slog.String("backend", cfg.Backend))
		return querycache.NewMemoryStore(ttl)
	}
}
