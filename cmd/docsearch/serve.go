package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/reload"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/server/handler"
	srvmw "github.com/Adithya-Monish-Kumar-K/docsearch/internal/server/middleware"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/server/router"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/session"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search API",
	Long:  "Loads the shards, keeps the index current (file watching, Kafka notifications, manual reload) and serves incremental and one-shot search over HTTP.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting docsearch", "port", cfg.Server.Port, "source", cfg.Shards.Source)

	m := metrics.New(prometheus.DefaultRegisterer)

	src, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	eng := engine.New(src, cfg.Shards, m)
	lru := matcher.NewLRU(cfg.Search.CacheSize)
	mt := matcher.New(lru)
	eng.OnReload(func(context.Context, *engine.Report) { lru.Purge() })

	checker := health.NewChecker()
	checker.Register("index", indexCheck(eng))
	if src.db != nil {
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			return health.FromError(src.db.Ping(ctx), health.StatusDegraded)
		})
	}

	queryCache, closeCache := openCache(ctx, cfg, m, checker)
	defer closeCache()
	if queryCache != nil {
		eng.OnReload(evictReplacedGeneration(queryCache))
	}

	if _, err := eng.Reload(ctx); err != nil {
		slog.Error("initial shard load failed, serving 503 until a reload succeeds", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		ms := metrics.NewServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		ms.Handle("GET /health/ready", checker.ReadyHandler())
		g.Go(func() error { return ms.Run(ctx) })
	}

	agg := analytics.NewAggregator()
	var tracker analytics.Tracker = agg
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, 10000, 100, 5*time.Second)
		tracker = collector
		g.Go(func() error {
			collector.Run(ctx)
			return nil
		})

		// every replica sees every event and reloads on every notification,
		// so each gets its own consumer groups
		events := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents, replicaGroup(cfg.Kafka.ConsumerGroup, "analytics"), agg.HandleEvent())
		g.Go(func() error { return events.Run(ctx) })

		listener := reload.NewListener(eng)
		shards := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ShardsPublished, replicaGroup(cfg.Kafka.ConsumerGroup, "reload"), listener.Handle)
		g.Go(func() error { return shards.Run(ctx) })
		slog.Info("kafka enabled",
			"shards_topic", cfg.Kafka.Topics.ShardsPublished,
			"events_topic", cfg.Kafka.Topics.SearchEvents,
		)
	}

	if cfg.Shards.Watch && src.dir != nil {
		w := source.NewWatcher(src.dir, cfg.Shards.WatchDebounce, func(ctx context.Context) {
			if _, err := eng.Reload(ctx); err != nil {
				slog.Error("reload after file change failed", "error", err)
			}
		})
		g.Go(func() error {
			if err := w.Run(ctx); err != nil {
				slog.Error("shard watcher stopped", "error", err)
			}
			return nil
		})
	}

	registry := session.NewRegistry(eng, mt, cfg.Session, m, session.WithLimit(cfg.Search.DefaultLimit))
	g.Go(func() error {
		registry.Run(ctx)
		return nil
	})

	var limiter *srvmw.Limiter
	if cfg.RateLimit.Enabled {
		limiter = srvmw.NewLimiter(cfg.RateLimit)
		g.Go(func() error {
			limiter.Run(ctx, 5*time.Minute)
			return nil
		})
	}

	h := handler.New(eng, registry, mt, queryCache, tracker, agg, cfg.Search)
	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router.New(h, checker, router.Options{
			CORS:           cfg.CORS,
			Limiter:        limiter,
			RequestTimeout: cfg.Server.WriteTimeout,
			Metrics:        m,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("docsearch listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	err = g.Wait()
	slog.Info("docsearch stopped")
	return err
}

// indexCheck is down until the first load and degraded while the live
// index is missing shards.
func indexCheck(eng *engine.Engine) health.Check {
	return func(context.Context) health.ComponentHealth {
		r := eng.LastReport()
		if r == nil {
			return health.Down("no index loaded")
		}
		msg := fmt.Sprintf("version %d, %d entries, %d shards", r.Version, r.Entries, len(r.Shards))
		if len(r.Failed) > 0 {
			return health.Degraded(fmt.Sprintf("%s, %d failed", msg, len(r.Failed)))
		}
		return health.Up(msg)
	}
}

// openCache connects the shared page cache. Without Redis the API falls
// back to the in-process matcher cache, so failure here is not fatal.
func openCache(ctx context.Context, cfg *config.Config, m *metrics.Metrics, checker *health.Checker) (*cache.QueryCache, func()) {
	if !cfg.Redis.Enabled {
		return nil, func() {}
	}
	client, err := pkgredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, shared search cache disabled", "addr", cfg.Redis.Addr, "error", err)
		checker.Register("redis", func(context.Context) health.ComponentHealth {
			return health.Degraded("not connected")
		})
		return nil, func() {}
	}
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		return health.FromError(client.Ping(ctx), health.StatusDegraded)
	})
	slog.Info("shared search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	return cache.New(client, cfg.Redis.CacheTTL, m), func() { client.Close() }
}

func replicaGroup(base, purpose string) string {
	group := base + "-" + purpose
	if host, err := os.Hostname(); err == nil && host != "" {
		group += "-" + host
	}
	return group
}

// evictReplacedGeneration drops the shared pages of the content a reload
// replaced. Pages of the new content, possibly written by other replicas
// already, stay.
func evictReplacedGeneration(qc *cache.QueryCache) func(context.Context, *engine.Report) {
	var mu sync.Mutex
	var prev uint64
	return func(ctx context.Context, r *engine.Report) {
		digest, err := strconv.ParseUint(r.Digest, 16, 64)
		if err != nil {
			slog.Warn("reload report without digest", "version", r.Version, "error", err)
			return
		}
		mu.Lock()
		old := prev
		prev = digest
		mu.Unlock()
		if old == 0 || old == digest {
			return
		}
		if err := qc.Evict(ctx, old); err != nil {
			slog.Warn("shared cache eviction failed", "version", r.Version, "error", err)
		}
	}
}
