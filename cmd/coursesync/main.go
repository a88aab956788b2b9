// coursesync boots every collaborator (C1-C13) and runs until a shutdown
// signal. There is no separate HTTP-router binary: the only externally
// reachable surface is the minimal admin HTTP server (A6).
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/campusgraph/coursesync/pkg/adapters"
	"github.com/campusgraph/coursesync/pkg/adapters/erp"
	"github.com/campusgraph/coursesync/pkg/adapters/evalsite"
	"github.com/campusgraph/coursesync/pkg/adapters/ratingsite"
	"github.com/campusgraph/coursesync/pkg/api"
	"github.com/campusgraph/coursesync/pkg/config"
	"github.com/campusgraph/coursesync/pkg/db"
	"github.com/campusgraph/coursesync/pkg/events"
	"github.com/campusgraph/coursesync/pkg/ingest"
	"github.com/campusgraph/coursesync/pkg/kv"
	"github.com/campusgraph/coursesync/pkg/logging"
	"github.com/campusgraph/coursesync/pkg/model"
	"github.com/campusgraph/coursesync/pkg/queue"
	"github.com/campusgraph/coursesync/pkg/rating"
	"github.com/campusgraph/coursesync/pkg/refcache"
	"github.com/campusgraph/coursesync/pkg/scheduler"
	"github.com/campusgraph/coursesync/pkg/service"
	"github.com/campusgraph/coursesync/pkg/snapshot"
	"github.com/campusgraph/coursesync/pkg/stream"
	"github.com/campusgraph/coursesync/pkg/worker"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	logFormat := flag.String("log-format", getEnv("LOG_FORMAT", "pretty"), "Log output format: pretty or json")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("no .env file at %s, continuing with existing environment", envPath)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	format := logging.FormatPretty
	if *logFormat == "json" || cfg.Log.Format == "json" {
		format = logging.FormatJSON
	}
	logging.Init(cfg.Log.Level, format, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("fatal startup error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.Migrate(pool); err != nil {
		return err
	}
	slog.Info("database migrated")

	kvStore := kv.New(pool)
	bus := events.New()

	refCache := refcache.New(pool, db.ReferenceLoader(pool))
	if err := refCache.Refresh(ctx); err != nil {
		slog.Error("initial reference cache refresh failed", "error", err)
	}

	snapCache := snapshot.New(db.SnapshotLoader(pool), snapshot.DefaultRefreshInterval)
	if err := snapCache.Refresh(ctx); err != nil {
		slog.Error("initial snapshot refresh failed", "error", err)
	}

	q := queue.New(pool, bus)

	courseStore := db.NewCourseStore(pool)
	ingester := ingest.New(courseStore, bus)

	termStore := db.NewTermStore(pool)

	erpAdapter, err := erp.New(cfg.Adapters.ERPBaseURL, cfg.Adapters.ERPSessionPool, ingester, termStore,
		cfg.Adapters.RequestsPerSecond, cfg.Adapters.RateLimitBurst)
	if err != nil {
		return err
	}

	ratingClient := adapters.New(cfg.Adapters.RatingBaseURL, cfg.Adapters.RequestsPerSecond, cfg.Adapters.RateLimitBurst)
	ratingClient.HTTP.Timeout = cfg.Adapters.HTTPTimeout
	ratingAdapter := ratingsite.New(cfg.Adapters.RatingSchoolID, ratingClient)
	ratingSiteStore := db.NewRatingSiteStore(pool)

	evalClient := adapters.New(cfg.Adapters.EvalBaseURL, cfg.Adapters.RequestsPerSecond, cfg.Adapters.RateLimitBurst)
	evalClient.HTTP.Timeout = cfg.Adapters.HTTPTimeout
	evalAdapter := evalsite.New(evalClient)
	evaluationStore := db.NewEvaluationStore(pool)

	ratingStore := db.NewRatingStore(pool)

	recompute := func(ctx context.Context) error {
		n, err := rating.RecomputeAll(ctx, ratingStore)
		if err != nil {
			return err
		}
		slog.Info("rating recompute finished", "scores", n)
		return nil
	}

	subSyncs := []scheduler.SubSync{
		{
			Key:      kv.KeyTermSync,
			Interval: cfg.Scheduler.TermSyncInterval,
			Run: func(ctx context.Context) error {
				terms, err := erpAdapter.FetchTerms(ctx)
				if err != nil {
					return err
				}
				return termStore.UpsertTerms(ctx, terms)
			},
		},
		{
			Key:      kv.KeyRefScrape,
			Interval: cfg.Scheduler.RefScrapeInterval,
			Run: func(ctx context.Context) error {
				return refCache.Refresh(ctx)
			},
		},
		{
			Key:      kv.KeyRmpSync,
			Interval: cfg.Scheduler.RmpSyncInterval,
			Run: func(ctx context.Context) error {
				if err := ratingAdapter.Sync(ctx, ratingSiteStore); err != nil {
					return err
				}
				if err := db.RunRatingMatch(ctx, pool); err != nil {
					return err
				}
				return recompute(ctx)
			},
		},
		{
			Key:      kv.KeyBluebook,
			Interval: cfg.Scheduler.BluebookInterval,
			Run: func(ctx context.Context) error {
				if err := syncEvaluations(ctx, termStore, erpAdapter, evalAdapter, evaluationStore); err != nil {
					return err
				}
				if err := db.RunEvaluationMatch(ctx, pool); err != nil {
					return err
				}
				return recompute(ctx)
			},
		},
	}

	sched := scheduler.New(scheduler.Deps{
		KV:        kvStore,
		Queue:     q,
		Subjects:  erpAdapter,
		SubSyncs:  subSyncs,
		LoadTerms: termStore.LoadTerms,
	})

	workers := worker.New(q, map[string]worker.Processor{
		model.TargetTypeSubject: erpAdapter,
	}, cfg.Queue.WorkerCount)

	auditStore := db.NewAuditStore(pool)
	streamMgr := stream.New(bus, auditStore, 0)

	server := api.New(pool, q, workers, sched, streamMgr)

	mgr := service.New()
	mgr.Register(service.Func{ServiceName: "refcache", Fn: func(ctx context.Context) error {
		refCache.Start(ctx, refcache.DefaultRefreshInterval, func(err error) {
			slog.Error("reference cache refresh failed", "error", err)
		})
		return nil
	}})
	mgr.Register(service.Func{ServiceName: "snapshot", Fn: func(ctx context.Context) error {
		if err := snapCache.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	}})
	mgr.Register(service.Func{ServiceName: "scheduler", Fn: func(ctx context.Context) error {
		sched.Run(ctx)
		return nil
	}})
	mgr.Register(service.Func{ServiceName: "workers", Fn: func(ctx context.Context) error {
		workers.Start(ctx)
		workers.Wait()
		return nil
	}})
	mgr.Register(service.Func{ServiceName: "http", Fn: func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() { errCh <- server.Start(":" + cfg.HTTP.Port) }()
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout())
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		}
	}})

	if err := recompute(ctx); err != nil {
		slog.Error("initial rating recompute failed", "error", err)
	}

	mgr.SpawnAll(ctx)
	slog.Info("coursesync started", "http_port", cfg.HTTP.Port)

	<-ctx.Done()
	slog.Info("shutdown signal received, draining")
	mgr.Shutdown()
	return nil
}

// syncEvaluations crawls the evaluation site for every subject of every
// enabled term and upserts the results, deduplicating across pages and
// preferring the richer row (spec §4.10).
func syncEvaluations(ctx context.Context, termStore *db.TermStore, subjects scheduler.SubjectSource, eval *evalsite.Adapter, store *db.EvaluationStore) error {
	terms, err := termStore.LoadTerms(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, term := range terms {
		if !term.IsEnabledForScraping {
			continue
		}
		category := term.Category(now)
		subjectCodes, err := subjects.SubjectsForTerm(ctx, term, category)
		if err != nil {
			slog.Error("evaluation sync: failed to resolve subjects", "term", term.Code, "error", err)
			continue
		}
		for _, subject := range subjectCodes {
			records, err := eval.FetchSubjectEvaluations(ctx, subject)
			if err != nil {
				slog.Error("evaluation sync: subject fetch failed", "subject", subject, "term", term.Code, "error", err)
				continue
			}
			if err := ingest.UpsertEvaluations(ctx, store, records); err != nil {
				slog.Error("evaluation sync: upsert failed", "subject", subject, "term", term.Code, "error", err)
			}
		}
	}
	return nil
}
