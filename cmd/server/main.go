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

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/admission-allocation/internal/config"
	"github.com/iliyamo/admission-allocation/internal/database"
	"github.com/iliyamo/admission-allocation/internal/handler"
	"github.com/iliyamo/admission-allocation/internal/ledger"
	"github.com/iliyamo/admission-allocation/internal/lifecycle"
	"github.com/iliyamo/admission-allocation/internal/logger"
	"github.com/iliyamo/admission-allocation/internal/metrics"
	"github.com/iliyamo/admission-allocation/internal/middleware"
	"github.com/iliyamo/admission-allocation/internal/queue"
	"github.com/iliyamo/admission-allocation/internal/repository"
	"github.com/iliyamo/admission-allocation/internal/router"
	"github.com/iliyamo/admission-allocation/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "admission server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy, err := service.ParseQuotaPolicy(cfg.QuotaPolicy)
	if err != nil {
		return err
	}
	m := metrics.New(prometheus.DefaultRegisterer)
	led := ledger.New(log, m)

	var (
		store  service.Store
		health handler.Pinger
	)
	switch cfg.StorageDriver {
	case config.DriverMySQL:
		db, err := database.Open(ctx, cfg.DB)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		sqlStore := repository.NewSQLStore(db)
		if cfg.Migrate {
			if err := database.Migrate(ctx, db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			n, err := sqlStore.Counters.SyncFromSeatMatrices(ctx)
			if err != nil {
				return fmt.Errorf("sync quota counters: %w", err)
			}
			log.Info("quota counters synced", zap.Int64("created", n))
		}
		drift, err := sqlStore.Counters.Drift(ctx)
		if err != nil {
			return fmt.Errorf("check quota counters: %w", err)
		}
		for _, d := range drift {
			m.IncInvariantViolation()
			log.Error("quota counter disagrees with admissions",
				zap.Uint64("program_id", d.ProgramID),
				zap.String("quota", string(d.QuotaType)),
				zap.Int("allocated", d.Allocated),
				zap.Int("admissions", d.Admissions),
			)
		}
		store, health = sqlStore, db
	case config.DriverMemory:
		mem := repository.NewMemoryStore(led)
		if cfg.SeedFile != "" {
			if err := mem.LoadSeedFile(cfg.SeedFile); err != nil {
				return err
			}
		}
		log.Warn("using in-memory storage; state is lost on exit")
		store = mem
	}

	var publisher service.Publisher
	g, gctx := errgroup.WithContext(ctx)
	if cfg.EventsEnabled {
		pub := queue.NewPublisher(cfg.RabbitMQURL, cfg.EventsQueue, log)
		publisher = pub
		g.Go(func() error { return pub.Run(gctx) })
		consumer := queue.NewConsumer(cfg.RabbitMQURL, cfg.EventsQueue, queue.NewAuditLog(cfg.AuditLogDir), log)
		g.Go(func() error { return consumer.Run(gctx) })
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithLedger(led),
		service.WithQuotaPolicy(policy),
		service.WithNumberFormat(lifecycle.NumberFormat{InstitutionCode: cfg.InstitutionCode}),
	}
	if publisher != nil {
		opts = append(opts, service.WithPublisher(publisher))
	}
	svc := service.New(store, opts...)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(middleware.RequestLogger(log))

	var limiter echo.MiddlewareFunc
	if rl := config.LoadRateLimitConfig(); rl.Enabled {
		rdb := config.NewRedisClient(ctx, config.LoadRedisConfig())
		if rdb == nil {
			log.Warn("redis unreachable; rate limiting disabled")
		} else {
			defer rdb.Close()
			limiter = middleware.NewTokenBucket(rl, rdb, log)
		}
	}
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET not set; /v1 routes are unauthenticated")
	}
	router.RegisterRoutes(e, handler.NewAdmissionHandler(svc), router.Options{
		JWTSecret: cfg.JWTSecret,
		RateLimit: limiter,
		Health:    health,
	})

	addr := ":" + cfg.Port
	g.Go(func() error {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("storage", cfg.StorageDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
