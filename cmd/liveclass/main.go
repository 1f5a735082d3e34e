package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/liveclass-scheduler/internal/application"
	"github.com/example/liveclass-scheduler/internal/config"
	httptransport "github.com/example/liveclass-scheduler/internal/http"
	"github.com/example/liveclass-scheduler/internal/identity"
	"github.com/example/liveclass-scheduler/internal/lock"
	"github.com/example/liveclass-scheduler/internal/logging"
	"github.com/example/liveclass-scheduler/internal/persistence/sqlite"
	"github.com/example/liveclass-scheduler/internal/recurrence"
	"github.com/example/liveclass-scheduler/internal/scheduler"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Env, os.Stdout)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("liveclass scheduler stopped", logging.Err(err))
		os.Exit(1)
	}
}

type app struct {
	handler      http.Handler
	storage      *sqlite.Storage
	closeLock    func() error
	materializer *application.Materializer
}

func (a *app) Close() error {
	return errors.Join(a.closeLock(), a.storage.Close())
}

// startJobs runs the materializer in the background. The returned stop
// cancels it and blocks until the current pass has returned, so storage can
// be closed afterwards.
func (a *app) startJobs(ctx context.Context, interval time.Duration) (stop func()) {
	jobCtx, cancel := context.WithCancel(ctx)
	var jobs sync.WaitGroup
	jobs.Add(1)
	go func() {
		defer jobs.Done()
		a.materializer.Run(jobCtx, interval)
	}()
	return func() {
		cancel()
		jobs.Wait()
	}
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	tokens, err := application.NewStreamTokens(cfg.StreamSecret, cfg.StreamTokenTTL)
	if err != nil {
		return nil, err
	}
	verifier, err := identity.NewVerifier(cfg.AuthSecret, time.Now)
	if err != nil {
		return nil, err
	}

	storage, err := sqlite.Open(cfg.SQLiteDSN, logger)
	if err != nil {
		return nil, err
	}
	if err := storage.Migrate(ctx); err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	locker, closeLock, err := newLocker(ctx, cfg.RedisAddr)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	courses := sqlite.NewCourseRepository(storage)
	enrollments := sqlite.NewEnrollmentRepository(storage)
	sessions := sqlite.NewLiveSessionRepository(storage)
	engine := recurrence.NewEngine(cfg.Location)

	liveSessions := application.NewLiveSessionService(application.LiveSessionDeps{
		Courses:         courses,
		Enrollments:     enrollments,
		Sessions:        sessions,
		Attendance:      sqlite.NewAttendanceRepository(storage),
		Tokens:          tokens,
		Resolver:        scheduler.NewResolver(engine),
		IDGenerator:     uuid.NewString,
		Now:             time.Now,
		UpcomingHorizon: cfg.UpcomingHorizon,
		Logger:          logger,
	})
	schedules := application.NewScheduleService(application.ScheduleDeps{
		Courses:     courses,
		Enrollments: enrollments,
		Sessions:    sessions,
		Engine:      engine,
		IDGenerator: uuid.NewString,
		Now:         time.Now,
		Logger:      logger,
	})
	materializer := application.NewMaterializer(courses, sessions, locker, engine, cfg.MaterializeHorizon, uuid.NewString, time.Now, logger)

	handler := httptransport.NewRouter(httptransport.RouterConfig{
		Sessions:  httptransport.NewLiveSessionHandler(liveSessions, logger),
		Schedules: httptransport.NewScheduleHandler(schedules, logger),
		Verifier:  verifier,
		Health:    storage,
		Logger:    logger,
	})

	return &app{handler: handler, storage: storage, closeLock: closeLock, materializer: materializer}, nil
}

// newLocker uses Redis when an address is configured so replicas share one
// materializer; a single process falls back to an in-memory lock.
func newLocker(ctx context.Context, redisAddr string) (application.Locker, func() error, error) {
	if redisAddr == "" {
		return lock.NewLocalLock(time.Now), func() error { return nil }, nil
	}
	redisLock, err := lock.NewRedisLock(ctx, redisAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis lock: %w", err)
	}
	return redisLock, redisLock.Close, nil
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	stopJobs := a.startJobs(ctx, cfg.MaterializeInterval)
	defer func() {
		stopJobs()
		if err := a.Close(); err != nil {
			logger.Error("failed to release resources", logging.Err(err))
		}
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", logging.Err(err))
		}
	}()

	logger.Info("liveclass scheduler listening", "addr", server.Addr, "env", cfg.Env, "timezone", cfg.Location.String())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
