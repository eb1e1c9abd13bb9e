package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cmlabs-hris/timecard-backend-go/internal/config"
	"github.com/cmlabs-hris/timecard-backend-go/internal/domain/attendance"
	appHTTP "github.com/cmlabs-hris/timecard-backend-go/internal/handler/http"
	"github.com/cmlabs-hris/timecard-backend-go/internal/pkg/cron"
	"github.com/cmlabs-hris/timecard-backend-go/internal/pkg/database"
	"github.com/cmlabs-hris/timecard-backend-go/internal/pkg/i18n"
	"github.com/cmlabs-hris/timecard-backend-go/internal/pkg/jwt"
	"github.com/cmlabs-hris/timecard-backend-go/internal/pkg/sse"
	"github.com/cmlabs-hris/timecard-backend-go/internal/repository/memory"
	"github.com/cmlabs-hris/timecard-backend-go/internal/repository/mongodb"
	"github.com/cmlabs-hris/timecard-backend-go/internal/repository/postgresql"
	attendanceService "github.com/cmlabs-hris/timecard-backend-go/internal/service/attendance"
)

const (
	version         = "v1.0.0"
	shutdownTimeout = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel()})))

	if err := i18n.Init(cfg.App.DefaultLocale); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	attendanceRepo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	JWTService, err := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration)
	if err != nil {
		return fmt.Errorf("init jwt: %w", err)
	}

	hub := sse.NewHub()
	attendanceSvc := attendanceService.NewAttendanceService(attendanceRepo, policy, hub, time.Now)
	attendanceHandler := appHTTP.NewAttendanceHandler(attendanceSvc, JWTService, hub)

	scheduler := cron.NewScheduler()
	cron.NewAttendanceJobs(attendanceRepo, policy, cfg.Attendance.AbsenceJobInterval, time.Now).RegisterJobs(scheduler)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	router := appHTTP.NewRouter(appHTTP.RouterOptions{
		AllowedOrigins: cfg.App.CORSAllowedOrigins,
		Env:            cfg.App.Env,
		Version:        version,
		LogLevel:       cfg.LogLevel(),
	}, JWTService, attendanceHandler)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Server running", "addr", server.Addr, "store", cfg.App.StoreType, "timezone", policy.Location.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openStore connects the configured attendance store and returns its cleanup.
func openStore(ctx context.Context, cfg *config.Config) (attendance.AttendanceRepository, func(), error) {
	switch cfg.App.StoreType {
	case config.StoreTypePostgres:
		db, err := database.NewPostgreSQLDB(cfg.DatabaseURL())
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := postgresql.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return postgresql.NewAttendanceRepository(db), db.Close, nil

	case config.StoreTypeMongo:
		db, err := database.NewMongoDB(cfg.MongoDB.URI, cfg.MongoDB.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongodb: %w", err)
		}
		closeFn := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := db.Close(closeCtx); err != nil {
				slog.Error("Failed to disconnect mongodb", "error", err)
			}
		}
		repo, err := mongodb.NewAttendanceRepository(ctx, db)
		if err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("init mongodb repository: %w", err)
		}
		return repo, closeFn, nil

	case config.StoreTypeMemory:
		slog.Warn("Using in-memory attendance store, records are lost on restart")
		return memory.NewAttendanceRepository(), func() {}, nil
	}

	return nil, nil, fmt.Errorf("unsupported store type %q", cfg.App.StoreType)
}
