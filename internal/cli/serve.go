package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/aman-churiwal/loadmon/internal/config"
	"github.com/aman-churiwal/loadmon/internal/logging"
	"github.com/aman-churiwal/loadmon/internal/server"
	"github.com/aman-churiwal/loadmon/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the telemetry collector and registration endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			log, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			return serve(cmd.Context(), cfg, log)
		},
	}
}

func openDatabase(cfg config.DatabaseConfig) (*storage.Database, error) {
	level := logger.Warn
	if cfg.LogQueries {
		level = logger.Info
	}

	if cfg.Driver == "postgres" {
		return storage.NewPostgres(cfg.DSN, level)
	}
	return storage.NewSQLite(cfg.Path, level)
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	db, err := openDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Info("Connected to database", zap.String("driver", db.Driver()))

	var redis *storage.RedisClient
	if cfg.Registration.UsesRedis() {
		redis, err = storage.NewRedis(cfg.Redis.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer redis.Close()
		log.Info("Connected to redis", zap.String("addr", cfg.Redis.GetRedisAddr()))
	}

	srv, err := server.New(cfg, db, redis, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(":" + cfg.Server.Port)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = srv.Shutdown(context.Background())
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server exited")
	return nil
}
