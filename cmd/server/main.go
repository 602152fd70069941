// Package main は期限チェックAPIサーバーのエントリポイント。
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

	"github.com/joho/godotenv"

	"gpg-expire-warner/config"
	"gpg-expire-warner/internal/handler"
	"gpg-expire-warner/internal/infra"
	"gpg-expire-warner/internal/repository"
	"gpg-expire-warner/internal/usecase"
	"gpg-expire-warner/migrations"
)

const (
	version         = "1.0.0"
	shutdownTimeout = 30 * time.Second
)

func main() {
	// .envファイルを読み込む（既存の環境変数は上書きしない）
	_ = godotenv.Load()

	cfg := config.Load()
	infra.SetupLogger(os.Stdout, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// run は依存を組み立ててサーバーを起動し、ctxがキャンセルされるまで待つ。
func run(ctx context.Context, cfg *config.Config) error {
	tp, err := infra.InitTracer(ctx, cfg, version)
	if err != nil {
		return fmt.Errorf("failed to init tracer: %w", err)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	db, err := infra.NewDB(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}

	// 履歴テーブルは起動時に最新化する
	migrationService := usecase.NewMigrationService(repository.NewMigrationRepository(db), db, migrations.FS)
	applied, err := migrationService.ApplyMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	slog.Info("history database ready", "driver", cfg.DatabaseDriver, "applied_migrations", applied)

	gpg := infra.NewGPGClient(cfg.GPGBinary, infra.WithHomedir(cfg.GNUPGHome))
	service := usecase.NewExpiryService(gpg, repository.NewCheckRepository(db))

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.NewRouter(handler.NewCheckHandler(service)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "port", cfg.Port, "gpg", cfg.GPGBinary)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
