// Package main はgpg鍵の期限チェックCLIのエントリポイント。
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"gpg-expire-warner/config"
	"gpg-expire-warner/internal/infra"
	"gpg-expire-warner/internal/repository"
	"gpg-expire-warner/internal/usecase"
	"gpg-expire-warner/migrations"
)

const version = "1.0.0"

// 終了コード
const (
	exitClear   = 0
	exitFlagged = 1
	exitFatal   = 2
)

// exitCodeError はRunEからmainへ終了コードを伝える。
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error { return e.err }

func main() {
	// .envファイルを読み込む（存在しない場合は無視）
	_ = godotenv.Load()

	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// execute はコマンドを実行して終了コードを返す。
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	infra.SetupLogger(stderr, cfg)

	tp, err := infra.InitTracer(ctx, cfg, version)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		return exitFatal
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	rootCmd := newRootCmd(cfg)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err = rootCmd.ExecuteContext(ctx)
	if err == nil {
		return exitClear
	}

	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", exitErr.err)
		}
		return exitErr.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitFatal
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	opts := &checkOptions{}
	rootCmd := &cobra.Command{
		Use:   "gpg-expire-warner [flags] KEY...",
		Short: "Warn about GPG keys that expire soon",
		Long: "Lists the given GPG keys with gpg and prints every key or subkey that expires\n" +
			"within --days days. With --expire the expiry of those keys is extended.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.keys = args
			opts.daysSet = cmd.Flags().Changed("days")
			return runCheck(cmd, cfg, opts)
		},
	}

	flags := rootCmd.Flags()
	flags.Int64VarP(&opts.warnDays, "days", "d", 0, "Number of days before expiry to start warning")
	flags.StringVar(&opts.expire, "expire", "", "Run gpg --quick-set-expire with this expiry for each key that expires soon")
	flags.StringVar(&opts.configPath, "config", "", "Check profile (TOML) to read instead of the default locations")
	flags.BoolVar(&opts.all, "all", false, "Check every key in the keyring")
	flags.StringVar(&opts.homedir, "homedir", "", "GnuPG home directory (or set GNUPGHOME)")
	flags.BoolVar(&opts.record, "record", false, "Store the check result in the history database")
	flags.StringVar(&opts.output, "output", outputText, "Output format: text, json")

	rootCmd.AddCommand(newHistoryCmd(cfg))
	rootCmd.AddCommand(newMigrateCmd(cfg))
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gpg-expire-warner version %s\n", version)
		},
	}
}

// openHistoryDB は履歴データベースに接続し、未適用のマイグレーションを適用する。
func openHistoryDB(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	db, err := infra.NewDB(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	migrationService := usecase.NewMigrationService(repository.NewMigrationRepository(db), db, migrations.FS)
	if _, err := migrationService.ApplyMigrations(ctx); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return db, nil
}
