package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/onbrandapp/stryp-comic-studio/internal/config"
	"github.com/onbrandapp/stryp-comic-studio/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// globalOptions はすべてのサブコマンドに効くフラグなのだ。
type globalOptions struct {
	EnvFile  string
	Addr     string
	DBPath   string
	LogLevel string
	LogFile  string
	UserID   string
}

var (
	opts      globalOptions
	cfg       *config.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:               "stryp",
	Short:             "AI で漫画のストーリーボードを作るスタジオなのだ。",
	SilenceUsage:      true,
	PersistentPreRunE: preRunAppE,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func addAppFlags(c *cobra.Command) {
	f := c.PersistentFlags()
	f.StringVar(&opts.EnvFile, "env-file", ".env", "読み込む .env ファイルのパス。無ければ無視するのだ。")
	f.StringVar(&opts.Addr, "addr", "", "待ち受けアドレス（ADDR より優先）。")
	f.StringVar(&opts.DBPath, "db", "", "SQLite データベースのパス（DB_PATH より優先）。")
	f.StringVar(&opts.LogLevel, "log-level", "", "ログレベル debug/info/warn/error。")
	f.StringVar(&opts.LogFile, "log-file", "", "ログをローテーションしながら書き出すファイル。")
	f.StringVarP(&opts.UserID, "user", "U", "local", "CLI から操作するユーザー ID。")
}

// preRunAppE は .env と設定を読み込み、ログを整えます。
func preRunAppE(c *cobra.Command, _ []string) error {
	if err := godotenv.Load(opts.EnvFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf(".env の読み込みに失敗しました: %w", err)
	}

	loaded, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		loaded.Addr = opts.Addr
	}
	if opts.DBPath != "" {
		loaded.DBPath = opts.DBPath
	}
	if opts.LogLevel != "" {
		loaded.Log.Level = opts.LogLevel
	}
	if opts.LogFile != "" {
		loaded.Log.File = opts.LogFile
	}
	cfg = loaded

	closer, err := logging.Setup(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	logCloser = closer
	slog.Debug("設定を読み込みました", "command", c.Name(), "db", cfg.DBPath)
	return nil
}

// closeApp は後片付けのエラーをログに残すだけにするのだ。
func closeApp(ctx context.Context, closer interface{ Close(context.Context) error }) {
	if err := closer.Close(context.WithoutCancel(ctx)); err != nil {
		slog.Warn("終了処理でエラーが発生しました", "error", err)
	}
}

// Execute は main から呼ばれるエントリーポイントです。
func Execute() {
	addAppFlags(rootCmd)
	rootCmd.AddCommand(serveCmd, scriptCmd, exportCmd, projectsCmd, batchCmd, tokenCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
