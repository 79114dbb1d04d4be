package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/onbrandapp/stryp-comic-studio/internal/builder"
	"github.com/onbrandapp/stryp-comic-studio/internal/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "HTTP API と WebSocket を起動します。",
	Long: `スタジオの HTTP API と購読用の WebSocket を起動するのだ。
SIGINT / SIGTERM を受けると処理中のリクエストを待ってから止まり、予約中の書き込みも流し切るのだよ。`,
	RunE: serveCommand,
}

func serveCommand(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := builder.BuildApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("アプリケーションの初期化に失敗しました: %w", err)
	}
	defer closeApp(ctx, app)

	auth, err := server.NewAuthenticator(cfg.JWTSecret, cfg.AllowedOrigins)
	if err != nil {
		return err
	}
	srv, err := server.New(server.Deps{
		Repo:      app.Repo,
		Hub:       app.Hub,
		Sessions:  app.Sessions,
		Workflow:  app.Workflow,
		Token:     app.Token,
		Batch:     app.Batch,
		Publisher: app.Publisher,
		Uploader:  app.Uploader,
		Media:     app.Fetcher,
	}, auth)
	if err != nil {
		return err
	}

	slog.Info("スタジオを起動します", "addr", cfg.Addr, "origins", cfg.AllowedOrigins)
	return srv.ListenAndServe(ctx, cfg.Addr)
}
