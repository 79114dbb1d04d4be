package builder

import (
	"context"
	"errors"
	"log/slog"

	"github.com/onbrandapp/stryp-comic-studio/internal/config"
	"github.com/onbrandapp/stryp-comic-studio/pkg/asset"
	"github.com/onbrandapp/stryp-comic-studio/pkg/batch"
	"github.com/onbrandapp/stryp-comic-studio/pkg/generator"
	"github.com/onbrandapp/stryp-comic-studio/pkg/publisher"
	"github.com/onbrandapp/stryp-comic-studio/pkg/session"
	"github.com/onbrandapp/stryp-comic-studio/pkg/storage"
	"github.com/onbrandapp/stryp-comic-studio/pkg/workflow"
)

// AppContext は、アプリケーション実行に必要な共通コンテキストを保持する
// サーバーと CLI の各コマンドはここから部品を取り出して使うのだ。
type AppContext struct {
	Config    *config.Config
	Store     *storage.SQLiteStore
	Repo      *storage.Repository
	Hub       *storage.Hub
	Uploader  *storage.Uploader
	Fetcher   *asset.Fetcher
	Generator *generator.Client
	Sessions  *session.Registry
	Workflow  *workflow.Manager
	Token     batch.Token
	Batch     *batch.Sequencer
	Publisher *publisher.Publisher

	// closers は Close で逆順に呼ばれる後片付け
	closers []func(context.Context) error
}

func (a *AppContext) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close は保留中の書き込みを流してから、接続を逆順に閉じます。
func (a *AppContext) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		slog.WarnContext(ctx, "終了処理でエラーが発生しました", "error", err)
		return err
	}
	return nil
}
