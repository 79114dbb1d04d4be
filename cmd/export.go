package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/onbrandapp/stryp-comic-studio/internal/builder"
	"github.com/onbrandapp/stryp-comic-studio/pkg/publisher"

	"github.com/spf13/cobra"
)

var exportOpts struct {
	ProjectID string
	Output    string
	Store     bool
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "プロジェクトを1ファイルで再生できる HTML プレイヤーに書き出します。",
	Long: `保存済みのプロジェクトを、外部ファイル無しで開ける HTML プレイヤーとして書き出すのだ。
--store を付けるとオブジェクトストアにも置いて、共有用の URL を表示するのだよ。`,
	RunE: exportCommand,
}

func init() {
	f := exportCmd.Flags()
	f.StringVarP(&exportOpts.ProjectID, "project", "p", "", "書き出すプロジェクト ID なのだ。")
	f.StringVarP(&exportOpts.Output, "output", "o", "", "出力先のパス。省略時は stryp-<ID>.html。")
	f.BoolVar(&exportOpts.Store, "store", false, "オブジェクトストアにもアップロードする。")
	_ = exportCmd.MarkFlagRequired("project")
}

func exportCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	app, err := builder.BuildRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeApp(ctx, app)

	uid := opts.UserID
	p, err := app.Repo.LoadProject(ctx, uid, exportOpts.ProjectID)
	if err != nil {
		return err
	}
	chars, err := app.Repo.ListCharacters(ctx, uid)
	if err != nil {
		return err
	}
	settings, err := app.Repo.LoadSettings(ctx, uid)
	if err != nil {
		return err
	}

	if exportOpts.Store {
		if err := builder.BuildUploader(ctx, app); err != nil {
			return fmt.Errorf("オブジェクトストアの初期化に失敗しました: %w", err)
		}
	} else {
		app.Publisher = publisher.NewPublisher(nil)
	}
	res, err := app.Publisher.Publish(ctx, uid, *p, chars, settings, exportOpts.Store)
	if err != nil {
		return err
	}

	out := exportOpts.Output
	if out == "" {
		out = "stryp-" + p.ID + ".html"
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
		}
	}
	if err := os.WriteFile(out, res.HTML, 0o644); err != nil {
		return fmt.Errorf("HTML の書き込みに失敗しました: %w", err)
	}

	slog.Info("HTML プレイヤーを書き出しました", "path", out, "panels", len(p.Panels))
	if res.URL != "" {
		fmt.Fprintln(cmd.OutOrStdout(), res.URL)
	}
	return nil
}
