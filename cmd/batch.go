package cmd

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/onbrandapp/stryp-comic-studio/internal/builder"
	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"

	"github.com/spf13/cobra"
)

var batchOpts struct {
	ProjectID string
	Yes       bool
}

var batchCmd = &cobra.Command{
	Use:       "batch [visuals|audio]",
	Short:     "未生成のパネルをまとめて生成します。",
	Long:      `出力がまだ無いパネルを並び順に間隔を空けて投入するのだ。Ctrl-C で投入を止めても、投入済みのジョブは最後まで走るのだよ。`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(domain.BatchVisuals), string(domain.BatchAudio)},
	RunE:      batchCommand,
}

func init() {
	f := batchCmd.Flags()
	f.StringVarP(&batchOpts.ProjectID, "project", "p", "", "対象のプロジェクト ID なのだ。")
	f.BoolVarP(&batchOpts.Yes, "yes", "y", false, "確認せずに開始する。")
	_ = batchCmd.MarkFlagRequired("project")
}

func batchCommand(cmd *cobra.Command, args []string) error {
	kind := domain.BatchKind(args[0])
	if kind != domain.BatchVisuals && kind != domain.BatchAudio {
		return fmt.Errorf("種類は visuals か audio を指定してほしいのだ: %q", args[0])
	}

	ctx := cmd.Context()
	app, err := builder.BuildApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("アプリケーションの初期化に失敗しました: %w", err)
	}
	defer closeApp(ctx, app)

	sess, err := app.Sessions.Open(ctx, opts.UserID, batchOpts.ProjectID)
	if err != nil {
		return err
	}

	// シグナルで止めるのは投入ループだけ
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			app.Batch.Stop(opts.UserID, batchOpts.ProjectID)
		}
	}()

	confirm := func(n int) bool {
		if batchOpts.Yes {
			return true
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d 枚のパネルを生成します。よろしいですか？ [y/N]: ", n)
		line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		}
		return false
	}

	report, err := app.Batch.Start(ctx, sess, kind, confirm)
	if err != nil {
		return fmt.Errorf("一括生成に失敗しました: %w", err)
	}
	if err := sess.Save(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case report.Planned == 0:
		fmt.Fprintln(out, "生成が必要なパネルは無いのだ。")
	case report.Declined:
		fmt.Fprintln(out, "中止しました。")
	default:
		fmt.Fprintf(out, "投入 %d / 対象 %d, 成功 %d, 失敗 %d\n", report.Submitted, report.Planned, report.Succeeded, report.Failed)
		if report.Stopped {
			fmt.Fprintln(out, "途中で投入を止めました。")
		}
	}
	return nil
}
