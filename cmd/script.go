package cmd

import (
	"fmt"
	"log/slog"

	"github.com/onbrandapp/stryp-comic-studio/internal/builder"
	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
	"github.com/onbrandapp/stryp-comic-studio/pkg/workflow"

	"github.com/spf13/cobra"
)

var scriptOpts struct {
	ProjectID    string
	Scene        string
	Mood         string
	CharacterIDs []string
	LocationID   string
}

var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "シーンの説明から台本を生成し、プロジェクトの末尾にパネルを追加します。",
	RunE:  scriptCommand,
}

func init() {
	f := scriptCmd.Flags()
	f.StringVarP(&scriptOpts.ProjectID, "project", "p", "", "対象のプロジェクト ID なのだ。")
	f.StringVarP(&scriptOpts.Scene, "scene", "s", "", "シーンの説明。")
	f.StringVar(&scriptOpts.Mood, "mood", "", "雰囲気（任意）。")
	f.StringSliceVarP(&scriptOpts.CharacterIDs, "character", "c", nil, "登場させるキャラクター ID。複数指定できるのだ。")
	f.StringVarP(&scriptOpts.LocationID, "location", "l", "", "舞台にするロケーション ID。")
	_ = scriptCmd.MarkFlagRequired("project")
}

func scriptCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	req := workflow.ScriptRequest{
		SceneDescription: scriptOpts.Scene,
		Mood:             scriptOpts.Mood,
		CharacterIDs:     scriptOpts.CharacterIDs,
		LocationID:       scriptOpts.LocationID,
	}
	if err := domain.Validate(req); err != nil {
		return fmt.Errorf("--scene を指定してほしいのだ: %w", err)
	}

	app, err := builder.BuildApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("アプリケーションの初期化に失敗しました: %w", err)
	}
	defer closeApp(ctx, app)

	sess, err := app.Sessions.Open(ctx, opts.UserID, scriptOpts.ProjectID)
	if err != nil {
		return err
	}
	panels, err := app.Workflow.GenerateScript(ctx, sess, req)
	if err != nil {
		return fmt.Errorf("台本の生成に失敗しました: %w", err)
	}
	if err := sess.Save(ctx); err != nil {
		return err
	}

	for i, p := range panels {
		fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, p.Description)
		if p.Dialogue != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "   「%s」\n", p.Dialogue)
		}
	}
	slog.Info("台本をプロジェクトに追加しました", "project", scriptOpts.ProjectID, "panels", len(panels))
	return nil
}
