package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/onbrandapp/stryp-comic-studio/internal/builder"
	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "保存済みのプロジェクトを一覧表示します。",
	RunE:  projectsCommand,
}

func projectsCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	app, err := builder.BuildRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeApp(ctx, app)

	ps, err := app.Repo.ListProjects(ctx, opts.UserID)
	if err != nil {
		return err
	}
	if len(ps) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "プロジェクトはまだ無いのだ。")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderProjects(ps))
	return nil
}

// renderProjects はパネルごとの生成状況が一目で分かる表を作るのだ。
func renderProjects(ps []domain.Project) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "Title", "Mode", "Panels", "Image", "Video", "Audio", "Updated"})
	for _, p := range ps {
		var img, vid, aud int
		for _, panel := range p.Panels {
			if panel.ImageURL != "" {
				img++
			}
			if panel.VideoURL != "" {
				vid++
			}
			if panel.AudioURL != "" {
				aud++
			}
		}
		tw.AppendRow(table.Row{
			p.ID, p.Title, string(p.Mode),
			strconv.Itoa(len(p.Panels)), strconv.Itoa(img), strconv.Itoa(vid), strconv.Itoa(aud),
			formatMillis(p.UpdatedAt),
		})
	}
	aligns := make([]table.ColumnConfig, 0, 4)
	for n := 4; n <= 7; n++ {
		aligns = append(aligns, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(aligns)
	return tw.Render()
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}
