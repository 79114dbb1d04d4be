package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
	"github.com/onbrandapp/stryp-comic-studio/pkg/generator"
	"github.com/onbrandapp/stryp-comic-studio/pkg/session"
)

// priorContextPanels は台本生成に渡す「これまでの流れ」のパネル数です。
const priorContextPanels = 6

// ScriptRequest は台本生成の入力です。
type ScriptRequest struct {
	SceneDescription string   `json:"sceneDescription" validate:"required"`
	Mood             string   `json:"mood"`
	CharacterIDs     []string `json:"characterIds"`
	LocationID       string   `json:"locationId"`
}

// GenerateScript はシーン説明から台本を作り、新しいパネルとしてプロジェクト末尾に足します。
func (m *Manager) GenerateScript(ctx context.Context, s *session.Session, req ScriptRequest) ([]domain.Panel, error) {
	all, err := m.catalog.ListCharacters(ctx, s.UserID())
	if err != nil {
		return nil, fmt.Errorf("キャラクター一覧の取得に失敗しました: %w", err)
	}
	cast := make([]domain.Character, 0, len(req.CharacterIDs))
	for _, ch := range all {
		if slices.Contains(req.CharacterIDs, ch.ID) {
			cast = append(cast, ch)
		}
	}

	current := s.Project()
	prior := generator.BuildPriorContext(current.Panels, domain.BuildCharactersMap(all), priorContextPanels)

	items, err := m.gen.GenerateScript(ctx, req.SceneDescription, req.Mood, cast, prior)
	if err != nil {
		return nil, err
	}
	panels := generator.PanelsFromScript(items)

	s.Update(func(p *domain.Project) {
		p.Panels = append(p.Panels, panels...)
		p.SceneDescription = req.SceneDescription
		p.Mood = req.Mood
		p.SelectedCharacterIDs = req.CharacterIDs
		if req.LocationID != "" {
			p.SelectedLocationID = req.LocationID
		}
	})

	slog.InfoContext(ctx, "台本からパネルを追加しました", "project", s.ProjectID(), "added", len(panels))
	return panels, nil
}
