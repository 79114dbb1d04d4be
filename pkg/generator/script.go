package generator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
	"github.com/onbrandapp/stryp-comic-studio/pkg/parser"
	"github.com/onbrandapp/stryp-comic-studio/pkg/prompts"

	"github.com/shouni/go-gemini-client/gemini"
)

// GenerateScript はシーン説明から台本（パネル列）を生成します。
// characterName は渡されたキャラクターと大文字小文字を無視した完全一致で ID に解決する。
// 一致しない名前は黙って ID 無しになるのだ。
func (c *Client) GenerateScript(ctx context.Context, sceneDescription, mood string, characters []domain.Character, priorContext string) ([]domain.ScriptPanel, error) {
	cast := make([]prompts.CastMember, 0, len(characters))
	for _, ch := range characters {
		cast = append(cast, prompts.CastMember{Name: ch.Name, Bio: ch.Bio})
	}

	prompt, err := c.textPrompts.Build(prompts.ModeScript, prompts.TemplateData{
		SceneDescription: sceneDescription,
		Mood:             mood,
		PriorContext:     priorContext,
		Cast:             cast,
	})
	if err != nil {
		return nil, &domain.GenerationError{Op: "script", Reason: "prompt build failed", Err: err}
	}

	slog.InfoContext(ctx, "台本を生成しています", "model", c.cfg.ScriptModel, "characters", len(characters), "timeout", c.cfg.ScriptTimeout)

	resp, err := callWithTimeout(ctx, "script", c.cfg.ScriptTimeout, func(ctx context.Context) (*gemini.Response, error) {
		return c.text.GenerateContent(ctx, c.cfg.ScriptModel, prompt)
	})
	if err != nil {
		classified := classify("script", err)
		if _, ok := classified.(*domain.GenerationError); ok {
			return nil, classified
		}
		return nil, &domain.GenerationError{Op: "script", Reason: "model call failed", Err: classified}
	}

	items, err := parser.ParseScript(geminiText(resp))
	if err != nil {
		return nil, &domain.GenerationError{Op: "script", Reason: "unparsable script output", Err: err}
	}

	panels := make([]domain.ScriptPanel, 0, len(items))
	for _, it := range items {
		panels = append(panels, domain.ScriptPanel{
			Description: it.Description,
			Dialogue:    it.Dialogue,
			CharacterID: domain.ResolveCharacterID(it.CharacterName, characters),
		})
	}

	slog.InfoContext(ctx, "台本の生成が完了しました", "panels", len(panels))
	return panels, nil
}

// PanelsFromScript は台本から新しいパネル列を作ります。
func PanelsFromScript(items []domain.ScriptPanel) []domain.Panel {
	out := make([]domain.Panel, 0, len(items))
	for _, it := range items {
		out = append(out, domain.NewPanel(it))
	}
	return out
}

// BuildPriorContext は既存パネルから「これまでのあらすじ」を組み立てるのだ。
func BuildPriorContext(panels []domain.Panel, chars domain.CharactersMap, limit int) string {
	if limit <= 0 || len(panels) == 0 {
		return ""
	}
	start := max(len(panels)-limit, 0)

	var out string
	for _, p := range panels[start:] {
		line := p.Description
		if p.Dialogue != "" {
			speaker := "Narrator"
			if c := chars.FindCharacter(p.CharacterID); c != nil {
				speaker = c.Name
			}
			line = fmt.Sprintf("%s (%s: %q)", line, speaker, p.Dialogue)
		}
		out += "- " + line + "\n"
	}
	return out
}
