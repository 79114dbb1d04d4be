package prompts

import (
	"strings"
	"testing"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
)

func TestTextPromptBuilder(t *testing.T) {
	b, err := NewTextPromptBuilder()
	if err != nil {
		t.Fatalf("初期化に失敗しました: %v", err)
	}

	t.Run("台本プロンプトにシーンとキャストが入ること", func(t *testing.T) {
		got, err := b.Build(ModeScript, TemplateData{
			SceneDescription: "Rin enters the cave",
			Mood:             "tense",
			Cast:             []CastMember{{Name: "Rin", Bio: "a young explorer"}},
		})
		if err != nil {
			t.Fatalf("Build に失敗しました: %v", err)
		}
		for _, want := range []string{"Rin enters the cave", "tense", "- Rin: a young explorer"} {
			if !strings.Contains(got, want) {
				t.Errorf("%q が含まれていません:\n%s", want, got)
			}
		}
		if strings.Contains(got, "Story so far") {
			t.Error("前回の文脈が無いのにセクションが出力されました")
		}
	})

	t.Run("不明なモードはエラーになること", func(t *testing.T) {
		if _, err := b.Build("unknown", TemplateData{}); err == nil {
			t.Error("エラーになりませんでした")
		}
	})
}

func TestBuildImagePrompt(t *testing.T) {
	pb := NewImagePromptBuilder("watercolor")
	char := &domain.Character{ID: "rin", Name: "Rin"}
	loc := &domain.Location{Name: "Cave", Description: "damp notes", VisualDescription: "a dark limestone cave"}

	got := pb.BuildImagePrompt(SceneInput{
		Action:          "Rin lifts a lantern",
		Character:       char,
		CharacterVisual: "short red hair, green cloak",
		Location:        loc,
	})

	order := []string{"GLOBAL VISUAL STYLE", "STYLE_DNA: watercolor", "SUBJECT [Rin]", "short red hair", "SCENE ACTION", "Rin lifts a lantern", "LOCATION", "a dark limestone cave"}
	last := -1
	for _, want := range order {
		idx := strings.Index(got, want)
		if idx < 0 {
			t.Fatalf("%q が含まれていません:\n%s", want, got)
		}
		if idx < last {
			t.Errorf("%q の位置が前後しています", want)
		}
		last = idx
	}
	if strings.Contains(got, "damp notes") {
		t.Error("visualDescription があるのにメモが使われました")
	}

	t.Run("キャラクターもロケーションも無い場合", func(t *testing.T) {
		got := pb.BuildImagePrompt(SceneInput{Action: "an empty street"})
		if strings.Contains(got, "CHARACTER") || strings.Contains(got, "LOCATION") {
			t.Errorf("不要なセクションがあります:\n%s", got)
		}
	})
}

func TestBuildVideoPrompt(t *testing.T) {
	pb := NewImagePromptBuilder("")
	got := pb.BuildVideoPrompt(SceneInput{
		Action:    "Rin runs",
		Character: &domain.Character{Name: "Rin"},
	})
	if !strings.HasPrefix(got, VideoPreamble) || !strings.Contains(got, "Main character: Rin.") || !strings.Contains(got, "Action: Rin runs.") {
		t.Errorf("想定外のプロンプトです: %s", got)
	}
}
