package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"

	"github.com/shouni/go-gemini-client/gemini"
)

func TestGenerateScript(t *testing.T) {
	rin := domain.Character{ID: "char-rin", Name: "Rin", Bio: "a young explorer"}

	t.Run("characterName が大文字小文字を無視して ID に解決されること", func(t *testing.T) {
		g := &fakeGemini{text: func(context.Context, string, string) (*gemini.Response, error) {
			return stoppedText("```json\n" + `[
				{"description":"Rin steps into the dark cave","dialogue":"Hello?","characterName":"rin"},
				{"description":"A shadow moves","dialogue":"Who's there?","characterName":"Unknown"},
				{"description":"Dripping water","dialogue":""}
			]` + "\n```"), nil
		}}
		c := newGeminiTestClient(t, g, Config{})

		panels, err := c.GenerateScript(context.Background(), "Rin enters the cave", "tense", []domain.Character{rin}, "")
		if err != nil {
			t.Fatalf("エラー: %v", err)
		}
		if len(panels) != 3 {
			t.Fatalf("期待値 3, 実際の値 %d", len(panels))
		}
		if panels[0].CharacterID != "char-rin" {
			t.Errorf("Rin の ID に解決されていません: %q", panels[0].CharacterID)
		}
		if panels[1].CharacterID != "" {
			t.Errorf("Unknown は ID 無しになるべきです: %q", panels[1].CharacterID)
		}
		if panels[2].CharacterID != "" {
			t.Errorf("ナレーションに ID が付いています: %q", panels[2].CharacterID)
		}
	})

	t.Run("モデル名とプロンプトが渡されること", func(t *testing.T) {
		g := &fakeGemini{text: func(context.Context, string, string) (*gemini.Response, error) {
			return stoppedText(`[{"description":"a","dialogue":"b"}]`), nil
		}}
		c := newGeminiTestClient(t, g, Config{ScriptModel: "script-model"})

		if _, err := c.GenerateScript(context.Background(), "Rin enters the cave", "tense", []domain.Character{rin}, "earlier: the map was found"); err != nil {
			t.Fatalf("エラー: %v", err)
		}
		call := g.lastCall()
		if call.model != "script-model" {
			t.Errorf("モデル名が違います: %s", call.model)
		}
		for _, want := range []string{"Rin enters the cave", "tense", "Rin", "earlier: the map was found", "JSON array"} {
			if !strings.Contains(call.prompt, want) {
				t.Errorf("%q がプロンプトにありません", want)
			}
		}
	})

	t.Run("モデル呼び出しの失敗は GenerationError になること", func(t *testing.T) {
		g := &fakeGemini{text: func(context.Context, string, string) (*gemini.Response, error) {
			return nil, errors.New("backend unavailable")
		}}
		c := newGeminiTestClient(t, g, Config{})

		_, err := c.GenerateScript(context.Background(), "x", "", nil, "")
		var genErr *domain.GenerationError
		if !errors.As(err, &genErr) {
			t.Fatalf("GenerationError を期待しました: %v", err)
		}
	})

	t.Run("コンテキストを無視するモデルでもハングしないこと", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		g := &fakeGemini{text: func(context.Context, string, string) (*gemini.Response, error) {
			<-release
			return nil, errors.New("late")
		}}
		c := newGeminiTestClient(t, g, Config{ScriptTimeout: 30 * time.Millisecond})

		start := time.Now()
		_, err := c.GenerateScript(context.Background(), "stuck", "", nil, "")
		var toErr *domain.TimeoutError
		if !errors.As(err, &toErr) {
			t.Fatalf("TimeoutError を期待しました: %v", err)
		}
		if toErr.Op != "script" {
			t.Errorf("期待値 script, 実際の値 %s", toErr.Op)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("締め切り後もブロックしました: %s", elapsed)
		}
	})

	t.Run("既定の締め切りは60秒であること", func(t *testing.T) {
		c := newGeminiTestClient(t, &fakeGemini{}, Config{})
		if got := c.Config().ScriptTimeout; got != 60*time.Second {
			t.Errorf("期待値 60s, 実際の値 %s", got)
		}
	})

	t.Run("解析できない出力は GenerationError になること", func(t *testing.T) {
		g := &fakeGemini{text: func(context.Context, string, string) (*gemini.Response, error) {
			return stoppedText("I cannot write that."), nil
		}}
		c := newGeminiTestClient(t, g, Config{})

		_, err := c.GenerateScript(context.Background(), "x", "", nil, "")
		var genErr *domain.GenerationError
		if !errors.As(err, &genErr) || genErr.Reason != "unparsable script output" {
			t.Fatalf("GenerationError を期待しました: %v", err)
		}
	})
}

func TestBuildPriorContext(t *testing.T) {
	chars := domain.BuildCharactersMap([]domain.Character{{ID: "rin", Name: "Rin"}})
	panels := []domain.Panel{
		{Description: "old", Dialogue: ""},
		{Description: "Rin waves", Dialogue: "Hi", CharacterID: "rin"},
		{Description: "Wind", Dialogue: "Later...", CharacterID: "deleted"},
	}

	got := BuildPriorContext(panels, chars, 2)
	if strings.Contains(got, "old") {
		t.Errorf("上限より古いパネルが含まれています: %s", got)
	}
	if !strings.Contains(got, `Rin: "Hi"`) || !strings.Contains(got, `Narrator: "Later..."`) {
		t.Errorf("想定外の文脈です: %s", got)
	}
}
