package publisher

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
	"github.com/onbrandapp/stryp-comic-studio/pkg/playback"
)

func testProject() domain.Project {
	return domain.Project{
		ID:    "p1",
		Title: "Rin & the <Cave>",
		Mode:  domain.ModeStatic,
		Panels: []domain.Panel{
			{ID: "a", Dialogue: "Hello?", CharacterID: "char-rin", ImageURL: "https://cdn.example/a.png", IsGeneratingAudio: true},
			{ID: "b", Dialogue: "</script><script>alert(1)</script>", ImageURL: "data:image/png;base64,AAAA"},
			{ID: "c", AudioURL: "https://cdn.example/c.wav"},
		},
	}
}

func testChars() []domain.Character {
	return []domain.Character{
		{ID: "char-zed", Name: "Zed"},
		{ID: "char-rin", Name: "Rin"},
	}
}

func render(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := ExportHTML(&buf, testProject(), testChars(), domain.AppSettings{PanelDelay: 1200}); err != nil {
		t.Fatalf("ExportHTML: %v", err)
	}
	return buf.Bytes()
}

func TestExportHTML(t *testing.T) {
	out := render(t)

	t.Run("同じ入力なら同じバイト列", func(t *testing.T) {
		if !bytes.Equal(out, render(t)) {
			t.Error("出力が一致しません")
		}
	})

	t.Run("タイトルはエスケープされる", func(t *testing.T) {
		if !strings.Contains(string(out), "<title>Rin &amp; the &lt;Cave&gt;</title>") {
			t.Error("タイトルがエスケープされていません")
		}
	})

	t.Run("台詞から script を閉じられない", func(t *testing.T) {
		if strings.Contains(string(out), "<script>alert(1)") {
			t.Error("台詞がそのまま埋め込まれています")
		}
	})

	t.Run("埋め込みデータが読み戻せる", func(t *testing.T) {
		data, err := ParseExport(bytes.NewReader(out))
		if err != nil {
			t.Fatalf("ParseExport: %v", err)
		}
		if data.PanelDelay != 1200 || len(data.Panels) != 3 {
			t.Fatalf("data = %+v", data)
		}
		if data.Panels[1].ImageURL != "" {
			t.Errorf("ローカルプレビューが書き出されています: %q", data.Panels[1].ImageURL)
		}
		if data.Panels[0].IsGeneratingAudio {
			t.Error("生成中フラグが残っています")
		}
		if data.Panels[1].Dialogue != "</script><script>alert(1)</script>" {
			t.Errorf("台詞が壊れています: %q", data.Panels[1].Dialogue)
		}
		if ids := []string{data.Characters[0].ID, data.Characters[1].ID}; !slices.Equal(ids, []string{"char-rin", "char-zed"}) {
			t.Errorf("キャラクターが ID 順ではありません: %v", ids)
		}
	})

	t.Run("話者ごとの字幕スタイルが出る", func(t *testing.T) {
		class, _ := speakerStyle("Rin")
		if !strings.Contains(string(out), "."+class+" .who") {
			t.Errorf("%s のスタイルがありません", class)
		}
	})
}

func TestExport_PlaybackRoundTrip(t *testing.T) {
	data, err := ParseExport(bytes.NewReader(render(t)))
	if err != nil {
		t.Fatalf("ParseExport: %v", err)
	}

	steps := data.Steps()
	for i := range steps {
		steps[i].Dwell = time.Millisecond
	}
	if steps[0].Speaker != "Rin" {
		t.Errorf("Speaker = %q, want Rin", steps[0].Speaker)
	}

	p := playback.NewPlayer(steps)
	p.Start()
	var visited []string
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Run(ctx, func(s playback.Step) { visited = append(visited, s.PanelID) }); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if want := []string{"a", "b", "c"}; !slices.Equal(visited, want) {
		t.Errorf("visited = %v, want %v", visited, want)
	}
	if p.State() != playback.StateEnded {
		t.Errorf("State = %s, want ended", p.State())
	}
	if p.Next() {
		t.Error("終端から先に進めてしまう")
	}
}

func TestParseExport_Errors(t *testing.T) {
	if _, err := ParseExport(strings.NewReader("<html></html>")); err == nil {
		t.Error("埋め込みデータが無いのにエラーになりません")
	}
	if _, err := ParseExport(strings.NewReader(dataOpenTag + "{broken" + dataCloseTag)); err == nil {
		t.Error("壊れた JSON でエラーになりません")
	}
}

type fakeUploader struct {
	kind, mime string
	err        error
}

func (f *fakeUploader) UploadBytes(_ context.Context, userID, kind string, _ []byte, mimeType string) (string, error) {
	f.kind, f.mime = kind, mimeType
	if f.err != nil {
		return "", f.err
	}
	return "https://objects.example/users/" + userID + "/" + kind + "/1.html", nil
}

func TestPublisher_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("store=false ならアップロードしない", func(t *testing.T) {
		up := &fakeUploader{}
		res, err := NewPublisher(up).Publish(ctx, "u1", testProject(), testChars(), domain.DefaultSettings(), false)
		if err != nil {
			t.Fatal(err)
		}
		if res.URL != "" || up.kind != "" || len(res.HTML) == 0 {
			t.Errorf("想定外の結果です: url=%q kind=%q", res.URL, up.kind)
		}
	})

	t.Run("store=true なら exports に置く", func(t *testing.T) {
		up := &fakeUploader{}
		res, err := NewPublisher(up).Publish(ctx, "u1", testProject(), testChars(), domain.DefaultSettings(), true)
		if err != nil {
			t.Fatal(err)
		}
		if up.kind != "exports" || !strings.HasPrefix(up.mime, "text/html") {
			t.Errorf("kind=%q mime=%q", up.kind, up.mime)
		}
		if res.URL != "https://objects.example/users/u1/exports/1.html" {
			t.Errorf("URL = %q", res.URL)
		}
	})

	t.Run("アップロード失敗はそのまま返す", func(t *testing.T) {
		upErr := &domain.UploadError{Key: "k", Err: errors.New("down")}
		_, err := NewPublisher(&fakeUploader{err: upErr}).Publish(ctx, "u1", testProject(), nil, domain.DefaultSettings(), true)
		var ue *domain.UploadError
		if !errors.As(err, &ue) {
			t.Errorf("err = %v, want UploadError", err)
		}
	})

	t.Run("保存先なしで store=true はエラー", func(t *testing.T) {
		if _, err := NewPublisher(nil).Publish(ctx, "u1", testProject(), nil, domain.DefaultSettings(), true); err == nil {
			t.Error("エラーになりません")
		}
	})
}
