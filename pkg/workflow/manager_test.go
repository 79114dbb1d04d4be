package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
	"github.com/onbrandapp/stryp-comic-studio/pkg/generator"
	"github.com/onbrandapp/stryp-comic-studio/pkg/session"

	"github.com/shouni/gemini-image-kit/ports"
)

type fakeGenerator struct {
	imageErr   error
	lastVoice  string
	lastCast   []domain.Character
	lastPrior  string
	locationIn *domain.Location
	script     []domain.ScriptPanel
}

func (f *fakeGenerator) GenerateScript(_ context.Context, _, _ string, chars []domain.Character, prior string) ([]domain.ScriptPanel, error) {
	f.lastCast = chars
	f.lastPrior = prior
	return f.script, nil
}

func (f *fakeGenerator) GenerateImage(_ context.Context, _ string, _ *domain.Character, loc *domain.Location) (*ports.ImageResponse, error) {
	f.locationIn = loc
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	return &ports.ImageResponse{Data: []byte("png"), MimeType: "image/png"}, nil
}

func (f *fakeGenerator) GenerateVideo(context.Context, string, *domain.Character, *domain.Location) (*generator.VideoPayload, error) {
	return &generator.VideoPayload{Data: []byte("mp4"), MimeType: "video/mp4"}, nil
}

func (f *fakeGenerator) GenerateSpeech(_ context.Context, _ string, voice string) (*generator.AudioPayload, error) {
	f.lastVoice = voice
	return &generator.AudioPayload{Data: []byte("RIFF"), MimeType: "audio/wav"}, nil
}

func (f *fakeGenerator) AnalyzeCharacter(context.Context, domain.Character) (string, error) {
	return "short red hair", nil
}

func (f *fakeGenerator) AnalyzeLocation(context.Context, domain.Location) (string, error) {
	return "a limestone cave", nil
}

type fakeUploader struct {
	err      error
	observe  func()
	replaced []string
	payloads []string
}

func (f *fakeUploader) UploadBytes(_ context.Context, userID, kind string, _ []byte, _ string) (string, error) {
	if f.observe != nil {
		f.observe()
	}
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.example/users/" + userID + "/" + kind + "/1", nil
}

func (f *fakeUploader) UploadBase64(_ context.Context, userID, kind, payload, _ string) (string, error) {
	f.payloads = append(f.payloads, payload)
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.example/users/" + userID + "/" + kind + "/2", nil
}

func (f *fakeUploader) Replace(_ context.Context, _ string, oldURL string) {
	if oldURL != "" {
		f.replaced = append(f.replaced, oldURL)
	}
}

type fakeCatalog struct {
	mu        sync.Mutex
	chars     map[string]domain.Character
	locations map[string]domain.Location
	settings  domain.AppSettings
}

func (f *fakeCatalog) LoadCharacter(_ context.Context, _, id string) (*domain.Character, error) {
	c, ok := f.chars[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (f *fakeCatalog) ListCharacters(context.Context, string) ([]domain.Character, error) {
	out := make([]domain.Character, 0, len(f.chars))
	for _, c := range f.chars {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCatalog) LoadLocation(_ context.Context, _, id string) (*domain.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &l, nil
}

func (f *fakeCatalog) SaveLocation(_ context.Context, _ string, l domain.Location) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locations[l.ID] = l
	return nil
}

func (f *fakeCatalog) LoadSettings(context.Context, string) (domain.AppSettings, error) {
	return f.settings, nil
}

type fakeGuard struct {
	kind domain.BatchKind
	held bool
}

func (f *fakeGuard) HeldBy(context.Context, string) (domain.BatchKind, bool, error) {
	return f.kind, f.held, nil
}

type nopStore struct{}

func (nopStore) LoadProject(context.Context, string, string) (*domain.Project, error) {
	return nil, domain.ErrNotFound
}
func (nopStore) SaveProject(context.Context, string, domain.Project) error { return nil }

func newCatalog() *fakeCatalog {
	return &fakeCatalog{
		chars: map[string]domain.Character{
			"rin": {ID: "rin", Name: "Rin", ImageURL: "https://cdn.example/rin.png", VoiceID: "Puck"},
		},
		locations: map[string]domain.Location{
			"cave": {ID: "cave", Name: "Cave", MediaURL: "https://cdn.example/cave.png"},
		},
		settings: domain.DefaultSettings(),
	}
}

func newSession() *session.Session {
	return session.New("u1", domain.Project{
		ID:                 "p1",
		SelectedLocationID: "cave",
		Panels: []domain.Panel{
			{ID: "a", Description: "Rin enters", Dialogue: "Hello?", CharacterID: "rin", ImageURL: "https://cdn.example/old.png"},
			{ID: "b", Description: "Silence"},
		},
	}, nopStore{}, time.Hour)
}

func TestManager_GenerateImage(t *testing.T) {
	ctx := context.Background()

	t.Run("プレビューを見せてから永続 URL に置き換えること", func(t *testing.T) {
		s := newSession()
		gen := &fakeGenerator{}
		var during domain.Panel
		up := &fakeUploader{}
		up.observe = func() { during, _ = s.Panel("a") }
		m, _ := New(gen, up, newCatalog(), nil)

		res, err := m.GenerateImage(ctx, s, "a")
		if err != nil {
			t.Fatalf("エラー: %v", err)
		}
		if !strings.HasPrefix(during.ImageURL, "data:image/png;base64,") {
			t.Errorf("アップロード中にプレビューが出ていません: %q", during.ImageURL)
		}
		if p, _ := s.Panel("a"); p.ImageURL != res.URL {
			t.Errorf("永続 URL が反映されていません: %q", p.ImageURL)
		}
		if s.Jobs().Busy("a") {
			t.Errorf("ジョブが終了していません")
		}
		if len(up.replaced) != 1 || up.replaced[0] != "https://cdn.example/old.png" {
			t.Errorf("置き換え前のメディアが削除対象になっていません: %v", up.replaced)
		}
		if gen.locationIn == nil || gen.locationIn.ID != "cave" {
			t.Errorf("選択中のロケーションが渡されていません")
		}
	})

	t.Run("アップロードに失敗してもプレビューを残し未保存の印を付けること", func(t *testing.T) {
		s := newSession()
		up := &fakeUploader{err: errors.New("bucket offline")}
		m, _ := New(&fakeGenerator{}, up, newCatalog(), nil)

		_, err := m.GenerateImage(ctx, s, "b")
		var upErr *domain.UploadError
		if !errors.As(err, &upErr) {
			t.Fatalf("UploadError を期待しました: %v", err)
		}
		p, _ := s.Panel("b")
		if !strings.HasPrefix(p.ImageURL, "data:image/png") {
			t.Errorf("プレビューが失われました: %q", p.ImageURL)
		}
		if !s.IsUnsaved("b") {
			t.Errorf("未保存の印が付いていません")
		}
		if s.Jobs().Busy("b") {
			t.Errorf("ジョブが終了していません")
		}
	})

	t.Run("生成に失敗したらパネルは変わらないこと", func(t *testing.T) {
		s := newSession()
		gen := &fakeGenerator{imageErr: &domain.TimeoutError{Op: "image", Limit: 90 * time.Second}}
		m, _ := New(gen, &fakeUploader{}, newCatalog(), nil)

		_, err := m.GenerateImage(ctx, s, "a")
		var toErr *domain.TimeoutError
		if !errors.As(err, &toErr) {
			t.Fatalf("TimeoutError を期待しました: %v", err)
		}
		if p, _ := s.Panel("a"); p.ImageURL != "https://cdn.example/old.png" {
			t.Errorf("パネルが変わりました: %q", p.ImageURL)
		}
	})

	t.Run("進行中のパネルは ErrPanelBusy になること", func(t *testing.T) {
		s := newSession()
		_ = s.Jobs().TryBegin("a", domain.MediaAudio)
		m, _ := New(&fakeGenerator{}, &fakeUploader{}, newCatalog(), nil)

		if _, err := m.GenerateImage(ctx, s, "a"); !errors.Is(err, domain.ErrPanelBusy) {
			t.Fatalf("ErrPanelBusy を期待しました: %v", err)
		}
	})
}

func TestManager_SyncPanel(t *testing.T) {
	ctx := context.Background()

	t.Run("失敗したアップロードを後から保存できること", func(t *testing.T) {
		s := newSession()
		up := &fakeUploader{err: errors.New("bucket offline")}
		m, _ := New(&fakeGenerator{}, up, newCatalog(), nil)

		if _, err := m.GenerateImage(ctx, s, "b"); err == nil {
			t.Fatal("アップロードの失敗を期待しました")
		}
		preview, _ := s.Panel("b")

		// ストレージが戻る前の再試行は失敗し、プレビューと印はそのまま
		_, err := m.SyncPanel(ctx, s, "b")
		var upErr *domain.UploadError
		if !errors.As(err, &upErr) {
			t.Fatalf("UploadError を期待しました: %v", err)
		}
		if p, _ := s.Panel("b"); p.ImageURL != preview.ImageURL {
			t.Errorf("プレビューが変わりました: %q", p.ImageURL)
		}
		if !s.IsUnsaved("b") {
			t.Error("未保存の印が外れました")
		}

		up.err = nil
		results, err := m.SyncPanel(ctx, s, "b")
		if err != nil {
			t.Fatalf("エラー: %v", err)
		}
		if len(results) != 1 || results[0].Kind != domain.MediaImage {
			t.Fatalf("期待しない結果: %+v", results)
		}
		if p, _ := s.Panel("b"); p.ImageURL != results[0].URL {
			t.Errorf("期待値 %s, 実際の値 %s", results[0].URL, p.ImageURL)
		}
		if s.IsUnsaved("b") {
			t.Error("未保存の印が残っています")
		}
		if up.payloads[len(up.payloads)-1] != preview.ImageURL {
			t.Errorf("プレビューの data URI がそのまま渡されていません")
		}
		if s.Jobs().Busy("b") {
			t.Error("ジョブが終了していません")
		}
	})

	t.Run("永続 URL だけのパネルは何もしないこと", func(t *testing.T) {
		s := newSession()
		up := &fakeUploader{}
		m, _ := New(&fakeGenerator{}, up, newCatalog(), nil)

		results, err := m.SyncPanel(ctx, s, "a")
		if err != nil {
			t.Fatalf("エラー: %v", err)
		}
		if len(results) != 0 || len(up.payloads) != 0 {
			t.Errorf("アップロードは不要のはず: %+v", results)
		}
	})

	t.Run("存在しないパネルは ErrNotFound になること", func(t *testing.T) {
		m, _ := New(&fakeGenerator{}, &fakeUploader{}, newCatalog(), nil)
		if _, err := m.SyncPanel(ctx, newSession(), "zz"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("ErrNotFound を期待しました: %v", err)
		}
	})
}

func TestManager_Guard(t *testing.T) {
	ctx := context.Background()

	t.Run("画像の一括生成中は音声を受け付けないこと", func(t *testing.T) {
		m, _ := New(&fakeGenerator{}, &fakeUploader{}, newCatalog(), &fakeGuard{kind: domain.BatchVisuals, held: true})
		if _, err := m.GenerateAudio(ctx, newSession(), "a"); !errors.Is(err, domain.ErrPleaseWait) {
			t.Fatalf("ErrPleaseWait を期待しました: %v", err)
		}
	})

	t.Run("音声の一括生成中は画像を受け付けないこと", func(t *testing.T) {
		m, _ := New(&fakeGenerator{}, &fakeUploader{}, newCatalog(), &fakeGuard{kind: domain.BatchAudio, held: true})
		if _, err := m.GenerateImage(ctx, newSession(), "a"); !errors.Is(err, domain.ErrPleaseWait) {
			t.Fatalf("ErrPleaseWait を期待しました: %v", err)
		}
	})

	t.Run("同じ種類の一括生成中は受け付けること", func(t *testing.T) {
		m, _ := New(&fakeGenerator{}, &fakeUploader{}, newCatalog(), &fakeGuard{kind: domain.BatchVisuals, held: true})
		if _, err := m.GenerateVideo(ctx, newSession(), "b"); err != nil {
			t.Fatalf("エラー: %v", err)
		}
	})
}

func TestManager_GenerateAudio(t *testing.T) {
	ctx := context.Background()

	t.Run("キャラクターのボイスで読み上げること", func(t *testing.T) {
		gen := &fakeGenerator{}
		m, _ := New(gen, &fakeUploader{}, newCatalog(), nil)
		if _, err := m.GenerateAudio(ctx, newSession(), "a"); err != nil {
			t.Fatalf("エラー: %v", err)
		}
		if gen.lastVoice != "Puck" {
			t.Errorf("期待値 Puck, 実際の値 %s", gen.lastVoice)
		}
	})

	t.Run("台詞の無いパネルはエラーになること", func(t *testing.T) {
		m, _ := New(&fakeGenerator{}, &fakeUploader{}, newCatalog(), nil)
		_, err := m.GenerateAudio(ctx, newSession(), "b")
		var genErr *domain.GenerationError
		if !errors.As(err, &genErr) {
			t.Fatalf("GenerationError を期待しました: %v", err)
		}
	})
}

func TestManager_GenerateScript(t *testing.T) {
	gen := &fakeGenerator{script: []domain.ScriptPanel{
		{Description: "Rin looks back", Dialogue: "Did you hear that?", CharacterID: "rin"},
		{Description: "Dark tunnel"},
	}}
	m, _ := New(gen, &fakeUploader{}, newCatalog(), nil)
	s := newSession()

	added, err := m.GenerateScript(context.Background(), s, ScriptRequest{
		SceneDescription: "Rin explores deeper",
		Mood:             "tense",
		CharacterIDs:     []string{"rin"},
	})
	if err != nil {
		t.Fatalf("エラー: %v", err)
	}
	if len(added) != 2 {
		t.Fatalf("期待値 2 件, 実際の値 %d 件", len(added))
	}
	p := s.Project()
	if len(p.Panels) != 4 || p.Panels[2].CharacterID != "rin" {
		t.Errorf("パネルが末尾に追加されていません: %+v", p.Panels)
	}
	if p.SceneDescription != "Rin explores deeper" || p.Mood != "tense" {
		t.Errorf("シーン情報が保存されていません")
	}
	if len(gen.lastCast) != 1 || gen.lastCast[0].Name != "Rin" {
		t.Errorf("選択したキャラクターが渡されていません: %+v", gen.lastCast)
	}
	if !strings.Contains(gen.lastPrior, "Hello?") {
		t.Errorf("既存パネルの文脈が渡されていません: %q", gen.lastPrior)
	}
	if !s.WritePending() {
		t.Errorf("書き込みが予約されていません")
	}
}

func TestManager_AnalyzeLocation(t *testing.T) {
	catalog := newCatalog()
	m, _ := New(&fakeGenerator{}, &fakeUploader{}, catalog, nil)

	desc, err := m.AnalyzeLocation(context.Background(), "u1", "cave")
	if err != nil {
		t.Fatalf("エラー: %v", err)
	}
	if desc != "a limestone cave" || catalog.locations["cave"].VisualDescription != desc {
		t.Errorf("説明文が保存されていません: %+v", catalog.locations["cave"])
	}
}
