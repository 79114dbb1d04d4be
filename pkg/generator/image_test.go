package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"

	"github.com/shouni/go-gemini-client/gemini"
	"google.golang.org/genai"
)

func TestGenerateImage(t *testing.T) {
	t.Run("画像バイト列と MIME タイプが返ること", func(t *testing.T) {
		g := &fakeGemini{parts: func(context.Context, string, []*genai.Part, gemini.GenerateOptions) (*gemini.Response, error) {
			return imageResponse("image/jpeg", []byte("jpeg")), nil
		}}
		c := newGeminiTestClient(t, g, Config{ImageModel: "img"})

		img, err := c.GenerateImage(context.Background(), "a quiet street", nil, nil)
		if err != nil {
			t.Fatalf("エラー: %v", err)
		}
		if img.MimeType != "image/jpeg" || string(img.Data) != "jpeg" {
			t.Errorf("想定外の結果です: %+v", img)
		}

		call := g.lastCall()
		if call.model != "img" {
			t.Errorf("期待値 img, 実際の値 %s", call.model)
		}
		if call.opts.AspectRatio != "16:9" {
			t.Errorf("期待値 16:9, 実際の値 %s", call.opts.AspectRatio)
		}
		if len(call.opts.SafetySettings) != 4 {
			t.Errorf("安全設定が4カテゴリありません: %d", len(call.opts.SafetySettings))
		}
	})

	t.Run("90秒相当の締め切りを超えたら TimeoutError になること", func(t *testing.T) {
		g := &fakeGemini{parts: func(ctx context.Context, _ string, _ []*genai.Part, _ gemini.GenerateOptions) (*gemini.Response, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}
		c := newGeminiTestClient(t, g, Config{ImageTimeout: 30 * time.Millisecond})

		start := time.Now()
		_, err := c.GenerateImage(context.Background(), "slow", nil, nil)
		var toErr *domain.TimeoutError
		if !errors.As(err, &toErr) {
			t.Fatalf("TimeoutError を期待しました: %v", err)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("締め切り後もブロックしました: %s", elapsed)
		}
	})

	t.Run("コンテキストを無視するモデルでもハングしないこと", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		g := &fakeGemini{parts: func(context.Context, string, []*genai.Part, gemini.GenerateOptions) (*gemini.Response, error) {
			<-release
			return nil, errors.New("late")
		}}
		c := newGeminiTestClient(t, g, Config{ImageTimeout: 30 * time.Millisecond})

		_, err := c.GenerateImage(context.Background(), "stuck", nil, nil)
		var toErr *domain.TimeoutError
		if !errors.As(err, &toErr) {
			t.Fatalf("TimeoutError を期待しました: %v", err)
		}
	})

	t.Run("クォータ超過は QuotaExceededError になること", func(t *testing.T) {
		g := &fakeGemini{parts: func(context.Context, string, []*genai.Part, gemini.GenerateOptions) (*gemini.Response, error) {
			return nil, errors.New("Error 429, Message: Resource has been exhausted (e.g. check quota)., Status: RESOURCE_EXHAUSTED")
		}}
		c := newGeminiTestClient(t, g, Config{})

		_, err := c.GenerateImage(context.Background(), "x", nil, nil)
		var qErr *domain.QuotaExceededError
		if !errors.As(err, &qErr) {
			t.Fatalf("QuotaExceededError を期待しました: %v", err)
		}
		if !strings.Contains(domain.UserMessage(err), "quota") {
			t.Errorf("利用者向けメッセージが不適切です: %s", domain.UserMessage(err))
		}
	})

	t.Run("テキストだけの応答は GenerationError になること", func(t *testing.T) {
		g := &fakeGemini{parts: func(context.Context, string, []*genai.Part, gemini.GenerateOptions) (*gemini.Response, error) {
			return stoppedText("I can't draw that."), nil
		}}
		c := newGeminiTestClient(t, g, Config{})

		_, err := c.GenerateImage(context.Background(), "x", nil, nil)
		var genErr *domain.GenerationError
		if !errors.As(err, &genErr) || !strings.Contains(err.Error(), "no image data") {
			t.Fatalf("GenerationError を期待しました: %v", err)
		}
	})

	t.Run("外見解析の結果とロケーションがプロンプトに入り参照画像が添付されること", func(t *testing.T) {
		g := &fakeGemini{parts: func(_ context.Context, model string, _ []*genai.Part, _ gemini.GenerateOptions) (*gemini.Response, error) {
			if model == "vis" {
				return stoppedText("short red hair, green cloak"), nil
			}
			return imageResponse("image/png", []byte("png")), nil
		}}
		c := newGeminiTestClient(t, g, Config{VisionModel: "vis", ImageModel: "img"})

		rin := &domain.Character{ID: "rin", Name: "Rin", Bio: "explorer", ImageURL: "https://cdn.example/rin.png"}
		cave := &domain.Location{Name: "Cave", VisualDescription: "a limestone cave"}
		if _, err := c.GenerateImage(context.Background(), "Rin lifts a lantern", rin, cave); err != nil {
			t.Fatalf("エラー: %v", err)
		}

		last := g.lastCall()
		prompt := last.lastPrompt()
		for _, want := range []string{"short red hair", "Character notes: explorer", "Rin lifts a lantern", "a limestone cave"} {
			if !strings.Contains(prompt, want) {
				t.Errorf("%q がプロンプトにありません:\n%s", want, prompt)
			}
		}
		if len(last.parts) != 2 || last.parts[0].InlineData == nil || last.parts[0].InlineData.MIMEType != "image/png" {
			t.Errorf("参照画像が添付されていません: %+v", last.parts)
		}
	})

	t.Run("外見解析が失敗しても bio で画像生成を続けること", func(t *testing.T) {
		g := &fakeGemini{parts: func(_ context.Context, model string, _ []*genai.Part, _ gemini.GenerateOptions) (*gemini.Response, error) {
			if model == "vis" {
				return nil, errors.New("vision down")
			}
			return imageResponse("image/png", []byte("png")), nil
		}}
		c := newGeminiTestClient(t, g, Config{VisionModel: "vis", ImageModel: "img"})

		rin := &domain.Character{ID: "rin", Name: "Rin", Bio: "explorer with a lantern", ImageURL: "https://cdn.example/rin.png"}
		if _, err := c.GenerateImage(context.Background(), "Rin waits", rin, nil); err != nil {
			t.Fatalf("前段の失敗が表に出ました: %v", err)
		}
		if prompt := g.lastCall().lastPrompt(); !strings.Contains(prompt, "explorer with a lantern") {
			t.Errorf("bio が使われていません:\n%s", prompt)
		}
	})
}

func TestImageReferences(t *testing.T) {
	rin := &domain.Character{ImageURL: "https://cdn.example/a.png", ImageURL2: "data:image/png;base64,AA=="}
	cave := &domain.Location{Media: []domain.LocationMedia{
		{URL: "https://cdn.example/cave.mp4", Type: domain.LocationVideo},
		{URL: "gs://bucket/cave.png", Type: domain.LocationImage},
		{URL: "https://cdn.example/cave2.png", Type: domain.LocationImage},
		{URL: "https://cdn.example/cave3.png", Type: domain.LocationImage},
	}}

	got := imageReferences(rin, cave)
	want := []string{"https://cdn.example/a.png", "gs://bucket/cave.png", "https://cdn.example/cave2.png"}
	if len(got) != len(want) {
		t.Fatalf("期待値 %d 件, 実際の値 %d 件: %+v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i].ReferenceURL != w {
			t.Errorf("期待値 %s, 実際の値 %s", w, got[i].ReferenceURL)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"APIError 429", genai.APIError{Code: 429, Message: "slow down"}, "quota"},
		{"resource exhausted の文言", errors.New("RESOURCE_EXHAUSTED"), "quota"},
		{"APIError 403", genai.APIError{Code: 403, Message: "denied"}, "permission"},
		{"その他", errors.New("boom"), "generation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("image", tt.err)
			var (
				q *domain.QuotaExceededError
				p *domain.PermissionError
				g *domain.GenerationError
			)
			got := ""
			switch {
			case errors.As(err, &q):
				got = "quota"
			case errors.As(err, &p):
				got = "permission"
			case errors.As(err, &g):
				got = "generation"
			}
			if got != tt.want {
				t.Errorf("期待値 %s, 実際の値 %s (%v)", tt.want, got, err)
			}
		})
	}
}
