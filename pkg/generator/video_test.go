package generator

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"

	"google.golang.org/genai"
)

func TestExtractVideo(t *testing.T) {
	const encoded = "dmlkZW8=" // "video"

	tests := []struct {
		name     string
		envelope map[string]any
		wantMime string
	}{
		{
			name: "generatedVideos 形式",
			envelope: map[string]any{"response": map[string]any{
				"generatedVideos": []any{map[string]any{"video": map[string]any{"videoBytes": encoded, "mimeType": "video/webm"}}},
			}},
			wantMime: "video/webm",
		},
		{
			name: "generateVideoResponse.generatedSamples 形式",
			envelope: map[string]any{"response": map[string]any{
				"generateVideoResponse": map[string]any{
					"generatedSamples": []any{map[string]any{"video": map[string]any{"bytesBase64Encoded": encoded}}},
				},
			}},
			wantMime: "video/mp4",
		},
		{
			name: "response.videos 形式",
			envelope: map[string]any{"response": map[string]any{
				"videos": []any{map[string]any{"bytesBase64Encoded": encoded, "mimeType": "video/mp4"}},
			}},
			wantMime: "video/mp4",
		},
		{
			name: "トップレベルの generatedVideos 形式",
			envelope: map[string]any{
				"generatedVideos": []any{map[string]any{"video": map[string]any{"videoBytes": encoded}}},
			},
			wantMime: "video/mp4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractVideo(tt.envelope)
			if err != nil {
				t.Fatalf("エラー: %v", err)
			}
			if string(got.Data) != "video" {
				t.Errorf("期待値 video, 実際の値 %q", got.Data)
			}
			if got.MimeType != tt.wantMime {
				t.Errorf("期待値 %s, 実際の値 %s", tt.wantMime, got.MimeType)
			}
		})
	}

	t.Run("URI だけの応答は未対応エラーになること", func(t *testing.T) {
		_, err := ExtractVideo(map[string]any{"response": map[string]any{
			"generatedVideos": []any{map[string]any{"video": map[string]any{"uri": "https://files.example/v.mp4"}}},
		}})
		if !errors.Is(err, ErrVideoURIOnly) {
			t.Fatalf("ErrVideoURIOnly を期待しました: %v", err)
		}
		var genErr *domain.GenerationError
		if !errors.As(err, &genErr) || !strings.HasPrefix(genErr.Reason, "unsupported") {
			t.Errorf("未対応であることが読み取れません: %v", err)
		}
	})

	t.Run("エラーメッセージ付きの応答はそのメッセージを返すこと", func(t *testing.T) {
		_, err := ExtractVideo(map[string]any{"error": map[string]any{"message": "prompt rejected"}})
		if err == nil || !strings.Contains(err.Error(), "prompt rejected") {
			t.Fatalf("想定外のエラーです: %v", err)
		}
	})

	t.Run("フィルタ理由だけの応答は no video data になること", func(t *testing.T) {
		_, err := ExtractVideo(map[string]any{"response": map[string]any{
			"raiMediaFilteredReasons": []any{"unsafe content"},
		}})
		var genErr *domain.GenerationError
		if !errors.As(err, &genErr) || genErr.Reason != "no video data: unsafe content" {
			t.Fatalf("想定外のエラーです: %v", err)
		}
	})

	t.Run("何も無い応答は no video data になること", func(t *testing.T) {
		_, err := ExtractVideo(map[string]any{"response": map[string]any{}})
		var genErr *domain.GenerationError
		if !errors.As(err, &genErr) || genErr.Reason != "no video data" {
			t.Fatalf("想定外のエラーです: %v", err)
		}
	})
}

func TestGenerateVideo(t *testing.T) {
	t.Run("完了するまでポーリングして動画を返すこと", func(t *testing.T) {
		var polls atomic.Int32
		m := &fakeModel{
			videos: func(_ context.Context, _, prompt string) (*genai.GenerateVideosOperation, error) {
				if !strings.Contains(prompt, "Action: Rin runs.") {
					return nil, errors.New("unexpected prompt: " + prompt)
				}
				return &genai.GenerateVideosOperation{Name: "operations/1"}, nil
			},
			pollOnce: func(_ context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
				if polls.Add(1) < 3 {
					return &genai.GenerateVideosOperation{Name: op.Name}, nil
				}
				return &genai.GenerateVideosOperation{
					Name: op.Name,
					Done: true,
					Response: &genai.GenerateVideosResponse{
						GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{VideoBytes: []byte("mp4"), MIMEType: "video/mp4"}}},
					},
				}, nil
			},
		}
		c := newTestClient(t, m, Config{VideoPollInterval: 5 * time.Millisecond, VideoTimeout: 2 * time.Second})

		got, err := c.GenerateVideo(context.Background(), "Rin runs", nil, nil)
		if err != nil {
			t.Fatalf("エラー: %v", err)
		}
		if string(got.Data) != "mp4" || got.MimeType != "video/mp4" {
			t.Errorf("想定外の結果です: %+v", got)
		}
		if polls.Load() != 3 {
			t.Errorf("期待値 3 回, 実際の値 %d 回", polls.Load())
		}
	})

	t.Run("上限時間を超えたら TimeoutError になること", func(t *testing.T) {
		m := &fakeModel{
			videos: func(context.Context, string, string) (*genai.GenerateVideosOperation, error) {
				return &genai.GenerateVideosOperation{Name: "operations/slow"}, nil
			},
			pollOnce: func(_ context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
				return &genai.GenerateVideosOperation{Name: op.Name}, nil
			},
		}
		c := newTestClient(t, m, Config{VideoPollInterval: 5 * time.Millisecond, VideoTimeout: 60 * time.Millisecond})

		_, err := c.GenerateVideo(context.Background(), "slow", nil, nil)
		var toErr *domain.TimeoutError
		if !errors.As(err, &toErr) {
			t.Fatalf("TimeoutError を期待しました: %v", err)
		}
		if toErr.Op != "video" {
			t.Errorf("期待値 video, 実際の値 %s", toErr.Op)
		}
	})

	t.Run("操作のエラーは GenerationError になること", func(t *testing.T) {
		m := &fakeModel{
			videos: func(context.Context, string, string) (*genai.GenerateVideosOperation, error) {
				return &genai.GenerateVideosOperation{Name: "operations/x", Done: true, Error: map[string]any{"message": "quota for veo"}}, nil
			},
		}
		c := newTestClient(t, m, Config{VideoPollInterval: 5 * time.Millisecond})

		_, err := c.GenerateVideo(context.Background(), "x", nil, nil)
		var genErr *domain.GenerationError
		if !errors.As(err, &genErr) || genErr.Reason != "quota for veo" {
			t.Fatalf("想定外のエラーです: %v", err)
		}
	})
}
