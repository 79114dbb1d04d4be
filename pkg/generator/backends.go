package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	imagekit "github.com/shouni/gemini-image-kit/generator"
	"github.com/shouni/gemini-image-kit/ports"
	"github.com/shouni/go-gemini-client/gemini"
	"google.golang.org/genai"
)

const imageAssetTTL = 30 * time.Minute

// NewTextClient は台本と外見解析に使う gemini クライアントを初期化します。
func NewTextClient(ctx context.Context, apiKey string, temperature float32) (gemini.GenerativeModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY は必須です")
	}
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	aiClient, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:      apiKey,
		Temperature: genai.Ptr(temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	return aiClient, nil
}

// NewImageGenerator は画像生成キットのコアとジェネレーターを組み立てます。
// 参照画像の取得は httpClient、gs:// の読み出しは reader に任せるのだ。
func NewImageGenerator(aiClient gemini.GenerativeModel, reader ports.ContentReader, httpClient ports.Downloader) (ports.ImageGenerator, error) {
	core, err := imagekit.NewGeminiImageCore(
		aiClient,
		reader,
		httpClient,
		cache.New(imageAssetTTL, 2*imageAssetTTL),
		imageAssetTTL,
		false,
	)
	if err != nil {
		return nil, fmt.Errorf("画像生成コアの初期化に失敗しました: %w", err)
	}
	gen, err := imagekit.NewGeminiGenerator(core)
	if err != nil {
		return nil, fmt.Errorf("画像生成器の初期化に失敗しました: %w", err)
	}
	return gen, nil
}

// geminiText は gemini クライアントの応答から本文を取り出します。
func geminiText(resp *gemini.Response) string {
	if resp == nil {
		return ""
	}
	return responseText(resp.RawResponse)
}

func geminiRaw(resp *gemini.Response) *genai.GenerateContentResponse {
	if resp == nil {
		return nil
	}
	return resp.RawResponse
}
