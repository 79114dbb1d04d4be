package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/onbrandapp/stryp-comic-studio/pkg/asset"
	"github.com/onbrandapp/stryp-comic-studio/pkg/prompts"

	"github.com/patrickmn/go-cache"
	"github.com/shouni/gemini-image-kit/ports"
	"github.com/shouni/go-gemini-client/gemini"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultScriptModel = "gemini-3-flash-preview"
	DefaultImageModel  = "gemini-3-pro-image-preview"
	DefaultVisionModel = "gemini-3-flash-preview"
	DefaultVideoModel  = "veo-3.0-generate-001"
	DefaultSpeechModel = "gemini-2.5-flash-preview-tts"

	DefaultScriptTimeout     = 60 * time.Second
	DefaultImageTimeout      = 90 * time.Second
	DefaultVisionTimeout     = 60 * time.Second
	DefaultSpeechTimeout     = 20 * time.Second
	DefaultVideoPollInterval = 10 * time.Second
	DefaultVideoTimeout      = 7 * time.Minute

	defaultTemperature = float32(0.8)
	defaultAspectRatio = "16:9"
)

// ReferenceFetcher は外見解析に使う参照メディアを取得します。
type ReferenceFetcher interface {
	FetchAll(ctx context.Context, urls []string) ([]*asset.Reference, error)
}

// Config は生成クライアントのモデル名とジョブ種別ごとの締め切りです。
type Config struct {
	ScriptModel string
	ImageModel  string
	VisionModel string
	VideoModel  string
	SpeechModel string
	StyleSuffix string
	AspectRatio string
	Temperature float32

	ScriptTimeout     time.Duration
	ImageTimeout      time.Duration
	VisionTimeout     time.Duration
	SpeechTimeout     time.Duration
	VideoPollInterval time.Duration
	VideoTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.ScriptModel == "" {
		c.ScriptModel = DefaultScriptModel
	}
	if c.ImageModel == "" {
		c.ImageModel = DefaultImageModel
	}
	if c.VisionModel == "" {
		c.VisionModel = DefaultVisionModel
	}
	if c.VideoModel == "" {
		c.VideoModel = DefaultVideoModel
	}
	if c.SpeechModel == "" {
		c.SpeechModel = DefaultSpeechModel
	}
	if c.AspectRatio == "" {
		c.AspectRatio = defaultAspectRatio
	}
	if c.Temperature <= 0 {
		c.Temperature = defaultTemperature
	}
	if c.ScriptTimeout <= 0 {
		c.ScriptTimeout = DefaultScriptTimeout
	}
	if c.ImageTimeout <= 0 {
		c.ImageTimeout = DefaultImageTimeout
	}
	if c.VisionTimeout <= 0 {
		c.VisionTimeout = DefaultVisionTimeout
	}
	if c.SpeechTimeout <= 0 {
		c.SpeechTimeout = DefaultSpeechTimeout
	}
	if c.VideoPollInterval <= 0 {
		c.VideoPollInterval = DefaultVideoPollInterval
	}
	if c.VideoTimeout <= 0 {
		c.VideoTimeout = DefaultVideoTimeout
	}
	return c
}

// Backends は生成ジョブごとの接続先です。
// 台本と外見解析は gemini クライアント、画像は画像生成キット、
// 動画と音声は genai を直接使うのだ。
type Backends struct {
	Text  gemini.GenerativeModel
	Image ports.ImageGenerator
	Media Model
}

// Client は台本・画像・外見解析・動画・音声の各生成ジョブを束ねます。
// 自動リトライはしない。失敗は呼び出し元へそのまま返すのだ。
type Client struct {
	text    gemini.GenerativeModel
	image   ports.ImageGenerator
	model   Model
	fetcher ReferenceFetcher
	cfg     Config

	textPrompts  prompts.PromptBuilder
	imagePrompts *prompts.ImagePromptBuilder

	descCache *cache.Cache
	descGroup singleflight.Group
}

// New は Client を初期化します。
func New(b Backends, fetcher ReferenceFetcher, cfg Config) (*Client, error) {
	if b.Text == nil {
		return nil, fmt.Errorf("Text クライアントは必須です")
	}
	if b.Image == nil {
		return nil, fmt.Errorf("ImageGenerator は必須です")
	}
	if b.Media == nil {
		return nil, fmt.Errorf("Media モデルは必須です")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("ReferenceFetcher は必須です")
	}

	textPrompts, err := prompts.NewTextPromptBuilder()
	if err != nil {
		return nil, fmt.Errorf("プロンプトビルダーの初期化に失敗しました: %w", err)
	}

	cfg = cfg.withDefaults()
	return &Client{
		text:         b.Text,
		image:        b.Image,
		model:        b.Media,
		fetcher:      fetcher,
		cfg:          cfg,
		textPrompts:  textPrompts,
		imagePrompts: prompts.NewImagePromptBuilder(cfg.StyleSuffix),
		descCache:    cache.New(30*time.Minute, 1*time.Hour),
	}, nil
}

// Config は既定値を補った設定を返します。
func (c *Client) Config() Config {
	return c.cfg
}
