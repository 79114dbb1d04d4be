package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/onbrandapp/stryp-comic-studio/pkg/generator"

	"github.com/shouni/go-utils/envutil"
	"gopkg.in/yaml.v3"
)

// デフォルト値の定義なのだ
const (
	DefaultAddr        = ":8080"
	DefaultDBPath      = "data/studio.db"
	DefaultBucket      = "stryp-media"
	DefaultNATSSubject = "studio.changes"
	DefaultHTTPTimeout = 60 * time.Second
	DefaultWriteDelay  = 1500 * time.Millisecond
	DefaultLogLevel    = "info"
	DefaultStyleSuffix = "comic book panel, bold clean line art, cel-shaded coloring, expressive faces, cinematic framing, consistent character design, high detail"
)

// Config はアプリケーション全体の設定を保持する構造体なのだ。
// 既定値 → STUDIO_CONFIG の YAML → 環境変数 → CLI フラグの順に上書きされる。
type Config struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	JWTSecret      string   `yaml:"jwt_secret"`

	Gemini  GeminiConfig  `yaml:"gemini"`
	Storage StorageConfig `yaml:"storage"`
	Batch   BatchConfig   `yaml:"batch"`
	Log     LogConfig     `yaml:"log"`

	DBPath      string        `yaml:"db_path"`
	NATSURL     string        `yaml:"nats_url"`
	NATSSubject string        `yaml:"nats_subject"`
	RedisURL    string        `yaml:"redis_url"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	WriteDelay  time.Duration `yaml:"write_delay"`
}

// GeminiConfig は生成 API の設定です。
type GeminiConfig struct {
	APIKey      string `yaml:"api_key"`
	ScriptModel string `yaml:"script_model"`
	ImageModel  string `yaml:"image_model"`
	VisionModel string `yaml:"vision_model"`
	VideoModel  string `yaml:"video_model"`
	SpeechModel string `yaml:"speech_model"`
	StyleSuffix string `yaml:"style_suffix"`

	ScriptTimeout time.Duration `yaml:"script_timeout"`
}

// StorageConfig はオブジェクトストア (MinIO / S3) の設定です。
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	PublicURL string `yaml:"public_url"`
}

// BatchConfig は一括生成の投入間隔です。
type BatchConfig struct {
	VisualInterval time.Duration `yaml:"visual_interval"`
	AudioInterval  time.Duration `yaml:"audio_interval"`
}

// LogConfig はログ出力の設定です。
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default は既定値だけの Config を返します。
func Default() *Config {
	return &Config{
		Addr:        DefaultAddr,
		DBPath:      DefaultDBPath,
		NATSSubject: DefaultNATSSubject,
		HTTPTimeout: DefaultHTTPTimeout,
		WriteDelay:  DefaultWriteDelay,
		Gemini: GeminiConfig{
			ScriptModel: generator.DefaultScriptModel,
			ImageModel:  generator.DefaultImageModel,
			VisionModel: generator.DefaultVisionModel,
			VideoModel:  generator.DefaultVideoModel,
			SpeechModel: generator.DefaultSpeechModel,
			StyleSuffix: DefaultStyleSuffix,

			ScriptTimeout: generator.DefaultScriptTimeout,
		},
		Storage: StorageConfig{Bucket: DefaultBucket},
		Log:     LogConfig{Level: DefaultLogLevel},
	}
}

// LoadConfig は YAML と環境変数から設定を読み込み、構造体を返すのだ！
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := envutil.GetEnv("STUDIO_CONFIG", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Addr = envutil.GetEnv("ADDR", cfg.Addr)
	cfg.AllowedOrigins = splitList(envutil.GetEnv("ALLOWED_ORIGINS", strings.Join(cfg.AllowedOrigins, ",")))
	cfg.JWTSecret = envutil.GetEnv("JWT_SECRET", cfg.JWTSecret)

	cfg.Gemini.APIKey = envutil.GetEnv("GEMINI_API_KEY", cfg.Gemini.APIKey)
	cfg.Gemini.ScriptModel = envutil.GetEnv("GEMINI_MODEL", cfg.Gemini.ScriptModel)
	cfg.Gemini.ImageModel = envutil.GetEnv("IMAGE_GEMINI_MODEL", cfg.Gemini.ImageModel)
	cfg.Gemini.VisionModel = envutil.GetEnv("VISION_GEMINI_MODEL", cfg.Gemini.VisionModel)
	cfg.Gemini.VideoModel = envutil.GetEnv("VIDEO_MODEL", cfg.Gemini.VideoModel)
	cfg.Gemini.SpeechModel = envutil.GetEnv("SPEECH_MODEL", cfg.Gemini.SpeechModel)
	cfg.Gemini.StyleSuffix = envutil.GetEnv("IMAGE_PROMPT_SUFFIX", cfg.Gemini.StyleSuffix)

	cfg.Storage.Endpoint = envutil.GetEnv("MINIO_ENDPOINT", cfg.Storage.Endpoint)
	cfg.Storage.AccessKey = envutil.GetEnv("MINIO_ACCESS_KEY", cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = envutil.GetEnv("MINIO_SECRET_KEY", cfg.Storage.SecretKey)
	cfg.Storage.Bucket = envutil.GetEnv("MINIO_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.Region = envutil.GetEnv("MINIO_REGION", cfg.Storage.Region)
	cfg.Storage.PublicURL = envutil.GetEnv("MINIO_PUBLIC_URL", cfg.Storage.PublicURL)

	cfg.DBPath = envutil.GetEnv("DB_PATH", cfg.DBPath)
	cfg.NATSURL = envutil.GetEnv("NATS_URL", cfg.NATSURL)
	cfg.NATSSubject = envutil.GetEnv("NATS_SUBJECT", cfg.NATSSubject)
	cfg.RedisURL = envutil.GetEnv("REDIS_URL", cfg.RedisURL)

	cfg.Log.Level = envutil.GetEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = envutil.GetEnv("LOG_FILE", cfg.Log.File)

	var err error
	if cfg.Storage.UseSSL, err = envBool("MINIO_USE_SSL", cfg.Storage.UseSSL); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = envDuration("HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return nil, err
	}
	if cfg.Gemini.ScriptTimeout, err = envDuration("SCRIPT_TIMEOUT", cfg.Gemini.ScriptTimeout); err != nil {
		return nil, err
	}
	if cfg.WriteDelay, err = envDuration("WRITE_DELAY", cfg.WriteDelay); err != nil {
		return nil, err
	}
	if cfg.Batch.VisualInterval, err = envDuration("BATCH_VISUAL_INTERVAL", cfg.Batch.VisualInterval); err != nil {
		return nil, err
	}
	if cfg.Batch.AudioInterval, err = envDuration("BATCH_AUDIO_INTERVAL", cfg.Batch.AudioInterval); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate はサーバー起動に必要な項目を確認します。
func (c *Config) Validate() error {
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY は必須です")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET は必須です")
	}
	if c.Storage.Endpoint == "" {
		return fmt.Errorf("MINIO_ENDPOINT は必須です")
	}
	return nil
}

// loadFile は YAML に書かれた項目だけを上書きするのだ。
func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗しました (%s): %w", path, err)
	}
	return nil
}

func envBool(key string, def bool) (bool, error) {
	v := envutil.GetEnv(key, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s の値が不正です: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := envutil.GetEnv(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s の値が不正です: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
