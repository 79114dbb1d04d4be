package workflow

import (
	"context"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
	"github.com/onbrandapp/stryp-comic-studio/pkg/generator"

	"github.com/shouni/gemini-image-kit/ports"
)

// Generator は生成ジョブの実行を担当します。generator.Client が実装します。
type Generator interface {
	GenerateScript(ctx context.Context, sceneDescription, mood string, characters []domain.Character, priorContext string) ([]domain.ScriptPanel, error)
	GenerateImage(ctx context.Context, description string, character *domain.Character, location *domain.Location) (*ports.ImageResponse, error)
	GenerateVideo(ctx context.Context, description string, character *domain.Character, location *domain.Location) (*generator.VideoPayload, error)
	GenerateSpeech(ctx context.Context, text, voiceID string) (*generator.AudioPayload, error)
	AnalyzeCharacter(ctx context.Context, ch domain.Character) (string, error)
	AnalyzeLocation(ctx context.Context, loc domain.Location) (string, error)
}

// Uploader は生成物の永続化を担当します。storage.Uploader が実装します。
type Uploader interface {
	UploadBytes(ctx context.Context, userID, kind string, data []byte, mimeType string) (string, error)
	// UploadBase64 は data URI か生の base64 をデコードして保存します。
	UploadBase64(ctx context.Context, userID, kind, payload, fallbackMime string) (string, error)
	Replace(ctx context.Context, userID, oldURL string)
}

// Catalog はキャラクター・ロケーション・設定の読み書きを担当します。storage.Repository が実装します。
type Catalog interface {
	LoadCharacter(ctx context.Context, userID, id string) (*domain.Character, error)
	ListCharacters(ctx context.Context, userID string) ([]domain.Character, error)
	LoadLocation(ctx context.Context, userID, id string) (*domain.Location, error)
	SaveLocation(ctx context.Context, userID string, l domain.Location) error
	LoadSettings(ctx context.Context, userID string) (domain.AppSettings, error)
}

// Guard は一括生成の排他トークンを参照します。batch のトークンが実装します。
type Guard interface {
	// HeldBy はプロジェクトで実行中の一括生成の種類を返します。実行中でなければ ok は false。
	HeldBy(ctx context.Context, projectID string) (kind domain.BatchKind, ok bool, err error)
}
