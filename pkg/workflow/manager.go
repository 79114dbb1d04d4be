package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
	"github.com/onbrandapp/stryp-comic-studio/pkg/media"
	"github.com/onbrandapp/stryp-comic-studio/pkg/session"
)

// Result はパネル1枚分の生成結果です。
type Result struct {
	PanelID string           `json:"panelId"`
	Kind    domain.MediaKind `json:"kind"`
	// URL は永続化できた場合の URL。アップロードに失敗した場合は空なのだ。
	URL string `json:"url,omitempty"`
}

// Manager はパネル単位の生成ワークフロー（生成 → プレビュー反映 → アップロード → 永続 URL 反映）を担当します。
type Manager struct {
	gen      Generator
	uploader Uploader
	catalog  Catalog
	guard    Guard
}

// New は Manager を初期化します。guard は nil でもよい（排他なし）。
func New(gen Generator, uploader Uploader, catalog Catalog, guard Guard) (*Manager, error) {
	if gen == nil {
		return nil, fmt.Errorf("Generator は必須です")
	}
	if uploader == nil {
		return nil, fmt.Errorf("Uploader は必須です")
	}
	if catalog == nil {
		return nil, fmt.Errorf("Catalog は必須です")
	}
	return &Manager{gen: gen, uploader: uploader, catalog: catalog, guard: guard}, nil
}

// GenerateImage はパネルの静止画を生成します。
func (m *Manager) GenerateImage(ctx context.Context, s *session.Session, panelID string) (*Result, error) {
	return m.generate(ctx, s, panelID, domain.MediaImage)
}

// GenerateVideo はパネルの動画を生成します。
func (m *Manager) GenerateVideo(ctx context.Context, s *session.Session, panelID string) (*Result, error) {
	return m.generate(ctx, s, panelID, domain.MediaVideo)
}

// GenerateAudio はパネルの台詞を読み上げた音声を生成します。
func (m *Manager) GenerateAudio(ctx context.Context, s *session.Session, panelID string) (*Result, error) {
	return m.generate(ctx, s, panelID, domain.MediaAudio)
}

// Generate は種類を指定して生成します。一括生成から呼ばれるのだ。
func (m *Manager) Generate(ctx context.Context, s *session.Session, panelID string, kind domain.MediaKind) (*Result, error) {
	return m.generate(ctx, s, panelID, kind)
}

func (m *Manager) generate(ctx context.Context, s *session.Session, panelID string, kind domain.MediaKind) (*Result, error) {
	if err := m.checkGuard(ctx, s.ProjectID(), kind); err != nil {
		return nil, err
	}

	panel, ok := s.Panel(panelID)
	if !ok {
		return nil, fmt.Errorf("パネル %s: %w", panelID, domain.ErrNotFound)
	}
	if kind == domain.MediaAudio && panel.Dialogue == "" {
		return nil, &domain.GenerationError{Op: "speech", Reason: "panel has no dialogue"}
	}

	jobs := s.Jobs()
	if err := jobs.TryBegin(panelID, kind); err != nil {
		return nil, err
	}
	defer jobs.End(panelID)

	log := slog.With("project", s.ProjectID(), "panel", panelID, "kind", kind)

	jobs.Update(panelID, domain.GeneratingState(kind), domain.StatusGenerating)
	data, mimeType, err := m.produce(ctx, s, panel, kind)
	if err != nil {
		log.WarnContext(ctx, "生成に失敗しました", "error", err)
		return nil, err
	}

	// まずローカルプレビューとして見せる
	previous := panel.Media(kind)
	if err := s.ApplyPanelChange(panelID, domain.MediaPatch(kind, media.DataURI(mimeType, data))); err != nil {
		return nil, err
	}

	jobs.Update(panelID, domain.JobUploading, domain.StatusUploading)
	url, err := m.uploader.UploadBytes(ctx, s.UserID(), string(kind), data, mimeType)
	if err != nil {
		s.MarkUnsaved(panelID)
		log.WarnContext(ctx, "アップロードに失敗したためプレビューのまま残します", "error", err)
		var upErr *domain.UploadError
		if !errors.As(err, &upErr) {
			err = &domain.UploadError{Key: string(kind), Err: err}
		}
		return nil, err
	}

	if err := s.ApplyPanelChange(panelID, domain.MediaPatch(kind, url)); err != nil {
		return nil, err
	}
	s.ClearUnsaved(panelID)
	if previous != url {
		m.uploader.Replace(ctx, s.UserID(), previous)
	}

	log.InfoContext(ctx, "生成物を保存しました", "url", url)
	return &Result{PanelID: panelID, Kind: kind, URL: url}, nil
}

// checkGuard は反対種別の一括生成が走っていれば ErrPleaseWait を返します。
func (m *Manager) checkGuard(ctx context.Context, projectID string, kind domain.MediaKind) error {
	if m.guard == nil {
		return nil
	}
	held, ok, err := m.guard.HeldBy(ctx, projectID)
	if err != nil {
		return fmt.Errorf("一括生成の状態確認に失敗しました: %w", err)
	}
	if ok && held != domain.BatchKindFor(kind) {
		return domain.ErrPleaseWait
	}
	return nil
}

// produce は種類に応じた生成ジョブを実行し、バイナリと MIME タイプを返します。
func (m *Manager) produce(ctx context.Context, s *session.Session, panel domain.Panel, kind domain.MediaKind) ([]byte, string, error) {
	ch := m.character(ctx, s.UserID(), panel.CharacterID)

	switch kind {
	case domain.MediaImage:
		loc := m.location(ctx, s)
		img, err := m.gen.GenerateImage(ctx, panel.Description, ch, loc)
		if err != nil {
			return nil, "", err
		}
		return img.Data, img.MimeType, nil

	case domain.MediaVideo:
		loc := m.location(ctx, s)
		v, err := m.gen.GenerateVideo(ctx, panel.Description, ch, loc)
		if err != nil {
			return nil, "", err
		}
		return v.Data, v.MimeType, nil

	case domain.MediaAudio:
		settings, err := m.catalog.LoadSettings(ctx, s.UserID())
		if err != nil {
			slog.WarnContext(ctx, "設定の読み込みに失敗したため既定値を使います", "error", err)
			settings = domain.DefaultSettings()
		}
		a, err := m.gen.GenerateSpeech(ctx, panel.Dialogue, domain.ResolveVoice(ch, settings))
		if err != nil {
			return nil, "", err
		}
		return a.Data, a.MimeType, nil
	}
	return nil, "", fmt.Errorf("未対応の生成種別です: %s", kind)
}

// character は弱参照を解決します。消えたキャラクターは「キャラクター無し」扱いなのだ。
func (m *Manager) character(ctx context.Context, userID, id string) *domain.Character {
	if id == "" {
		return nil
	}
	ch, err := m.catalog.LoadCharacter(ctx, userID, id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.WarnContext(ctx, "キャラクターの読み込みに失敗しました", "character", id, "error", err)
		}
		return nil
	}
	return ch
}

func (m *Manager) location(ctx context.Context, s *session.Session) *domain.Location {
	id := s.Project().SelectedLocationID
	if id == "" {
		return nil
	}
	loc, err := m.catalog.LoadLocation(ctx, s.UserID(), id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.WarnContext(ctx, "ロケーションの読み込みに失敗しました", "location", id, "error", err)
		}
		return nil
	}
	return loc
}
