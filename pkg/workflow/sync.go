package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
	"github.com/onbrandapp/stryp-comic-studio/pkg/session"
)

var syncKinds = []domain.MediaKind{domain.MediaImage, domain.MediaVideo, domain.MediaAudio}

// SyncPanel はアップロードに失敗してプレビューのまま残ったメディアを再アップロードします。
// data: のプレビューを永続 URL に置き換え、すべて済んだら未保存の印を外すのだ。
// 失敗した種類はプレビューのまま残し、UploadError を返す。
func (m *Manager) SyncPanel(ctx context.Context, s *session.Session, panelID string) ([]Result, error) {
	panel, ok := s.Panel(panelID)
	if !ok {
		return nil, fmt.Errorf("パネル %s: %w", panelID, domain.ErrNotFound)
	}

	var pending []domain.MediaKind
	for _, kind := range syncKinds {
		if strings.HasPrefix(panel.Media(kind), "data:") {
			pending = append(pending, kind)
		}
	}
	if len(pending) == 0 {
		s.ClearUnsaved(panelID)
		return nil, nil
	}

	jobs := s.Jobs()
	if err := jobs.TryBegin(panelID, pending[0]); err != nil {
		return nil, err
	}
	defer jobs.End(panelID)
	jobs.Update(panelID, domain.JobUploading, domain.StatusUploading)

	log := slog.With("project", s.ProjectID(), "panel", panelID)

	results := make([]Result, 0, len(pending))
	for _, kind := range pending {
		url, err := m.uploader.UploadBase64(ctx, s.UserID(), string(kind), panel.Media(kind), "")
		if err != nil {
			s.MarkUnsaved(panelID)
			log.WarnContext(ctx, "再アップロードに失敗しました", "kind", kind, "error", err)
			var upErr *domain.UploadError
			if !errors.As(err, &upErr) {
				err = &domain.UploadError{Key: string(kind), Err: err}
			}
			return results, err
		}
		if err := s.ApplyPanelChange(panelID, domain.MediaPatch(kind, url)); err != nil {
			return results, err
		}
		results = append(results, Result{PanelID: panelID, Kind: kind, URL: url})
	}

	s.ClearUnsaved(panelID)
	log.InfoContext(ctx, "プレビューを保存しました", "count", len(results))
	return results, nil
}
