package publisher

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/onbrandapp/stryp-comic-studio/pkg/asset"
	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
)

const htmlMimeType = "text/html; charset=utf-8"

// Uploader は書き出した HTML をオブジェクトストアに置くためのインターフェースです。
type Uploader interface {
	UploadBytes(ctx context.Context, userID, kind string, data []byte, mimeType string) (string, error)
}

// PublishResult は書き出しの結果です。URL はストアに置いた場合だけ入ります。
type PublishResult struct {
	HTML []byte
	URL  string
}

// Publisher はプロジェクトをオフラインプレイヤーとして書き出し、必要ならストアにも保存します。
type Publisher struct {
	uploader Uploader
}

// NewPublisher は Publisher を返します。uploader が nil なら保存はしない。
func NewPublisher(uploader Uploader) *Publisher {
	return &Publisher{uploader: uploader}
}

// Publish は HTML を生成し、store が true ならアップロードして URL も返すのだ。
func (p *Publisher) Publish(ctx context.Context, userID string, project domain.Project, chars []domain.Character, settings domain.AppSettings, store bool) (*PublishResult, error) {
	var buf bytes.Buffer
	if err := ExportHTML(&buf, project, chars, settings); err != nil {
		return nil, err
	}
	result := &PublishResult{HTML: buf.Bytes()}

	if !store {
		return result, nil
	}
	if p.uploader == nil {
		return nil, fmt.Errorf("エクスポートの保存先が設定されていません")
	}

	url, err := p.uploader.UploadBytes(ctx, userID, asset.ExportKind, result.HTML, htmlMimeType)
	if err != nil {
		return nil, err
	}
	result.URL = url

	slog.InfoContext(ctx, "プレイヤーを書き出しました", "project", project.ID, "panels", len(project.Panels), "url", url)
	return result, nil
}
