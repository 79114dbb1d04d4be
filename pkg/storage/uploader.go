package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/onbrandapp/stryp-comic-studio/pkg/asset"
	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
	"github.com/onbrandapp/stryp-comic-studio/pkg/media"
)

// Uploader は生成物をユーザー領域へ書き込み、安定した URL を返します。
// 失敗はすべて domain.UploadError に包むのだ。
type Uploader struct {
	store ObjectStore
	clock *asset.KeyClock
}

// NewUploader は Uploader を初期化します。
func NewUploader(store ObjectStore) (*Uploader, error) {
	if store == nil {
		return nil, fmt.Errorf("ObjectStore は必須です")
	}
	return &Uploader{store: store, clock: asset.NewKeyClock()}, nil
}

// UploadBase64 は生の base64 か data URI をデコードして保存します。
// MIME タイプが読み取れない場合は fallbackMime を使う。
func (u *Uploader) UploadBase64(ctx context.Context, userID, kind, payload, fallbackMime string) (string, error) {
	data, mimeType, err := media.ToBinary(payload, fallbackMime)
	if err != nil {
		return "", &domain.UploadError{Key: kind, Err: fmt.Errorf("ペイロードのデコードに失敗しました: %w", err)}
	}
	return u.UploadBytes(ctx, userID, kind, data, mimeType)
}

// UploadBytes はバイナリをそのまま保存します。
func (u *Uploader) UploadBytes(ctx context.Context, userID, kind string, data []byte, mimeType string) (string, error) {
	return u.UploadFile(ctx, userID, kind, bytes.NewReader(data), int64(len(data)), mimeType)
}

// UploadFile はストリームを保存します。size が分からなければ -1 を渡すのだ。
func (u *Uploader) UploadFile(ctx context.Context, userID, kind string, r io.Reader, size int64, mimeType string) (string, error) {
	key, err := asset.ObjectKey(userID, kind, u.clock.Next(), media.ExtensionFor(mimeType))
	if err != nil {
		return "", &domain.UploadError{Key: kind, Err: err}
	}

	url, err := u.store.Put(ctx, key, r, size, mimeType)
	if err != nil {
		return "", &domain.UploadError{Key: key, Err: err}
	}
	slog.InfoContext(ctx, "アップロードが完了しました", "key", key, "mime", mimeType)
	return url, nil
}

// Delete は Upload が返した URL のオブジェクトを削除します。
// 他人の領域や管理外の URL は削除しない。
func (u *Uploader) Delete(ctx context.Context, userID, objectURL string) error {
	key, ok := u.store.KeyFromURL(objectURL)
	if !ok {
		return &domain.UploadError{Key: objectURL, Err: fmt.Errorf("管理外の URL です")}
	}
	if !asset.OwnsKey(userID, key) {
		return &domain.UploadError{Key: key, Err: fmt.Errorf("他のユーザーのオブジェクトは削除できません")}
	}
	if err := u.store.Remove(ctx, key); err != nil {
		return &domain.UploadError{Key: key, Err: err}
	}
	return nil
}

// Replace は古いメディアをベストエフォートで削除します。失敗はログに残すだけなのだ。
func (u *Uploader) Replace(ctx context.Context, userID, oldURL string) {
	if oldURL == "" || domain.IsLocalPreview(oldURL) {
		return
	}
	if _, ok := u.store.KeyFromURL(oldURL); !ok {
		return
	}
	if err := u.Delete(ctx, userID, oldURL); err != nil {
		slog.WarnContext(ctx, "置き換え前のメディア削除に失敗しました", "url", oldURL, "error", err)
	}
}
