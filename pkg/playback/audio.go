package playback

import (
	"context"
	"log/slog"
	"time"

	"github.com/onbrandapp/stryp-comic-studio/pkg/asset"
	"github.com/onbrandapp/stryp-comic-studio/pkg/media"
)

// AudioFetcher は音声ファイルを取得します。asset.Fetcher が満たすのだ。
type AudioFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*asset.Reference, error)
}

// WAVLength は WAV ヘッダから長さを読む AudioLength を返します。
// 取得か解析に失敗した音声は false を返し、PanelDelay で送られる。
func WAVLength(ctx context.Context, f AudioFetcher) func(url string) (time.Duration, bool) {
	if f == nil {
		return nil
	}
	return func(url string) (time.Duration, bool) {
		ref, err := f.Fetch(ctx, url)
		if err != nil {
			slog.DebugContext(ctx, "音声の長さを取得できませんでした", "error", err)
			return 0, false
		}
		return media.WAVDuration(ref.Data)
	}
}
