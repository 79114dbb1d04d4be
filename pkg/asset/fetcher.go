package asset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/onbrandapp/stryp-comic-studio/pkg/media"

	"github.com/patrickmn/go-cache"
	"github.com/shouni/gemini-image-kit/imgutil"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultFetchTimeout は参照メディア1件あたりの取得タイムアウトです。
	DefaultFetchTimeout = 60 * time.Second
	// maxReferenceBytes を超える参照メディアは読み捨てる。
	maxReferenceBytes = 25 << 20

	defaultCacheTTL     = 30 * time.Minute
	defaultCacheCleanup = 1 * time.Hour
)

// Reference は取得済みの参照メディアです。
type Reference struct {
	URL      string
	MimeType string
	Data     []byte
}

// Downloader は URL の中身をストリームで返します。httpkit.HTTPClient がこれを満たすのだ。
type Downloader interface {
	GetStream(ctx context.Context, url string) (io.ReadCloser, error)
}

// Fetcher は参照画像・動画を取得し、URL 単位でキャッシュします。
type Fetcher struct {
	httpClient Downloader
	timeout    time.Duration
	cache      *cache.Cache
	group      singleflight.Group
}

// NewFetcher は Fetcher を初期化します。timeout が 0 以下なら既定値を使うのだ。
func NewFetcher(httpClient Downloader, timeout time.Duration) (*Fetcher, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("httpClient は必須です")
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Fetcher{
		httpClient: httpClient,
		timeout:    timeout,
		cache:      cache.New(defaultCacheTTL, defaultCacheCleanup),
	}, nil
}

// Fetch は1件の参照メディアを独立したタイムアウト付きで取得します。
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Reference, error) {
	if strings.HasPrefix(rawURL, "data:") {
		mimeType, data, err := media.ParseDataURI(rawURL)
		if err != nil {
			return nil, err
		}
		return &Reference{URL: "data:", MimeType: mimeType, Data: data}, nil
	}

	if cached, ok := f.cache.Get(rawURL); ok {
		return cached.(*Reference), nil
	}

	// 同じ URL の同時取得は1回にまとめるのだ
	v, err, _ := f.group.Do(rawURL, func() (interface{}, error) {
		ref, err := f.download(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		f.cache.Set(rawURL, ref, cache.DefaultExpiration)
		return ref, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Reference), nil
}

// FetchAll は複数の参照を順番に取得し、失敗したものはスキップします。
// 1件も取れなかった場合だけエラーを返すのだ。
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) ([]*Reference, error) {
	refs := make([]*Reference, 0, len(urls))
	var errs []error
	for _, u := range urls {
		if u == "" {
			continue
		}
		ref, err := f.Fetch(ctx, u)
		if err != nil {
			slog.WarnContext(ctx, "参照メディアの取得をスキップします", "url", truncate(u), "error", err)
			errs = append(errs, err)
			continue
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("参照メディアを1件も取得できませんでした: %w", errors.Join(errs...))
	}
	return refs, nil
}

// Open は参照メディアを読み出し用に開きます。画像生成キットの ContentReader として使うのだ。
func (f *Fetcher) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	ref, err := f.Fetch(ctx, uri)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(ref.Data)), nil
}

func (f *Fetcher) download(ctx context.Context, rawURL string) (*Reference, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	rc, err := f.httpClient.GetStream(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("参照メディアの取得に失敗しました: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxReferenceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("参照メディアの読み込みに失敗しました: %w", err)
	}
	if len(data) > maxReferenceBytes {
		return nil, fmt.Errorf("参照メディアが大きすぎます: %d bytes 超", maxReferenceBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("参照メディアが空です: %s", truncate(rawURL))
	}

	return &Reference{URL: rawURL, MimeType: sniffMimeType(rawURL, data), Data: data}, nil
}

// sniffMimeType は中身から MIME タイプを判定し、判定できなければ拡張子で推測するのだ。
func sniffMimeType(rawURL string, data []byte) string {
	mimeType := http.DetectContentType(data)
	mimeType, _, _ = strings.Cut(mimeType, ";")
	if mimeType == "application/octet-stream" || strings.HasPrefix(mimeType, "text/") {
		path, _, _ := strings.Cut(rawURL, "?")
		return imgutil.GuessMIMEType(path)
	}
	return strings.TrimSpace(mimeType)
}

func truncate(s string) string {
	const limit = 80
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
