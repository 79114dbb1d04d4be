package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore は生成物を置くオブジェクトストレージの境界です。
type ObjectStore interface {
	// Put はオブジェクトを書き込み、永続的に参照できる URL を返します。
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Remove(ctx context.Context, key string) error
	// KeyFromURL は Put が返した URL からオブジェクトキーを逆算します。
	KeyFromURL(u string) (string, bool)
}

// MinioConfig は S3 互換ストレージ (MinIO / R2 / GCS の S3 互換口) への接続設定です。
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	// PublicURL が空でなければ URL はその配下に組み立てる。CDN を前段に置く場合に使うのだ。
	PublicURL string
}

// MinioStore は minio-go で ObjectStore を実装します。
type MinioStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
	baseURL   string
}

// NewMinioStore はクライアントを作り、バケットが無ければ作成します。
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("ストレージのエンドポイントとバケットは必須です")
	}

	transport := &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("ストレージクライアントの初期化に失敗しました: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(cctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("バケットの確認に失敗しました: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(cctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("バケットの作成に失敗しました: %w", err)
		}
		slog.Info("バケットを作成しました", "bucket", cfg.Bucket)
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	slog.Info("オブジェクトストレージを初期化しました", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)

	return &MinioStore{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
		baseURL:   fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket),
	}, nil
}

// Put はオブジェクトを書き込みます。size が負ならストリームを最後まで読むのだ。
func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	key = normalizeKey(key)
	if _, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000, immutable",
	}); err != nil {
		return "", fmt.Errorf("オブジェクトの書き込みに失敗しました: %w", err)
	}
	slog.DebugContext(ctx, "オブジェクトを書き込みました", "key", key, "content_type", contentType)
	return s.urlFor(key), nil
}

// Remove はオブジェクトを削除します。
func (s *MinioStore) Remove(ctx context.Context, key string) error {
	key = normalizeKey(key)
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("オブジェクトの削除に失敗しました: %w", err)
	}
	return nil
}

// KeyFromURL は公開 URL かエンドポイント直の URL からキーを取り出します。
func (s *MinioStore) KeyFromURL(u string) (string, bool) {
	for _, base := range []string{s.publicURL, s.baseURL} {
		if base == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(u, base+"/"); ok && rest != "" {
			if unescaped, err := url.PathUnescape(rest); err == nil {
				rest = unescaped
			}
			return rest, true
		}
	}
	return "", false
}

func (s *MinioStore) urlFor(key string) string {
	if s.publicURL != "" {
		return s.publicURL + "/" + key
	}
	return s.baseURL + "/" + key
}

func normalizeKey(key string) string {
	key = strings.ReplaceAll(key, "\\", "/")
	return strings.TrimPrefix(key, "/")
}
