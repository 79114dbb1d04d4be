package asset

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	// UsersPrefix はユーザーごとのオブジェクトを格納する最上位ディレクトリです。
	UsersPrefix = "users"
	// ExportKind はエクスポートした HTML プレイヤーの格納先です。
	ExportKind = "exports"
	// UploadKind は利用者が直接アップロードしたファイルの格納先です。
	UploadKind = "uploads"
)

var unsafeSegment = regexp.MustCompile(`[^A-Za-z0-9_\-]`)

// KeyClock は単調増加するミリ秒タイムスタンプを払い出すのだ。
// 同じミリ秒内の連続アップロードでもキーが衝突しない。
type KeyClock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewKeyClock は現在時刻を使う KeyClock を返します。
func NewKeyClock() *KeyClock {
	return &KeyClock{now: time.Now}
}

// Next は直前の値より必ず大きいタイムスタンプを返します。
func (c *KeyClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.now().UnixMilli()
	if ts <= c.last {
		ts = c.last + 1
	}
	c.last = ts
	return ts
}

// ObjectKey は users/{uid}/{kind}/{timestamp}{ext} 形式のオブジェクトキーを組み立てます。
func ObjectKey(userID, kind string, ts int64, ext string) (string, error) {
	uid := sanitizeSegment(userID)
	k := sanitizeSegment(kind)
	if uid == "" || k == "" {
		return "", fmt.Errorf("オブジェクトキーの生成に失敗しました: userID=%q kind=%q", userID, kind)
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join(UsersPrefix, uid, k, fmt.Sprintf("%d%s", ts, ext)), nil
}

// OwnsKey はキーが指定ユーザーの領域にあるかを判定します。
func OwnsKey(userID, key string) bool {
	prefix := path.Join(UsersPrefix, sanitizeSegment(userID)) + "/"
	return strings.HasPrefix(path.Clean(key), prefix)
}

func sanitizeSegment(s string) string {
	return unsafeSegment.ReplaceAllString(strings.TrimSpace(s), "_")
}
