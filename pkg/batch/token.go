package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Token はプロジェクト単位の一括生成の排他トークンです。
// 保持中は種類を問わず次の一括生成を ErrPleaseWait で断る。
type Token interface {
	Acquire(ctx context.Context, projectID string, kind domain.BatchKind) (release func(context.Context) error, err error)
	HeldBy(ctx context.Context, projectID string) (domain.BatchKind, bool, error)
}

// MemoryToken はプロセス内だけで有効なトークンです。
type MemoryToken struct {
	mu   sync.Mutex
	held map[string]domain.BatchKind
}

func NewMemoryToken() *MemoryToken {
	return &MemoryToken{held: make(map[string]domain.BatchKind)}
}

func (t *MemoryToken) Acquire(_ context.Context, projectID string, kind domain.BatchKind) (func(context.Context) error, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.held[projectID]; ok {
		return nil, domain.ErrPleaseWait
	}
	t.held[projectID] = kind

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			t.mu.Lock()
			delete(t.held, projectID)
			t.mu.Unlock()
		})
		return nil
	}, nil
}

func (t *MemoryToken) HeldBy(_ context.Context, projectID string) (domain.BatchKind, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	kind, ok := t.held[projectID]
	return kind, ok, nil
}

// DefaultTokenTTL は Redis 上のトークンの有効期限です。プロセスが落ちても自然に解放される。
const DefaultTokenTTL = 30 * time.Minute

// 自分が取ったトークンだけを消すための比較削除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisToken は複数プロセスで共有するトークンです。SET NX PX で取り、所有者の値で比較削除するのだ。
type RedisToken struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisToken は RedisToken を作ります。ttl が 0 なら DefaultTokenTTL。
func NewRedisToken(rdb redis.UniversalClient, prefix string, ttl time.Duration) (*RedisToken, error) {
	if rdb == nil {
		return nil, fmt.Errorf("Redis クライアントは必須です")
	}
	if prefix == "" {
		prefix = "studio:batch:"
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &RedisToken{rdb: rdb, prefix: prefix, ttl: ttl}, nil
}

// ConnectRedis は URL から Redis クライアントを作り、疎通を確認します。
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("Redis URL の解析に失敗しました: %w", err)
	}
	rdb := redis.NewClient(opt)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("Redis への接続に失敗しました: %w", err)
	}
	return rdb, nil
}

func (t *RedisToken) Acquire(ctx context.Context, projectID string, kind domain.BatchKind) (func(context.Context) error, error) {
	key := t.prefix + projectID
	value := string(kind) + ":" + uuid.NewString()

	ok, err := t.rdb.SetNX(ctx, key, value, t.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("一括生成トークンの取得に失敗しました: %w", err)
	}
	if !ok {
		return nil, domain.ErrPleaseWait
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, t.rdb, []string{key}, value).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("一括生成トークンの解放に失敗しました: %w", err)
		}
		return nil
	}, nil
}

func (t *RedisToken) HeldBy(ctx context.Context, projectID string) (domain.BatchKind, bool, error) {
	value, err := t.rdb.Get(ctx, t.prefix+projectID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("一括生成トークンの確認に失敗しました: %w", err)
	}
	kind, _, _ := strings.Cut(value, ":")
	return domain.BatchKind(kind), true, nil
}
