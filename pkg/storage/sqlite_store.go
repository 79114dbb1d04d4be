package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteStore はユーザー単位のコレクションに JSON ドキュメントを保存します。
// 書き込みのたびに ChangeEvent を登録済みのリスナーへ流すのだ。
type SQLiteStore struct {
	db   *sql.DB
	path string

	mu        sync.RWMutex
	listeners []func(ChangeEvent)
}

// OpenSQLite はデータベースを開き、未適用のマイグレーションを流します。
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("データベースディレクトリの作成に失敗しました: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("データベースのオープンに失敗しました: %w", err)
	}
	// 接続ごとの PRAGMA を確実に効かせるため1本に絞る
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("PRAGMA %q の適用に失敗しました: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close はデータベース接続を閉じます。
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AddListener は変更通知の受け手を登録します。リスナーはブロックしてはいけない。
func (s *SQLiteStore) AddListener(fn func(ChangeEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *SQLiteStore) notify(ev ChangeEvent) {
	s.mu.RLock()
	listeners := append(([]func(ChangeEvent))(nil), s.listeners...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// Get はドキュメント本体を返します。無ければ domain.ErrNotFound なのだ。
func (s *SQLiteStore) Get(ctx context.Context, userID string, coll Collection, id string) ([]byte, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE user_id = ? AND collection = ? AND id = ?",
		userID, string(coll), id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ドキュメントの読み込みに失敗しました: %w", err)
	}
	return []byte(body), nil
}

// Put はドキュメントを丸ごと書き込みます（後勝ち）。
func (s *SQLiteStore) Put(ctx context.Context, userID string, coll Collection, id string, body []byte) error {
	err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO documents (user_id, collection, id, body, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (user_id, collection, id)
			DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
			userID, string(coll), id, string(body), domain.NowMillis(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("ドキュメントの書き込みに失敗しました: %w", err)
	}
	s.notify(ChangeEvent{UserID: userID, Collection: coll, ID: id, Op: OpPut})
	return nil
}

// Delete はドキュメントを削除します。存在しなくてもエラーにはしない。
func (s *SQLiteStore) Delete(ctx context.Context, userID string, coll Collection, id string) error {
	err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			"DELETE FROM documents WHERE user_id = ? AND collection = ? AND id = ?",
			userID, string(coll), id,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("ドキュメントの削除に失敗しました: %w", err)
	}
	s.notify(ChangeEvent{UserID: userID, Collection: coll, ID: id, Op: OpDelete})
	return nil
}

// List はコレクションのドキュメントを更新の新しい順に返します。
func (s *SQLiteStore) List(ctx context.Context, userID string, coll Collection) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT body FROM documents WHERE user_id = ? AND collection = ? ORDER BY updated_at DESC, id",
		userID, string(coll),
	)
	if err != nil {
		return nil, fmt.Errorf("ドキュメント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("ドキュメントの読み取りに失敗しました: %w", err)
		}
		out = append(out, []byte(body))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ドキュメント一覧の走査に失敗しました: %w", err)
	}
	return out, nil
}

type migration struct {
	version string
	sql     string
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("マイグレーションの読み込みに失敗しました: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	out := make([]migration, 0, len(names))
	for _, name := range names {
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("マイグレーション %s の読み込みに失敗しました: %w", name, err)
		}
		out = append(out, migration{version: strings.TrimSuffix(name, ".sql"), sql: string(data)})
	}
	return out, nil
}

func (s *SQLiteStore) applyMigrations(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("マイグレーションの開始に失敗しました: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("schema_migrations の作成に失敗しました: %w", err)
	}
	for _, m := range migrations {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", m.version).Scan(&count); err != nil {
			return fmt.Errorf("マイグレーション履歴の確認に失敗しました: %w", err)
		}
		if count > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("マイグレーション %s の適用に失敗しました: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("マイグレーション %s の記録に失敗しました: %w", m.version, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("マイグレーションのコミットに失敗しました: %w", err)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
