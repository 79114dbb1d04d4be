package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type sessionKey struct {
	userID    string
	projectID string
}

// Registry はプロセスの寿命の間セッションを保持します。
// 遅延書き込みは呼び出し元のリクエストが終わった後でも、ここが持つセッションから発火するのだ。
type Registry struct {
	store      ProjectStore
	writeDelay time.Duration

	mu       sync.Mutex
	sessions map[sessionKey]*Session
}

// NewRegistry は Registry を作ります。writeDelay が 0 なら DefaultWriteDelay。
func NewRegistry(store ProjectStore, writeDelay time.Duration) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("ProjectStore は必須です")
	}
	return &Registry{
		store:      store,
		writeDelay: writeDelay,
		sessions:   make(map[sessionKey]*Session),
	}, nil
}

// Open は開いているセッションを返すか、ストアから読み込んで開きます。
func (r *Registry) Open(ctx context.Context, userID, projectID string) (*Session, error) {
	key := sessionKey{userID: userID, projectID: projectID}

	r.mu.Lock()
	if s, ok := r.sessions[key]; ok {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	p, err := r.store.LoadProject(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// 読み込み中に別のリクエストが開いていればそちらを使う
	if s, ok := r.sessions[key]; ok {
		return s, nil
	}
	s := New(userID, *p, r.store, r.writeDelay)
	r.sessions[key] = s
	return s, nil
}

// Lookup は開いているセッションだけを返します。
func (r *Registry) Lookup(userID, projectID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionKey{userID: userID, projectID: projectID}]
	return s, ok
}

// Discard はセッションを閉じます。予約中の書き込みは捨てるのだ。
func (r *Registry) Discard(userID, projectID string) {
	key := sessionKey{userID: userID, projectID: projectID}
	r.mu.Lock()
	s, ok := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()
	if ok {
		s.Discard()
	}
}

// RefreshFromStore はストアの最新値をリモートのスナップショットとして開いているセッションに渡します。
// 他プロセスからの変更通知を受けたときに呼ぶ。
func (r *Registry) RefreshFromStore(ctx context.Context, userID, projectID string) {
	s, ok := r.Lookup(userID, projectID)
	if !ok {
		return
	}
	p, err := r.store.LoadProject(ctx, userID, projectID)
	if err != nil {
		slog.WarnContext(ctx, "リモートの更新の読み込みに失敗しました", "project", projectID, "error", err)
		return
	}
	s.ApplyRemote(*p)
}

// Close は予約中の書き込みをすべて実行してからセッションを手放します。
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[sessionKey]*Session)
	r.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
