package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Snapshotter はコレクション全体の現在値を返します。Repository が実装します。
type Snapshotter interface {
	Snapshot(ctx context.Context, userID string, coll Collection) ([]json.RawMessage, error)
}

type subKey struct {
	userID string
	coll   Collection
}

type subscription struct {
	kick chan struct{}
	done chan struct{}
	fn   func([]json.RawMessage)
}

// Hub はコレクション単位の購読を管理します。
// 購読直後に現在のスナップショットを1回、以後は変更のたびに最新のスナップショットを配信する。
// 配信が追いつかない間の変更は1回にまとめるのだ。
type Hub struct {
	src    Snapshotter
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	subs   map[subKey]map[uint64]*subscription
	nextID uint64
	wg     sync.WaitGroup
}

// NewHub は Hub を作ります。
func NewHub(src Snapshotter) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		src:    src,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[subKey]map[uint64]*subscription),
	}
}

// Subscribe は購読を開始し、解除用の関数を返します。fn は購読ごとに逐次呼ばれる。
func (h *Hub) Subscribe(userID string, coll Collection, fn func([]json.RawMessage)) func() {
	sub := &subscription{
		kick: make(chan struct{}, 1),
		done: make(chan struct{}),
		fn:   fn,
	}
	sub.kick <- struct{}{}

	key := subKey{userID: userID, coll: coll}
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[key] == nil {
		h.subs[key] = make(map[uint64]*subscription)
	}
	h.subs[key][id] = sub
	h.wg.Add(1)
	h.mu.Unlock()

	go h.deliver(key, sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[key], id)
			if len(h.subs[key]) == 0 {
				delete(h.subs, key)
			}
			h.mu.Unlock()
			close(sub.done)
		})
	}
}

// Notify は変更イベントに該当する購読者へ再配信を要求します。ブロックしない。
func (h *Hub) Notify(ev ChangeEvent) {
	key := subKey{userID: ev.UserID, coll: ev.Collection}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs[key] {
		select {
		case sub.kick <- struct{}{}:
		default:
		}
	}
}

// Close はすべての配信を止めて終了を待ちます。
func (h *Hub) Close() {
	h.cancel()
	h.wg.Wait()
}

func (h *Hub) deliver(key subKey, sub *subscription) {
	defer h.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-sub.done:
			return
		case <-sub.kick:
		}

		docs, err := h.src.Snapshot(h.ctx, key.userID, key.coll)
		if err != nil {
			slog.Warn("スナップショットの取得に失敗しました", "user", key.userID, "collection", key.coll, "error", err)
			continue
		}
		select {
		case <-sub.done:
			return
		default:
		}
		sub.fn(docs)
	}
}
