package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/onbrandapp/stryp-comic-studio/pkg/storage"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait = 10 * time.Second
	wsReadLimit = 4 << 10
)

type snapshotMessage struct {
	Collection storage.Collection `json:"collection"`
	Items      []json.RawMessage  `json:"items"`
}

// serveWS はコレクションの購読を WebSocket で流します。
// 接続直後に現在の一覧を1回、以後は変更のたびに一覧全体を送るのだ。
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	uid, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	coll, ok := storage.ParseCollection(r.URL.Query().Get("collection"))
	if !ok {
		writeError(w, r, fmt.Errorf("%w: unknown collection %q", errBadRequest, r.URL.Query().Get("collection")))
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		// オリジンは Authenticate で検査済み
		CheckOrigin: func(r *http.Request) bool { return s.auth.CheckOrigin(r) == nil },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "WebSocket のアップグレードに失敗しました", "error", err)
		return
	}
	defer conn.Close()

	unsubscribe := s.deps.Hub.Subscribe(uid, coll, func(items []json.RawMessage) {
		if items == nil {
			items = []json.RawMessage{}
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(snapshotMessage{Collection: coll, Items: items}); err != nil {
			slog.Debug("スナップショットの送信に失敗しました", "user", uid, "collection", coll, "error", err)
			conn.Close()
		}
	})
	defer unsubscribe()

	// クライアントからは何も受け取らない。切断の検出だけ
	conn.SetReadLimit(wsReadLimit)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("WebSocket が切断されました", "user", uid, "error", err)
			}
			return
		}
	}
}
