package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultChangeSubject は変更イベントを流すサブジェクトの接頭辞です。
const DefaultChangeSubject = "studio.changes"

// natsConn は NATSBridge が使う *nats.Conn の部分集合です。
type natsConn interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// NATSBridge は複数プロセス間で変更イベントを中継します。
// ローカルの書き込みを publish し、他プロセス発の変更を受けたらローカルの購読へ通知するのだ。
type NATSBridge struct {
	conn    natsConn
	subject string
	origin  string
	sub     *nats.Subscription
}

// ConnectNATS は再接続を無制限にした NATS 接続を作ります。
func ConnectNATS(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("stryp-comic-studio"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS から切断されました", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS に再接続しました", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("NATS への接続に失敗しました: %w", err)
	}
	return nc, nil
}

// NewNATSBridge はブリッジを作ります。subject が空なら DefaultChangeSubject を使う。
func NewNATSBridge(conn natsConn, subject string) (*NATSBridge, error) {
	if conn == nil {
		return nil, fmt.Errorf("NATS 接続は必須です")
	}
	if subject == "" {
		subject = DefaultChangeSubject
	}
	return &NATSBridge{conn: conn, subject: strings.TrimSuffix(subject, "."), origin: uuid.NewString()}, nil
}

// Publish はローカルの変更を他プロセスへ流します。失敗はログだけにするのだ。
func (b *NATSBridge) Publish(ev ChangeEvent) {
	ev.Origin = b.origin
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("変更イベントのエンコードに失敗しました", "error", err)
		return
	}
	if err := b.conn.Publish(b.subjectFor(ev.UserID), data); err != nil {
		slog.Warn("変更イベントの publish に失敗しました", "user", ev.UserID, "error", err)
	}
}

// Start は他プロセス発の変更を購読し、deliver へ渡します。
func (b *NATSBridge) Start(ctx context.Context, deliver func(ChangeEvent)) error {
	sub, err := b.conn.Subscribe(b.subject+".>", func(msg *nats.Msg) {
		b.handle(ctx, msg.Data, deliver)
	})
	if err != nil {
		return fmt.Errorf("変更イベントの購読に失敗しました: %w", err)
	}
	b.sub = sub
	slog.InfoContext(ctx, "変更イベントの中継を開始しました", "subject", b.subject, "origin", b.origin)
	return nil
}

// Close は購読を解除します。
func (b *NATSBridge) Close() error {
	if b.sub == nil {
		return nil
	}
	return b.sub.Unsubscribe()
}

func (b *NATSBridge) handle(ctx context.Context, data []byte, deliver func(ChangeEvent)) {
	var ev ChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		slog.WarnContext(ctx, "変更イベントのデコードに失敗しました", "error", err)
		return
	}
	// 自分が流したものは既にローカルで配信済み
	if ev.Origin == b.origin {
		return
	}
	deliver(ev)
}

func (b *NATSBridge) subjectFor(userID string) string {
	return b.subject + "." + sanitizeToken(userID)
}

// sanitizeToken はサブジェクトのトークンに使えない文字を置き換えます。
func sanitizeToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
