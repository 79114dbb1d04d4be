package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/onbrandapp/stryp-comic-studio/pkg/batch"
	"github.com/onbrandapp/stryp-comic-studio/pkg/playback"
	"github.com/onbrandapp/stryp-comic-studio/pkg/publisher"
	"github.com/onbrandapp/stryp-comic-studio/pkg/session"
	"github.com/onbrandapp/stryp-comic-studio/pkg/storage"
	"github.com/onbrandapp/stryp-comic-studio/pkg/workflow"

	"github.com/google/uuid"
)

const shutdownTimeout = 30 * time.Second

// Deps はハンドラが使う部品です。
type Deps struct {
	Repo      *storage.Repository
	Hub       *storage.Hub
	Sessions  *session.Registry
	Workflow  *workflow.Manager
	Token     batch.Token
	Batch     *batch.Sequencer
	Publisher *publisher.Publisher
	Uploader  *storage.Uploader
	// Media は再生時間の計算に使う音声の取得先。nil なら panelDelay だけで送る
	Media playback.AudioFetcher
}

// Server は HTTP API と WebSocket の窓口です。
type Server struct {
	deps Deps
	auth *Authenticator
	mux  *http.ServeMux
}

// New は Server を初期化し、ルートを登録します。
func New(deps Deps, auth *Authenticator) (*Server, error) {
	if deps.Repo == nil || deps.Hub == nil || deps.Sessions == nil {
		return nil, fmt.Errorf("Repo, Hub, Sessions は必須です")
	}
	if deps.Workflow == nil || deps.Batch == nil || deps.Token == nil {
		return nil, fmt.Errorf("Workflow, Batch, Token は必須です")
	}
	if deps.Publisher == nil || deps.Uploader == nil {
		return nil, fmt.Errorf("Publisher, Uploader は必須です")
	}
	if auth == nil {
		return nil, fmt.Errorf("Authenticator は必須です")
	}
	s := &Server{deps: deps, auth: auth, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// ドキュメント
	s.handle("GET /api/settings", s.getSettings)
	s.handle("PUT /api/settings", s.putSettings)
	s.handle("GET /api/{collection}", s.listDocs)
	s.handle("GET /api/{collection}/{id}", s.getDoc)
	s.handle("PUT /api/{collection}/{id}", s.putDoc)
	s.handle("DELETE /api/{collection}/{id}", s.deleteDoc)

	// 編集セッション
	s.handle("GET /api/projects/{id}/session", s.getSession)
	s.handle("PATCH /api/projects/{id}/panels/{panelID}", s.patchPanel)
	s.handle("POST /api/projects/{id}/save", s.saveProject)
	s.handle("POST /api/projects/{id}/panels/{panelID}/sync", s.syncPanel)
	s.handle("POST /api/projects/{id}/panels/{panelID}/{kind}", s.generatePanel)
	s.handle("POST /api/projects/{id}/script", s.generateScript)
	s.handle("POST /api/projects/{id}/batch/stop", s.stopBatch)
	s.handle("POST /api/projects/{id}/batch/{kind}", s.startBatch)
	s.handle("GET /api/projects/{id}/playback", s.getPlayback)
	s.handle("GET /api/projects/{id}/export", s.exportProject)

	s.handle("POST /api/characters/{id}/analyze", s.analyzeCharacter)
	s.handle("POST /api/locations/{id}/analyze", s.analyzeLocation)
	s.handle("POST /api/uploads", s.upload)

	s.mux.HandleFunc("GET /ws", s.serveWS)
}

// handle は認証付きのハンドラを登録します。
func (s *Server) handle(pattern string, fn func(http.ResponseWriter, *http.Request) error) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		uid, err := s.auth.Authenticate(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := fn(w, r.WithContext(withUserID(r.Context(), uid))); err != nil {
			writeError(w, r, err)
		}
	})
}

// Handler はミドルウェアを通したハンドラを返します。
func (s *Server) Handler() http.Handler {
	return recoverer(requestLogger(s.mux))
}

// ListenAndServe は ctx が終わるまで待ち受け、終わったら穏やかに止めるのだ。
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP サーバーを起動します", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP サーバーの起動に失敗しました: %w", err)
	case <-ctx.Done():
	}

	slog.Info("HTTP サーバーを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP サーバーの停止に失敗しました: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap は http.ResponseController に元の Writer を見せる
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack は WebSocket のアップグレードに必要なのだ。
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("ResponseWriter がハイジャックに対応していません")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.InfoContext(r.Context(), "request",
			"id", reqID, "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "elapsed", time.Since(start))
	})
}

func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				slog.ErrorContext(r.Context(), "ハンドラで panic が発生しました", "path", r.URL.Path, "panic", v)
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Kind: "internal"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
