package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
)

// writeTimeout は遅延書き込み1回あたりの上限です。
const writeTimeout = 30 * time.Second

// ProjectStore はプロジェクトドキュメントの読み書き先です。
// SaveProject はサニタイズ済みのコピーを書くこと。
type ProjectStore interface {
	LoadProject(ctx context.Context, userID, id string) (*domain.Project, error)
	SaveProject(ctx context.Context, userID string, p domain.Project) error
}

// View は画面に返すセッションの見え方です。生成中フラグはジョブ表から導出するのだ。
type View struct {
	Project     domain.Project       `json:"project"`
	Jobs        map[string]JobStatus `json:"jobs"`
	Unsaved     []string             `json:"unsaved"`
	BatchActive bool                 `json:"batchActive"`
}

// Session は開いているプロジェクト1件の編集状態です。
// 取り込みを保留したリモートのスナップショット、メモリ上のパネル列、ローカルプレビューの3つを持つ。
type Session struct {
	userID    string
	projectID string
	store     ProjectStore
	jobs      *JobTable
	debounce  *Debouncer

	mu      sync.Mutex
	project domain.Project
	// remote は保留中のスナップショット。自分の書き込みが成功したら古いので捨てる
	remote      *domain.Project
	unsaved     map[string]bool
	batchActive bool
	closed      bool

	// 書き込み同士が追い越さないように直列化する
	writeMu sync.Mutex
}

// New は読み込んだプロジェクトからセッションを作ります。
func New(userID string, p domain.Project, store ProjectStore, writeDelay time.Duration) *Session {
	clean := domain.SanitizeProject(p)
	s := &Session{
		userID:    userID,
		projectID: p.ID,
		store:     store,
		jobs:      NewJobTable(),
		project:   clean,
		unsaved:   make(map[string]bool),
	}
	s.debounce = NewDebouncer(writeDelay, s.debouncedWrite)
	return s
}

func (s *Session) UserID() string    { return s.userID }
func (s *Session) ProjectID() string { return s.projectID }
func (s *Session) Jobs() *JobTable   { return s.jobs }

// Project はメモリ上のプロジェクトに生成中フラグを反映したコピーを返します。
func (s *Session) Project() domain.Project {
	s.mu.Lock()
	p := s.project.Clone()
	s.mu.Unlock()

	jobs := s.jobs.Snapshot()
	for i := range p.Panels {
		job, ok := jobs[p.Panels[i].ID]
		if !ok {
			continue
		}
		switch job.Kind {
		case domain.MediaImage:
			p.Panels[i].IsGeneratingImage = true
		case domain.MediaVideo:
			p.Panels[i].IsGeneratingVideo = true
		case domain.MediaAudio:
			p.Panels[i].IsGeneratingAudio = true
		}
	}
	return p
}

// View は画面表示用の状態一式を返します。
func (s *Session) View() View {
	p := s.Project()
	s.mu.Lock()
	unsaved := make([]string, 0, len(s.unsaved))
	for id := range s.unsaved {
		unsaved = append(unsaved, id)
	}
	batch := s.batchActive
	s.mu.Unlock()
	sort.Strings(unsaved)

	return View{Project: p, Jobs: s.jobs.Snapshot(), Unsaved: unsaved, BatchActive: batch}
}

// Panel は ID のパネルを返します。
func (s *Session) Panel(panelID string) (domain.Panel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := domain.Panels(s.project.Panels).IndexOf(panelID)
	if i < 0 {
		return domain.Panel{}, false
	}
	return s.project.Panels[i], true
}

// ApplyRemote はリモートのスナップショットを取り込みます。取り込んだら true。
// バッチ実行中と遅延書き込みの予約中は取り込まない。後者は予約中の書き込みがどのみち上書きするのだ。
func (s *Session) ApplyRemote(remote domain.Project) bool {
	clean := domain.SanitizeProject(remote)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchActive || s.debounce.Pending() {
		s.remote = &clean
		slog.Debug("リモートの更新を保留しました", "project", s.projectID, "batch", s.batchActive)
		return false
	}
	s.mergeLocked(clean)
	return true
}

func (s *Session) mergeLocked(remote domain.Project) {
	merged := remote.Clone()
	merged.Panels = MergePanels(s.project.Panels, remote.Panels)
	s.project = merged
	s.remote = nil
}

// ApplyPanelChange はパネルへの部分更新をメモリに即時反映し、書き込みを予約します。
func (s *Session) ApplyPanelChange(panelID string, patch domain.PanelPatch) error {
	s.mu.Lock()
	i := domain.Panels(s.project.Panels).IndexOf(panelID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("パネル %s: %w", panelID, domain.ErrNotFound)
	}
	panels := slices.Clone(s.project.Panels)
	panels[i] = panels[i].Apply(patch)
	s.project.Panels = panels
	s.mu.Unlock()

	s.debounce.Schedule()
	return nil
}

// Update はプロジェクト全体への変更を反映し、書き込みを予約します。
func (s *Session) Update(fn func(p *domain.Project)) {
	s.mu.Lock()
	p := s.project.Clone()
	fn(&p)
	p.ID = s.projectID
	s.project = p
	s.mu.Unlock()

	s.debounce.Schedule()
}

// Save は予約中の書き込みを取り消して今すぐ書き込みます。何度呼んでも同じ内容になる。
func (s *Session) Save(ctx context.Context) error {
	s.debounce.Cancel()
	return s.write(ctx)
}

// Flush は予約中の書き込みがあればすぐに実行します。
func (s *Session) Flush(ctx context.Context) error {
	if !s.debounce.Cancel() {
		return nil
	}
	return s.write(ctx)
}

// Discard は予約中の書き込みを捨て、以後の書き込みをすべて無視します。プロジェクト削除時に使うのだ。
// 実行中の書き込みがあれば終わるまで待つので、戻った後に消したドキュメントが書き戻されることはない。
func (s *Session) Discard() {
	s.debounce.Close()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	s.closed = true
	s.remote = nil
	s.mu.Unlock()
}

// WritePending は遅延書き込みが予約中かどうかです。
func (s *Session) WritePending() bool {
	return s.debounce.Pending()
}

// SetBatchActive はバッチ実行中フラグを切り替えます。
// バッチが終わったとき、書き込みの予約が無ければ保留していたスナップショットをここで取り込む。
func (s *Session) SetBatchActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchActive = active
	if active || s.remote == nil || s.debounce.Pending() {
		return
	}
	slog.Debug("保留していたリモートの更新を取り込みます", "project", s.projectID)
	s.mergeLocked(*s.remote)
}

func (s *Session) BatchActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchActive
}

// MarkUnsaved はパネルに「クラウド未保存」の印を付けます。
func (s *Session) MarkUnsaved(panelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsaved[panelID] = true
}

// ClearUnsaved はアップロード成功時に印を外します。
func (s *Session) ClearUnsaved(panelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.unsaved, panelID)
}

func (s *Session) IsUnsaved(panelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsaved[panelID]
}

func (s *Session) debouncedWrite() {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.write(ctx); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.Debug("破棄済みのセッションは保存しません", "project", s.projectID)
			return
		}
		slog.Error("プロジェクトの自動保存に失敗しました", "project", s.projectID, "error", err)
	}
}

// write は書き込み時点の最新状態を保存します。
func (s *Session) write(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("プロジェクト %s は破棄済みです: %w", s.projectID, domain.ErrNotFound)
	}
	snapshot := s.project.Clone()
	s.mu.Unlock()

	if err := s.store.SaveProject(ctx, s.userID, snapshot); err != nil {
		return fmt.Errorf("プロジェクトの保存に失敗しました: %w", err)
	}

	s.mu.Lock()
	s.remote = nil
	s.mu.Unlock()
	slog.DebugContext(ctx, "プロジェクトを保存しました", "project", s.projectID, "panels", len(snapshot.Panels))
	return nil
}
