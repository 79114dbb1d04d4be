package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
	"github.com/onbrandapp/stryp-comic-studio/pkg/session"
	"github.com/onbrandapp/stryp-comic-studio/pkg/workflow"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// DefaultVisualInterval は画像・動画ジョブの投入間隔です。
	DefaultVisualInterval = 2 * time.Second
	// DefaultAudioInterval は音声ジョブの投入間隔です。
	DefaultAudioInterval = 500 * time.Millisecond
)

// Runner はパネル1枚分の生成を実行します。workflow.Manager が実装します。
type Runner interface {
	Generate(ctx context.Context, s *session.Session, panelID string, kind domain.MediaKind) (*workflow.Result, error)
}

// Config は投入間隔の設定です。
type Config struct {
	VisualInterval time.Duration
	AudioInterval  time.Duration
}

// Report は一括生成の結果です。個々の失敗は数えるだけで中断はしないのだ。
type Report struct {
	Kind      domain.BatchKind `json:"kind"`
	Planned   int              `json:"planned"`
	Submitted int              `json:"submitted"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Declined  bool             `json:"declined,omitempty"`
	Stopped   bool             `json:"stopped,omitempty"`
}

// Sequencer は一括生成を間隔を空けて投入し、完了を待ちます。
type Sequencer struct {
	runner Runner
	token  Token
	cfg    Config

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewSequencer は Sequencer を初期化します。
func NewSequencer(runner Runner, token Token, cfg Config) (*Sequencer, error) {
	if runner == nil {
		return nil, fmt.Errorf("Runner は必須です")
	}
	if token == nil {
		return nil, fmt.Errorf("Token は必須です")
	}
	if cfg.VisualInterval <= 0 {
		cfg.VisualInterval = DefaultVisualInterval
	}
	if cfg.AudioInterval <= 0 {
		cfg.AudioInterval = DefaultAudioInterval
	}
	return &Sequencer{runner: runner, token: token, cfg: cfg, running: make(map[string]context.CancelFunc)}, nil
}

// Plan は一括生成の対象パネルを並び順で返します。
// 出力が既にあるパネルと生成中のパネルは除く。音声は台詞のあるパネルだけ。
func Plan(p domain.Project, kind domain.BatchKind, jobs *session.JobTable) []string {
	media := mediaKindFor(p, kind)
	var ids []string
	for _, panel := range p.Panels {
		if jobs != nil && jobs.Busy(panel.ID) {
			continue
		}
		if panel.Media(media) != "" {
			continue
		}
		if media == domain.MediaAudio && panel.Dialogue == "" {
			continue
		}
		ids = append(ids, panel.ID)
	}
	return ids
}

// Available は別の一括生成がトークンを持っていれば domain.ErrPleaseWait を返します。
// 種類は問わない。
func (q *Sequencer) Available(ctx context.Context, projectID string) error {
	kind, held, err := q.token.HeldBy(ctx, projectID)
	if err != nil {
		return fmt.Errorf("一括生成トークンの確認に失敗しました: %w", err)
	}
	if held {
		return fmt.Errorf("%s の一括生成が実行中です: %w", kind, domain.ErrPleaseWait)
	}
	return nil
}

// Start は一括生成を実行します。confirm が false を返したら何もしない。
// 別の一括生成が実行中なら confirm を呼ぶ前に domain.ErrPleaseWait を返すのだ。
func (q *Sequencer) Start(ctx context.Context, s *session.Session, kind domain.BatchKind, confirm func(count int) bool) (*Report, error) {
	project := s.Project()
	media := mediaKindFor(project, kind)
	ids := Plan(project, kind, s.Jobs())

	report := &Report{Kind: kind, Planned: len(ids)}
	if len(ids) == 0 {
		return report, nil
	}
	if err := q.Available(ctx, s.ProjectID()); err != nil {
		return nil, err
	}
	if confirm != nil && !confirm(len(ids)) {
		report.Declined = true
		return report, nil
	}

	release, err := q.token.Acquire(ctx, s.ProjectID(), kind)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			slog.WarnContext(ctx, "一括生成トークンの解放に失敗しました", "project", s.ProjectID(), "error", err)
		}
	}()

	s.SetBatchActive(true)
	defer s.SetBatchActive(false)

	// 投入ループだけを止めるためのコンテキスト。投入済みのジョブは ctx で最後まで走る
	submitCtx, stop := context.WithCancel(ctx)
	defer stop()
	key := runKey(s.UserID(), s.ProjectID())
	q.mu.Lock()
	q.running[key] = stop
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		delete(q.running, key)
		q.mu.Unlock()
	}()

	interval := q.cfg.VisualInterval
	if kind == domain.BatchAudio {
		interval = q.cfg.AudioInterval
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	slog.InfoContext(ctx, "一括生成を開始します", "project", s.ProjectID(), "kind", kind, "panels", len(ids), "interval", interval)

	var (
		g         errgroup.Group
		succeeded atomic.Int32
		failed    atomic.Int32
	)
	for _, id := range ids {
		if err := limiter.Wait(submitCtx); err != nil {
			report.Stopped = true
			break
		}
		report.Submitted++
		g.Go(func() error {
			if _, err := q.runner.Generate(ctx, s, id, media); err != nil {
				failed.Add(1)
				slog.WarnContext(ctx, "一括生成の1件が失敗しました", "project", s.ProjectID(), "panel", id, "error", err)
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report.Succeeded = int(succeeded.Load())
	report.Failed = int(failed.Load())
	slog.InfoContext(ctx, "一括生成が完了しました",
		"project", s.ProjectID(), "kind", kind,
		"submitted", report.Submitted, "succeeded", report.Succeeded, "failed", report.Failed, "stopped", report.Stopped)
	return report, nil
}

// Stop は新しい投入を止めます。実行中の一括生成があれば true。
func (q *Sequencer) Stop(userID, projectID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	stop, ok := q.running[runKey(userID, projectID)]
	if ok {
		stop()
	}
	return ok
}

// Running はプロジェクトで一括生成が実行中かどうかです。
func (q *Sequencer) Running(userID, projectID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.running[runKey(userID, projectID)]
	return ok
}

func mediaKindFor(p domain.Project, kind domain.BatchKind) domain.MediaKind {
	if kind == domain.BatchAudio {
		return domain.MediaAudio
	}
	return domain.VisualKind(p.Mode)
}

func runKey(userID, projectID string) string {
	return userID + "/" + projectID
}
