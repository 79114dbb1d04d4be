package session

import (
	"maps"
	"sync"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
)

// JobStatus はパネル1枚のジョブ状態です。
type JobStatus struct {
	State  domain.JobState  `json:"state"`
	Kind   domain.MediaKind `json:"kind"`
	Status string           `json:"status"`
}

// JobTable はパネル ID ごとのジョブ状態表です。
// 1パネルで同時に走れるジョブは1つだけなのだ。
type JobTable struct {
	mu   sync.Mutex
	jobs map[string]JobStatus
}

func NewJobTable() *JobTable {
	return &JobTable{jobs: make(map[string]JobStatus)}
}

// TryBegin はジョブを開始します。既に進行中なら domain.ErrPanelBusy。
func (t *JobTable) TryBegin(panelID string, kind domain.MediaKind) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.jobs[panelID]; ok && cur.State != domain.JobIdle {
		return domain.ErrPanelBusy
	}
	t.jobs[panelID] = JobStatus{
		State:  domain.GeneratingState(kind),
		Kind:   kind,
		Status: domain.StatusPreparing,
	}
	return nil
}

// Update は進行中のジョブの状態と表示文言を更新します。終了済みなら何もしない。
func (t *JobTable) Update(panelID string, state domain.JobState, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.jobs[panelID]
	if !ok {
		return
	}
	cur.State = state
	cur.Status = status
	t.jobs[panelID] = cur
}

// End はジョブを終了して idle に戻します。
func (t *JobTable) End(panelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, panelID)
}

func (t *JobTable) Get(panelID string) (JobStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.jobs[panelID]
	return s, ok
}

// Busy はパネルでジョブが進行中かどうかを返します。
func (t *JobTable) Busy(panelID string) bool {
	_, ok := t.Get(panelID)
	return ok
}

// Snapshot は状態表のコピーを返します。
func (t *JobTable) Snapshot() map[string]JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.jobs)
}
