package playback

import (
	"context"
	"sync"
	"time"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
)

// State は再生状態です。
type State string

const (
	StateIdle    State = "idle"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
	StateEnded   State = "ended"
)

// Step は再生する1コマ分の情報です。
type Step struct {
	Index    int    `json:"index"`
	PanelID  string `json:"panelId"`
	ImageURL string `json:"imageUrl,omitempty"`
	VideoURL string `json:"videoUrl,omitempty"`
	AudioURL string `json:"audioUrl,omitempty"`
	// Speaker は字幕に出す話者名。ナレーションなら空。
	Speaker     string        `json:"speaker,omitempty"`
	Caption     string        `json:"caption,omitempty"`
	AudioDriven bool          `json:"audioDriven"`
	Dwell       time.Duration `json:"-"`
	DwellMillis int64         `json:"dwellMs"`
}

// Options は表示時間の決め方です。
type Options struct {
	// PanelDelay は音声で送らないパネルの表示時間。0 なら domain.DefaultPanelDelay。
	PanelDelay time.Duration
	// AudioLength は音声の長さを返します。nil か false なら PanelDelay を使う。
	AudioLength func(url string) (time.Duration, bool)
}

// OptionsFromSettings は設定の panelDelay（ミリ秒）から Options を作ります。
func OptionsFromSettings(s domain.AppSettings) Options {
	return Options{PanelDelay: time.Duration(s.PanelDelay) * time.Millisecond}
}

// BuildSteps はパネル列を再生順の Step 列にします。並び順はパネル列そのままなのだ。
func BuildSteps(panels []domain.Panel, chars domain.CharactersMap, opts Options) []Step {
	delay := opts.PanelDelay
	if delay <= 0 {
		delay = domain.DefaultPanelDelay * time.Millisecond
	}

	steps := make([]Step, 0, len(panels))
	for i, p := range panels {
		st := Step{
			Index:    i,
			PanelID:  p.ID,
			ImageURL: p.ImageURL,
			VideoURL: p.VideoURL,
			AudioURL: p.AudioURL,
			Caption:  p.Dialogue,
			Dwell:    delay,
		}
		if c := chars.FindCharacter(p.CharacterID); c != nil {
			st.Speaker = c.Name
		}
		if p.AudioURL != "" {
			st.AudioDriven = true
			if opts.AudioLength != nil {
				if d, ok := opts.AudioLength(p.AudioURL); ok && d > 0 {
					st.Dwell = d
				}
			}
		}
		st.DwellMillis = st.Dwell.Milliseconds()
		steps = append(steps, st)
	}
	return steps
}

// Player はプレビュー再生の状態機械です。
// 最後のコマの次は必ず StateEnded に入り、それ以上は進まない。
type Player struct {
	mu    sync.Mutex
	steps []Step
	state State
	index int
	// seq は遷移ごと、nav はコマの切り替えごとに進む
	seq  uint64
	nav  uint64
	wake chan struct{}
}

// NewPlayer は Step 列から Player を作ります。
func NewPlayer(steps []Step) *Player {
	return &Player{steps: steps, state: StateIdle, wake: make(chan struct{}, 1)}
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) Index() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

func (p *Player) Len() int { return len(p.steps) }

// Current は表示中のコマです。Idle と空の再生リストでは false。
func (p *Player) Current() (Step, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateIdle || len(p.steps) == 0 {
		return Step{}, false
	}
	return p.steps[p.index], true
}

// Start は先頭から再生します。Idle か Ended のときだけ有効。
func (p *Player) Start() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateIdle && p.state != StateEnded {
		return false
	}
	p.jump(0)
	return true
}

// Replay は状態にかかわらず先頭から再生し直します。
func (p *Player) Replay() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jump(0)
}

// Next は次のコマへ進みます。最後のコマからは Ended。
func (p *Player) Next() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePlaying && p.state != StatePaused {
		return false
	}
	p.forward()
	return true
}

// Prev は前のコマへ戻ります。先頭ではそのまま先頭を再生し直す。
func (p *Player) Prev() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateIdle {
		return false
	}
	p.jump(max(p.index-1, 0))
	return true
}

func (p *Player) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePlaying {
		return false
	}
	p.transition(StatePaused)
	return true
}

// Resume は一時停止を解除します。表示時間はそのコマの頭から数え直す。
func (p *Player) Resume() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePaused {
		return false
	}
	p.transition(StatePlaying)
	return true
}

// Stop は再生をやめて Idle に戻します。
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.index = 0
	p.transition(StateIdle)
}

// Run は表示時間に従ってコマを送ります。コマが切り替わるたびに onStep を呼ぶ。
// Ended か Idle になったら nil、ctx が終わったら Stop して ctx.Err() を返すのだ。
func (p *Player) Run(ctx context.Context, onStep func(Step)) error {
	var shown uint64
	for {
		p.mu.Lock()
		state, seq, nav := p.state, p.seq, p.nav
		var step Step
		if len(p.steps) > 0 {
			step = p.steps[p.index]
		}
		p.mu.Unlock()

		switch state {
		case StateIdle, StateEnded:
			return nil
		case StatePaused:
			select {
			case <-p.wake:
				continue
			case <-ctx.Done():
				p.Stop()
				return ctx.Err()
			}
		}

		if nav != shown {
			shown = nav
			if onStep != nil {
				onStep(step)
			}
		}

		timer := time.NewTimer(step.Dwell)
		select {
		case <-timer.C:
			p.advance(seq)
		case <-p.wake:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			p.Stop()
			return ctx.Err()
		}
	}
}

// advance は表示時間が切れたときの自動送り。途中で操作があれば何もしない。
func (p *Player) advance(seq uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seq != seq || p.state != StatePlaying {
		return
	}
	p.forward()
}

func (p *Player) forward() {
	if p.index+1 >= len(p.steps) {
		p.transition(StateEnded)
		return
	}
	p.jump(p.index + 1)
}

func (p *Player) jump(i int) {
	if len(p.steps) == 0 {
		p.index = 0
		p.transition(StateEnded)
		return
	}
	p.index = i
	p.nav++
	p.transition(StatePlaying)
}

func (p *Player) transition(s State) {
	p.state = s
	p.seq++
	select {
	case p.wake <- struct{}{}:
	default:
	}
}
