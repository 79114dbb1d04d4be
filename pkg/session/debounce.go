package session

import (
	"sync"
	"time"
)

// DefaultWriteDelay は編集からドキュメント書き込みまでの待ち時間です。
const DefaultWriteDelay = 1500 * time.Millisecond

// Debouncer は短時間に続いた要求を最後の1回にまとめて fn を呼びます。
// fn は発火時点で最新の状態を読むこと。予約時の値を閉じ込めてはいけない。
// Pending は fn が戻るまで true のままなのだ。
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending bool
	closed  bool
}

func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	if delay <= 0 {
		delay = DefaultWriteDelay
	}
	return &Debouncer{delay: delay, fn: fn}
}

// Schedule は待ち時間を延長して発火を予約し直します。Close 後は何もしない。
func (d *Debouncer) Schedule() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = true
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.closed {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.fn()

	d.mu.Lock()
	// fn の最中に予約し直されていれば、そちらの予約が残っている
	if gen == d.gen {
		d.pending = false
	}
	d.mu.Unlock()
}

// Cancel は予約を取り消し、取り消した予約があったかを返します。
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelLocked()
}

// Close は予約を捨て、以後の Schedule を無視します。
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.cancelLocked()
}

func (d *Debouncer) cancelLocked() bool {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	was := d.pending
	d.pending = false
	return was
}

// Pending は未発火または実行中の予約があるかどうかです。
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}
