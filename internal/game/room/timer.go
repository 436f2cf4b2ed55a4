package room

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// timerHandle 可取消的一次性计时器。
// 到期后回调被投递回房间协程执行，执行前会再确认句柄没有被取消。
type timerHandle struct {
	timer   clockwork.Timer
	stop    chan struct{}
	stopped bool // 只在房间协程内读写
}

// arm 启动计时器，到期时在房间协程内调用 fire
func (m *Manager) arm(d time.Duration, fire func()) *timerHandle {
	h := &timerHandle{
		timer: m.clock.NewTimer(d),
		stop:  make(chan struct{}),
	}

	go func() {
		select {
		case <-h.timer.Chan():
			m.post(func() {
				if h.stopped {
					return
				}
				h.stopped = true
				fire()
			})
		case <-h.stop:
		case <-m.quit:
		}
	}()

	return h
}

// cancel 取消计时器，重复取消或已触发后取消都是空操作
func (h *timerHandle) cancel() {
	if h == nil || h.stopped {
		return
	}
	h.stopped = true
	close(h.stop)
	stopAndDrainTimer(h.timer)
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
