package domain

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	core "skirmish/domain"
)

const (
	taskPending int32 = iota
	taskCancelled
	taskDone
)

// TimerScheduler は遅延タスクを time.AfterFunc で予約し、期限が来たら Tasks() に流す。
// 実行そのものは Tasks() を読む Room のループで行うため、タスク内で状態を触ってよい。
type TimerScheduler struct {
	ch       chan core.Task
	done     chan struct{}
	stopOnce sync.Once
}

func NewTimerScheduler(buffer int) *TimerScheduler {
	if buffer <= 0 {
		buffer = 64
	}
	return &TimerScheduler{
		ch:   make(chan core.Task, buffer),
		done: make(chan struct{}),
	}
}

func (s *TimerScheduler) Schedule(delay time.Duration, task core.Task) core.TaskHandle {
	h := &timerHandle{}
	run := func(ctx context.Context) []core.Outbound {
		if !h.state.CompareAndSwap(taskPending, taskDone) {
			return nil
		}
		return task(ctx)
	}
	h.timer = time.AfterFunc(delay, func() {
		select {
		case s.ch <- run:
		case <-s.done:
		}
	})
	return h
}

// Tasks は期限が来たタスクを受け取るチャネル。
func (s *TimerScheduler) Tasks() <-chan core.Task {
	return s.ch
}

// Stop 以降に期限が来たタスクは捨てられる。
func (s *TimerScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

type timerHandle struct {
	timer *time.Timer
	state atomic.Int32
}

func (h *timerHandle) Cancel() bool {
	if !h.state.CompareAndSwap(taskPending, taskCancelled) {
		return false
	}
	h.timer.Stop()
	return true
}

var _ core.Scheduler = (*TimerScheduler)(nil)
