package monitor

import "time"

// Cancel stops a scheduled callback if it has not run yet.
type Cancel func()

// Scheduler runs fn once at the next animation frame.
type Scheduler interface {
	Schedule(fn func()) Cancel
}

// FrameScheduler fires callbacks at a fixed frame rate, best effort.
type FrameScheduler struct {
	interval time.Duration
}

func NewFrameScheduler(rate int) *FrameScheduler {
	if rate <= 0 {
		rate = DefaultFrameRate
	}
	return &FrameScheduler{interval: time.Second / time.Duration(rate)}
}

func (s *FrameScheduler) Interval() time.Duration { return s.interval }

func (s *FrameScheduler) Schedule(fn func()) Cancel {
	t := time.AfterFunc(s.interval, fn)
	return func() { t.Stop() }
}
