package monitor

import (
	"context"
	"strconv"
	"sync"

	"sunnyside/audio"
	"sunnyside/decoder"
	"sunnyside/log"
)

// Session is one narration being played and analysed.
type Session struct {
	ID  string
	URL string

	m        *Monitor
	cancel   context.CancelFunc
	stream   decoder.Stream
	playback audio.Playback
	analyser *Analyser

	mu         sync.Mutex
	buf        []byte
	cancelTick Cancel
	stopped    bool
	voiced     bool
	level      float64
	ticks      int
	done       chan struct{}
}

// tick samples the analyser into the session buffer, updates the voiced
// flag and schedules the next frame while the session runs.
func (s *Session) tick() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.analyser.TimeDomainData(s.buf)
	s.level = RMS(s.buf)
	s.voiced = s.level > s.m.threshold
	s.ticks++
	s.cancelTick = s.m.sched.Schedule(s.tick)
	st := s.statusLocked()
	s.mu.Unlock()

	s.m.publish(s, st)
}

// Stop cancels the tick loop, clears the voiced flag and releases the
// playback and stream. Safe to call more than once.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.cancelTick != nil {
		s.cancelTick()
		s.cancelTick = nil
	}
	s.voiced = false
	s.level = 0
	st := s.statusLocked()
	ticks := s.ticks
	s.mu.Unlock()

	if s.playback != nil {
		s.playback.Pause()
		s.playback.Close()
	}
	s.cancel()
	s.stream.Close()

	s.m.retire(s, st)

	log.Narration(s.ID, "stop", map[string]string{"ticks": strconv.Itoa(ticks)})
	close(s.done)
}

func (s *Session) watch() {
	select {
	case <-s.playback.Done():
		log.Narration(s.ID, "ended", nil)
		s.Stop()
	case <-s.done:
	}
}

func (s *Session) statusLocked() Status {
	return Status{
		SessionID: s.ID,
		URL:       s.URL,
		Active:    !s.stopped,
		Voiced:    s.voiced,
		Level:     s.level,
	}
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) IsVoiced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voiced
}

func (s *Session) Level() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// Ticks is the number of completed analysis frames.
func (s *Session) Ticks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// Samples returns a copy of the session's time-domain buffer as of the last
// tick.
func (s *Session) Samples() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf...)
}

func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Done is closed once the session has stopped and its final status has
// been published.
func (s *Session) Done() <-chan struct{} { return s.done }
