package audio

import "sync"

// Clock reports the current time of a playback timeline in seconds.
type Clock interface {
	CurrentTime() float64
}

// Scheduler assigns gapless start times to buffers as they arrive.
//
// The cursor only moves forward while the session is live: each buffer starts at
// max(cursor, clock) and the cursor advances by the buffer's duration, so buffers
// delivered in order play back to back without overlap. Reset rewinds it to zero.
type Scheduler struct {
	mu     sync.Mutex
	clock  Clock
	cursor float64
}

func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

// Schedule returns the start time for a buffer of the given duration.
func (s *Scheduler) Schedule(duration float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.cursor
	if now := s.clock.CurrentTime(); now > start {
		start = now
	}
	if duration > 0 {
		s.cursor = start + duration
	} else {
		s.cursor = start
	}
	return start
}

// Cursor returns the earliest time the next buffer may start.
func (s *Scheduler) Cursor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.cursor = 0
	s.mu.Unlock()
}
