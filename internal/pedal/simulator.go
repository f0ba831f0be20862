// Package pedal implements C6: given a source that only reports
// instantaneous cadence (no discrete crank events), synthesize pedal
// ticks at the wall-clock times a rider actually turning the cranks at
// that cadence would produce, so CSC/CPS keep-alives stay timely.
package pedal

import "sync"

// Simulator drives pedal() events from a single SetCadence setter, per
// the algorithm in spec.md §4.5: never extend an event that is already
// due, never delay bringing a too-distant event closer.
type Simulator struct {
	clock   Clock
	onPedal func(tMs float64)

	mu       sync.Mutex
	cadence  float64
	pending  bool
	tNext    float64
	cancel   func()
}

// New returns a Simulator that calls onPedal for every synthesized
// pedal-stroke event.
func New(clock Clock, onPedal func(tMs float64)) *Simulator {
	return &Simulator{clock: clock, onPedal: onPedal}
}

// SetCadence updates the instantaneous cadence (RPM) as observed at
// tMs. May be called from any goroutine at any time.
func (s *Simulator) SetCadence(rpm float64, tMs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rpm <= 0 {
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		s.pending = false
		s.cadence = 0
		return
	}

	period := 60000.0 / rpm

	if !s.pending {
		s.cadence = rpm
		s.pending = true
		s.scheduleAt(tMs)
		return
	}

	remaining := s.tNext - tMs
	if remaining > period {
		s.tNext = tMs + period
		if s.cancel != nil {
			s.cancel()
		}
		s.scheduleTimerAt(s.tNext)
	}
	// remaining <= period: leave the already-scheduled event alone —
	// never extend a late event, never shorten one already near firing.

	s.cadence = rpm
}

// scheduleAt arms the timer to fire at exactly tMs (immediate event).
func (s *Simulator) scheduleAt(tMs float64) {
	s.tNext = tMs
	s.scheduleTimerAt(tMs)
}

func (s *Simulator) scheduleTimerAt(atMs float64) {
	s.cancel = s.clock.AfterFunc(atMs, s.fire)
}

func (s *Simulator) fire() {
	s.mu.Lock()
	if !s.pending {
		s.mu.Unlock()
		return
	}
	t := s.tNext
	cadence := s.cadence
	cb := s.onPedal
	if cadence > 0 {
		s.tNext = t + 60000.0/cadence
		s.scheduleTimerAt(s.tNext)
	} else {
		s.pending = false
	}
	s.mu.Unlock()

	if cb != nil {
		cb(t)
	}
}

// Stop cancels any pending event.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.pending = false
}
