package pedal

import "sort"

// fakeClock is a manually-driven Clock for deterministic tests: events
// are processed in timestamp order as the test calls Advance, so the
// exact pedal-stroke timestamps from spec.md §8's S3/S4 scenarios can
// be asserted without relying on real wall-clock sleeps.
type fakeClock struct {
	now    float64
	nextID int
	events []*fakeEvent
}

type fakeEvent struct {
	id        int
	at        float64
	fn        func()
	cancelled bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{}
}

func (c *fakeClock) NowMs() float64 { return c.now }

func (c *fakeClock) AfterFunc(atMs float64, f func()) func() {
	c.nextID++
	ev := &fakeEvent{id: c.nextID, at: atMs, fn: f}
	c.events = append(c.events, ev)
	return func() { ev.cancelled = true }
}

// Advance runs every not-yet-fired, not-cancelled event with at <= to,
// in ascending (at, id) order, then sets now = to.
func (c *fakeClock) Advance(to float64) {
	for {
		idx := -1
		for i, ev := range c.events {
			if ev.cancelled {
				continue
			}
			if ev.at > to {
				continue
			}
			if idx == -1 || ev.at < c.events[idx].at || (ev.at == c.events[idx].at && ev.id < c.events[idx].id) {
				idx = i
			}
		}
		if idx == -1 {
			break
		}
		ev := c.events[idx]
		c.events = append(c.events[:idx], c.events[idx+1:]...)
		c.now = ev.at
		ev.fn()
	}
	c.now = to
	sort.Stable(byAt(c.events)) // keep deterministic order for debugging
}

type byAt []*fakeEvent

func (b byAt) Len() int           { return len(b) }
func (b byAt) Less(i, j int) bool { return b[i].at < b[j].at }
func (b byAt) Swap(i, j int)      { b[i], b[j] = b[j], b[i] }
